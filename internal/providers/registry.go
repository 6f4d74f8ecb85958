package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/moddengine/devstock/internal/config"
	"github.com/moddengine/devstock/internal/stock"
	"go.uber.org/zap"
)

// BaseURLs overrides provider API roots. Empty fields keep the defaults.
type BaseURLs struct {
	Unsplash string
	Pexels   string
	Pixabay  string
}

// Registry holds one adapter per provider. The map is never written after
// construction, so concurrent searches need no locking.
type Registry struct {
	searchers map[stock.Provider]stock.Searcher
	settings  config.Source
	log       *zap.Logger
}

// NewRegistry builds a registry over the given adapters. A later adapter
// with the same name replaces an earlier one.
func NewRegistry(settings config.Source, log *zap.Logger, searchers ...stock.Searcher) *Registry {
	r := &Registry{
		searchers: make(map[stock.Provider]stock.Searcher, len(searchers)),
		settings:  settings,
		log:       log.Named("registry"),
	}
	for _, s := range searchers {
		r.searchers[s.Name()] = s
	}
	return r
}

// NewDefaultRegistry wires the three stock adapters.
func NewDefaultRegistry(settings config.Source, log *zap.Logger, urls BaseURLs) *Registry {
	return NewRegistry(settings, log,
		NewUnsplashApi(settings, log, WithBaseURL(urls.Unsplash)),
		NewPexelsApi(settings, log, WithBaseURL(urls.Pexels)),
		NewPixabayApi(settings, log, WithBaseURL(urls.Pixabay)),
	)
}

// Provider resolves name to its adapter.
func (r *Registry) Provider(name string) (stock.Searcher, error) {
	p, err := stock.ParseProvider(name)
	if err != nil {
		return nil, err
	}
	s, ok := r.searchers[p]
	if !ok {
		return nil, &stock.Error{
			Kind:     stock.ErrUnknownProvider,
			Provider: p,
			Message:  fmt.Sprintf("Unknown provider: %s", name),
		}
	}
	return s, nil
}

// DefaultProvider returns the adapter named by the defaultProvider setting.
func (r *Registry) DefaultProvider() (stock.Searcher, error) {
	return r.Provider(string(r.settings.Settings().Provider()))
}

// DefaultName is the provider name DefaultProvider resolves.
func (r *Registry) DefaultName() stock.Provider {
	return r.settings.Settings().Provider()
}

// ConfiguredProviders lists the providers that have an API key.
func (r *Registry) ConfiguredProviders() []stock.Provider {
	configured := []stock.Provider{}
	for _, p := range stock.Providers {
		if s, ok := r.searchers[p]; ok && s.IsConfigured() {
			configured = append(configured, p)
		}
	}
	return configured
}

// IsConfigured reports whether name is known and has an API key.
func (r *Registry) IsConfigured(name stock.Provider) bool {
	s, ok := r.searchers[name]
	return ok && s.IsConfigured()
}

// Search passes straight through to the named adapter using the default
// page size. Nothing is retried or cached.
func (r *Registry) Search(ctx context.Context, name string, query string, page int) (stock.SearchResult, error) {
	return r.SearchPage(ctx, name, query, page, stock.DefaultPerPage)
}

func (r *Registry) SearchPage(ctx context.Context, name string, query string, page int, perPage int) (stock.SearchResult, error) {
	s, err := r.Provider(name)
	if err != nil {
		r.log.Warn("Search for unknown provider", zap.String("provider", name))
		return stock.SearchResult{}, err
	}
	return s.Search(ctx, query, page, perPage)
}

// Mixed is the outcome of a search across every configured provider.
type Mixed struct {
	// Images interleaves the providers: one from each in turn, in the order
	// stock.Providers lists them, until all are exhausted.
	Images  []stock.Image
	Results map[stock.Provider]stock.SearchResult
	Errors  map[stock.Provider]error
}

type providerResult struct {
	num    int
	result stock.SearchResult
	err    error
}

// SearchAll queries every configured provider at once. It fails only when
// none answered; partial failures are reported in Mixed.Errors.
func (r *Registry) SearchAll(ctx context.Context, query string, page int) (Mixed, error) {
	names := r.ConfiguredProviders()
	if len(names) == 0 {
		return Mixed{}, &stock.Error{
			Kind:    stock.ErrNotConfigured,
			Message: "No image provider has an API key. Please check your settings.",
		}
	}

	chRes := make(chan providerResult)
	for num, name := range names {
		num, name := num, name
		go func() {
			res, err := r.searchers[name].Search(ctx, query, page, stock.DefaultPerPage)
			chRes <- providerResult{num: num, result: res, err: err}
		}()
	}

	mixed := Mixed{
		Results: make(map[stock.Provider]stock.SearchResult, len(names)),
		Errors:  make(map[stock.Provider]error),
	}
	lists := make([][]stock.Image, len(names))
	var errs []error
	for range names {
		res := <-chRes
		name := names[res.num]
		if res.err != nil {
			r.log.Warn("Provider failed in mixed search", zap.String("provider", string(name)), zap.Error(res.err))
			mixed.Errors[name] = res.err
			errs = append(errs, res.err)
			continue
		}
		mixed.Results[name] = res.result
		lists[res.num] = res.result.Images
	}
	if len(mixed.Results) == 0 {
		return mixed, errors.Join(errs...)
	}

	longest := 0
	for _, l := range lists {
		longest = max(longest, len(l))
	}
	mixed.Images = make([]stock.Image, 0, longest*len(lists))
	for idx := 0; idx < longest; idx++ {
		for _, l := range lists {
			if idx < len(l) {
				mixed.Images = append(mixed.Images, l[idx])
			}
		}
	}
	return mixed, nil
}
