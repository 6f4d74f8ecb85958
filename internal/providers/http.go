package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/moddengine/devstock/internal/config"
	"github.com/moddengine/devstock/internal/stock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const searchTimeout = 10 * time.Second

var (
	searchCounter *prometheus.CounterVec
	searchLatency *prometheus.HistogramVec
)

func init() {
	searchCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devstock_provider_searches_total",
			Help: "Searches sent to stock photo providers, by outcome.",
		},
		[]string{"provider", "outcome"},
	)
	searchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devstock_provider_search_duration_seconds",
			Help:    "Round trip time of provider search requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
	prometheus.MustRegister(searchCounter, searchLatency)
}

type Option func(*adapter)

// WithBaseURL points an adapter at a different API root.
func WithBaseURL(u string) Option {
	return func(a *adapter) {
		if u != "" {
			a.baseUrl = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the default client. Its timeout is kept if set.
func WithHTTPClient(c *http.Client) Option {
	return func(a *adapter) {
		if c != nil {
			a.http = c
		}
	}
}

// statusKind maps a non-2xx status onto an error kind. nil means the
// generic provider error.
type statusKind func(status int) error

// adapter holds what every provider shares: its name, how it reads its key
// and how it talks HTTP. It keeps no state between calls.
type adapter struct {
	name     stock.Provider
	http     *http.Client
	baseUrl  string
	settings config.Source
	log      *zap.Logger
	classify statusKind
}

func newAdapter(name stock.Provider, baseUrl string, settings config.Source, log *zap.Logger, classify statusKind, opts []Option) adapter {
	a := adapter{
		name:     name,
		http:     &http.Client{Timeout: searchTimeout},
		baseUrl:  baseUrl,
		settings: settings,
		log:      log.Named(string(name)),
		classify: classify,
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

func (a *adapter) Name() stock.Provider {
	return a.name
}

func (a *adapter) apiKey() string {
	return a.settings.Settings().APIKey(a.name)
}

func (a *adapter) IsConfigured() bool {
	return strings.TrimSpace(a.apiKey()) != ""
}

func (a *adapter) notConfigured() error {
	return &stock.Error{
		Kind:     stock.ErrNotConfigured,
		Provider: a.name,
		Message: fmt.Sprintf("%s API key is not configured. Set %sApiKey in the DevStock settings.",
			a.name.Title(), a.name),
	}
}

// get performs one GET against endpoint and decodes the JSON body into out.
// Every failure comes back as a *stock.Error.
func (a *adapter) get(ctx context.Context, log *zap.Logger, endpoint string, header http.Header, out any) (http.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		log.Error("Failed to create http request", zap.Error(err))
		return nil, a.failed(err)
	}
	for k, v := range header {
		getReq.Header[k] = v
	}

	start := time.Now()
	resp, err := a.http.Do(getReq)
	searchLatency.WithLabelValues(string(a.name)).Observe(time.Since(start).Seconds())
	if err != nil {
		log.Error("Failed to fetch", zap.Error(err))
		searchCounter.WithLabelValues(string(a.name), "transport_error").Inc()
		return nil, a.failed(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error("Provider rejected search", zap.Int("status", resp.StatusCode))
		searchCounter.WithLabelValues(string(a.name), strconv.Itoa(resp.StatusCode)).Inc()
		return nil, a.statusError(resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Error("Failed to decode response", zap.Error(err))
		searchCounter.WithLabelValues(string(a.name), "malformed").Inc()
		return nil, &stock.Error{
			Kind:     stock.ErrProvider,
			Provider: a.name,
			Message:  fmt.Sprintf("%s API error: malformed response", a.name.Title()),
			Err:      err,
		}
	}
	searchCounter.WithLabelValues(string(a.name), "ok").Inc()
	return resp.Header, nil
}

func (a *adapter) statusError(status int) error {
	kind := a.classify(status)
	title := a.name.Title()
	switch kind {
	case stock.ErrUnauthorized:
		return &stock.Error{
			Kind:     kind,
			Provider: a.name,
			Message:  fmt.Sprintf("Invalid %s API key. Please check your settings.", title),
		}
	case stock.ErrRateLimited:
		return &stock.Error{
			Kind:     kind,
			Provider: a.name,
			Message:  fmt.Sprintf("%s API rate limit exceeded. Please try again later.", title),
		}
	}
	text := http.StatusText(status)
	if text == "" {
		text = "status " + strconv.Itoa(status)
	}
	return &stock.Error{
		Kind:     stock.ErrProvider,
		Provider: a.name,
		Message:  fmt.Sprintf("%s API error: %s", title, text),
	}
}

// failed wraps a transport error without echoing the request URL, which
// may carry the API key.
func (a *adapter) failed(err error) error {
	reason := err
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		reason = urlErr.Err
	}
	msg := reason.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "request timed out"
	}
	return &stock.Error{
		Kind:     stock.ErrProvider,
		Provider: a.name,
		Message:  fmt.Sprintf("Failed to search %s: %s", a.name.Title(), msg),
		Err:      err,
	}
}

// rateLimit reads the X-Ratelimit-* headers. It returns nil when the
// provider sent neither limit nor remaining.
func rateLimit(h http.Header, withReset bool) *stock.RateLimit {
	limit, hasLimit := headerInt(h, "X-Ratelimit-Limit")
	remaining, hasRemaining := headerInt(h, "X-Ratelimit-Remaining")
	if !hasLimit && !hasRemaining {
		return nil
	}
	rl := &stock.RateLimit{Limit: int(limit), Remaining: int(remaining)}
	if withReset {
		if reset, ok := headerInt(h, "X-Ratelimit-Reset"); ok {
			rl.Reset = &reset
		}
	}
	return rl
}

func headerInt(h http.Header, key string) (int64, bool) {
	v := strings.TrimSpace(h.Get(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func orDefault(v string, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func nonNegative(v float64) int {
	if v < 0 {
		return 0
	}
	return int(v)
}
