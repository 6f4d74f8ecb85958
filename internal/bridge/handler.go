package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/moddengine/devstock/internal/editor"
	"github.com/moddengine/devstock/internal/insert"
	"github.com/moddengine/devstock/internal/stock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var messageCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "devstock_bridge_messages_total",
		Help: "Messages handled by the bridge, by request type and outcome.",
	},
	[]string{"type", "outcome"},
)

func init() {
	prometheus.MustRegister(messageCounter)
}

// Searcher is the part of the provider registry the handler needs.
type Searcher interface {
	Search(ctx context.Context, name string, query string, page int) (stock.SearchResult, error)
	DefaultName() stock.Provider
	IsConfigured(p stock.Provider) bool
}

type Downloader interface {
	Download(ctx context.Context, img stock.Image, size stock.ImageSize) (string, error)
}

// Host does what only the surrounding application can: clipboard access,
// opening a browser and showing notifications.
type Host interface {
	CopyToClipboard(text string) error
	OpenExternal(url string) error
	Notify(msg string)
}

// Handler answers requests. It is safe for concurrent use; each request
// runs on the caller's goroutine.
type Handler struct {
	search     Searcher
	downloader Downloader
	host       Host
	log        *zap.Logger
	validate   *validator.Validate
	seq        atomic.Uint64
}

func NewHandler(search Searcher, downloader Downloader, host Host, log *zap.Logger) *Handler {
	return &Handler{
		search:     search,
		downloader: downloader,
		host:       host,
		log:        log.Named("bridge"),
		validate:   validator.New(),
	}
}

// Handle runs req and passes each response message to emit in order.
// A blank search emits nothing.
func (h *Handler) Handle(ctx context.Context, req Request, emit func(any)) {
	if err := h.validate.Struct(req); err != nil {
		messageCounter.WithLabelValues("invalid", "error").Inc()
		emit(errorMessage(invalidRequest(err)))
		return
	}
	log := h.log.With(zap.String("type", req.Type))

	var err error
	switch req.Type {
	case TypeSearch:
		err = h.handleSearch(ctx, log, req, emit)
	case TypeDownload:
		err = h.handleDownload(ctx, log, req, emit)
	case TypeInsert:
		err = h.handleInsert(log, req, emit)
	case TypeCopyURL:
		err = h.handleCopy(req, emit)
	case TypeOpenExternal:
		err = h.handleOpen(req, emit)
	case TypeGetConfig, TypeReady:
		emit(h.Config())
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	messageCounter.WithLabelValues(req.Type, outcome).Inc()
}

// Collect runs req and returns its responses.
func (h *Handler) Collect(ctx context.Context, req Request) []any {
	out := []any{}
	h.Handle(ctx, req, func(msg any) {
		out = append(out, msg)
	})
	return out
}

func (h *Handler) Config() Config {
	return Config{
		Type:            TypeConfig,
		DefaultProvider: h.search.DefaultName(),
		HasUnsplash:     h.search.IsConfigured(stock.Unsplash),
		HasPexels:       h.search.IsConfigured(stock.Pexels),
		HasPixabay:      h.search.IsConfigured(stock.Pixabay),
	}
}

func (h *Handler) handleSearch(ctx context.Context, log *zap.Logger, req Request, emit func(any)) error {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil
	}
	seq := h.seq.Add(1)
	emit(Searching{Type: TypeSearching, Query: req.Query, IsSuggested: req.IsSuggested})

	provider := req.Provider
	if provider == "" {
		provider = string(h.search.DefaultName())
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	result, err := h.search.Search(ctx, provider, query, page)
	if err != nil {
		log.Warn("Search failed", zap.String("provider", provider), zap.Error(err))
		emit(errorMessage(stock.Message(err)))
		h.host.Notify("DevStock: " + stock.Message(err))
		return err
	}
	stale := h.seq.Load() != seq
	if stale {
		log.Debug("Search answered after a newer one started", zap.Uint64("seq", seq))
	}
	emit(SearchResults{
		Type:        TypeSearchResults,
		Data:        result,
		IsSuggested: req.IsSuggested,
		Seq:         seq,
		Stale:       stale,
	})
	return nil
}

func (h *Handler) handleDownload(ctx context.Context, log *zap.Logger, req Request, emit func(any)) error {
	size := stock.ImageSize(req.Size)
	if size == "" {
		size = stock.SizeMedium
	}
	path, err := h.downloader.Download(ctx, *req.Image, size)
	if err != nil {
		log.Warn("Download failed", zap.String("image", req.Image.Id), zap.Error(err))
		emit(DownloadComplete{Type: TypeDownloadComplete, Success: false, Error: stock.Message(err)})
		h.host.Notify("DevStock: " + stock.Message(err))
		return err
	}
	emit(DownloadComplete{Type: TypeDownloadComplete, Success: true, FilePath: path})
	h.host.Notify(fmt.Sprintf("Image saved to %s", path))
	return nil
}

// handleInsert replays the request's document into a scratch window and
// inserts there; the caller applies Snippet at Position to its own copy.
func (h *Handler) handleInsert(log *zap.Logger, req Request, emit func(any)) error {
	window := editor.NewWindow()
	if req.Document != nil {
		buf := window.Open(req.Document.FileName, req.Document.Text)
		buf.SetCursor(req.Document.Cursor)
	}
	inserted, err := insert.NewInserter(window, h.log).Insert(*req.Image, stock.InsertFormat(req.Format), req.Image.LocalPath)
	if err != nil {
		log.Warn("Insert failed", zap.Error(err))
		emit(InsertComplete{Type: TypeInsertComplete, Success: false, Error: stock.Message(err)})
		return err
	}
	emit(InsertComplete{
		Type:     TypeInsertComplete,
		Success:  true,
		Snippet:  inserted.Snippet,
		Position: &inserted.Position,
	})
	h.host.Notify("Image reference inserted.")
	return nil
}

func (h *Handler) handleCopy(req Request, emit func(any)) error {
	if strings.TrimSpace(req.Url) == "" {
		emit(errorMessage("No URL to copy."))
		return errors.New("empty url")
	}
	if u, err := url.Parse(req.Url); err != nil || u.Scheme != "" || u.Host != "" {
		if err := h.validate.Var(req.Url, "http_url"); err != nil {
			emit(errorMessage(fmt.Sprintf("Cannot copy %q: not a web address or relative path.", req.Url)))
			return err
		}
	}
	if err := h.host.CopyToClipboard(req.Url); err != nil {
		emit(errorMessage("Failed to copy URL: " + err.Error()))
		return err
	}
	h.host.Notify("Image URL copied to clipboard.")
	return nil
}

func (h *Handler) handleOpen(req Request, emit func(any)) error {
	if err := h.validate.Var(req.Url, "required,http_url"); err != nil {
		emit(errorMessage(fmt.Sprintf("Cannot open %q: not a web address.", req.Url)))
		return err
	}
	if err := h.host.OpenExternal(req.Url); err != nil {
		emit(errorMessage("Failed to open link: " + err.Error()))
		return err
	}
	return nil
}

func invalidRequest(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request: " + err.Error()
	}
	fe := verrs[0]
	switch fe.Field() {
	case "Type":
		if fe.Tag() == "required" {
			return "Invalid request: missing message type."
		}
		return fmt.Sprintf("Unknown message type: %v", fe.Value())
	case "Provider":
		return fmt.Sprintf("Unknown provider: %v", fe.Value())
	case "Size":
		return fmt.Sprintf("Unknown image size: %v", fe.Value())
	case "Format":
		return fmt.Sprintf("Unknown insert format: %v", fe.Value())
	case "Image":
		return "Invalid request: no image given."
	case "Page":
		return "Invalid request: page must not be negative."
	}
	return fmt.Sprintf("Invalid request: %s failed %s", fe.Field(), fe.Tag())
}
