package bridge

import (
	"sync"

	"go.uber.org/zap"
)

// LogHost is the Host used when no desktop is attached. The clipboard is
// kept in memory, and links and notifications are only logged.
type LogHost struct {
	log *zap.Logger

	mu        sync.Mutex
	clipboard string
	opened    []string
}

func NewLogHost(log *zap.Logger) *LogHost {
	return &LogHost{log: log.Named("host")}
}

func (h *LogHost) CopyToClipboard(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clipboard = text
	return nil
}

func (h *LogHost) OpenExternal(url string) error {
	h.mu.Lock()
	h.opened = append(h.opened, url)
	h.mu.Unlock()
	h.log.Info("Open link", zap.String("url", url))
	return nil
}

func (h *LogHost) Notify(msg string) {
	h.log.Info(msg)
}

func (h *LogHost) Clipboard() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clipboard
}

// Opened lists every link passed to OpenExternal.
func (h *LogHost) Opened() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.opened...)
}
