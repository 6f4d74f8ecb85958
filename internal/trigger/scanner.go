// Package trigger watches text edits for a literal trigger pattern, removes
// it from the document and notifies a callback.
package trigger

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/moddengine/devstock/internal/config"
	"github.com/moddengine/devstock/internal/editor"
	"go.uber.org/zap"
)

const DefaultDebounce = 150 * time.Millisecond

type Option func(*Scanner)

func WithDebounce(d time.Duration) Option {
	return func(s *Scanner) {
		s.debounce = d
	}
}

// Scanner is idle until a plausible edit arrives, then waits for the
// debounce window to pass quietly before scanning the touched lines. Each
// new edit restarts the window, so only the last edit of a burst is scanned.
type Scanner struct {
	host     editor.Host
	settings config.Source
	log      *zap.Logger
	debounce time.Duration

	mu          sync.Mutex
	timer       *time.Timer
	generation  uint64
	callback    func()
	disposed    bool
	unsubscribe func()

	// firing is held while the callback runs.
	firing sync.Mutex
}

// New starts watching host for edits.
func New(host editor.Host, settings config.Source, log *zap.Logger, opts ...Option) *Scanner {
	s := &Scanner{
		host:     host,
		settings: settings,
		log:      log.Named("trigger"),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.unsubscribe = host.OnDidChangeText(s.handleChange)
	return s
}

// OnTrigger sets the callback run after a trigger was found and deleted.
// There is a single slot: a later call replaces the earlier callback.
func (s *Scanner) OnTrigger(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = fn
}

// Dispose stops watching and cancels a pending scan. It waits for a running
// callback to return, so no callback fires afterwards. It must not be called
// from the callback itself.
func (s *Scanner) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	unsubscribe := s.unsubscribe
	s.mu.Unlock()
	unsubscribe()

	s.firing.Lock()
	s.firing.Unlock()
}

func (s *Scanner) handleChange(ev editor.ChangeEvent) {
	settings := s.settings.Settings()
	if !settings.EnableTrigger || len(ev.Changes) == 0 {
		return
	}
	pattern := settings.TriggerPattern
	if pattern == "" {
		return
	}
	active := s.host.ActiveEditor()
	if active == nil || ev.Document == nil || active.Document().URI() != ev.Document.URI() {
		return
	}
	// A single keystroke that is neither the first nor the last character of
	// the pattern cannot have completed it.
	last := ev.Changes[len(ev.Changes)-1]
	if utf8.RuneCountInString(last.Text) == 1 && !touchesPattern(last.Text, pattern) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.generation++
	generation := s.generation
	s.timer = time.AfterFunc(s.debounce, func() {
		s.fire(generation, ev, active, pattern)
	})
}

func (s *Scanner) fire(generation uint64, ev editor.ChangeEvent, active editor.TextEditor, pattern string) {
	s.mu.Lock()
	if s.disposed || generation != s.generation {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	if !s.scan(ev, active, pattern) {
		return
	}

	s.firing.Lock()
	defer s.firing.Unlock()
	s.mu.Lock()
	callback := s.callback
	disposed := s.disposed
	s.mu.Unlock()
	if callback != nil && !disposed {
		callback()
	}
}

// scan looks at the lines each change touched and deletes the first
// occurrence of pattern. It reports whether one was removed.
func (s *Scanner) scan(ev editor.ChangeEvent, active editor.TextEditor, pattern string) bool {
	doc := ev.Document
	for _, change := range ev.Changes {
		startLine := change.Range.Start.Line
		endLine := startLine + strings.Count(change.Text, "\n")
		for i := startLine; i <= endLine; i++ {
			if i < 0 || i >= doc.LineCount() {
				continue
			}
			line := doc.LineAt(i)
			idx := strings.Index(line, pattern)
			if idx == -1 {
				continue
			}
			start := utf8.RuneCountInString(line[:idx])
			span := editor.Range{
				Start: editor.Position{Line: i, Character: start},
				End:   editor.Position{Line: i, Character: start + utf8.RuneCountInString(pattern)},
			}
			if err := active.Edit(span, ""); err != nil {
				s.log.Warn("Failed to remove trigger text", zap.String("uri", doc.URI()), zap.Error(err))
				return false
			}
			s.log.Debug("Trigger detected", zap.String("uri", doc.URI()), zap.Int("line", i))
			return true
		}
	}
	return false
}

func touchesPattern(typed string, pattern string) bool {
	firstRune, _ := utf8.DecodeRuneInString(pattern)
	lastRune, _ := utf8.DecodeLastRuneInString(pattern)
	return strings.ContainsRune(typed, firstRune) || strings.ContainsRune(typed, lastRune)
}
