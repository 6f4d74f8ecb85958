package trigger

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/moddengine/devstock/internal/config"
	"github.com/moddengine/devstock/internal/editor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const debounce = 20 * time.Millisecond

func defaults() config.StaticSource {
	return config.StaticSource(config.DefaultSettings())
}

// typeInto types text one character at a time, like a user would.
func typeInto(t *testing.T, b *editor.Buffer, text string) {
	for _, r := range text {
		require.NoError(t, b.Type(string(r)))
	}
}

func TestTriggerDeletesPatternAndFiresOnce(t *testing.T) {
	w := editor.NewWindow()
	b := w.Open("page.md", "# Title\n")
	b.SetCursor(b.End())

	s := New(w, defaults(), zaptest.NewLogger(t), WithDebounce(debounce))
	defer s.Dispose()
	var fired atomic.Int32
	s.OnTrigger(func() { fired.Add(1) })

	typeInto(t, b, "see {/img} here")

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "# Title\nsee  here", b.Text())
	time.Sleep(5 * debounce)
	assert.Equal(t, int32(1), fired.Load())
}

func TestNoPatternNoSideEffect(t *testing.T) {
	w := editor.NewWindow()
	b := w.Open("page.md", "")
	s := New(w, defaults(), zaptest.NewLogger(t), WithDebounce(debounce))
	defer s.Dispose()
	var fired atomic.Int32
	s.OnTrigger(func() { fired.Add(1) })

	typeInto(t, b, "{img} {/im}")
	time.Sleep(5 * debounce)
	assert.Equal(t, int32(0), fired.Load())
	assert.Equal(t, "{img} {/im}", b.Text())
}

func TestPastedMultiLineText(t *testing.T) {
	w := editor.NewWindow()
	b := w.Open("index.html", "<body>\n</body>")
	s := New(w, defaults(), zaptest.NewLogger(t), WithDebounce(debounce))
	defer s.Dispose()
	var fired atomic.Int32
	s.OnTrigger(func() { fired.Add(1) })

	require.NoError(t, b.Insert(editor.Position{Line: 0, Character: 6}, "\n  <p>a</p>\n  {/img}"))

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "<body>\n  <p>a</p>\n  \n</body>", b.Text())
}

func TestCustomPatternReadFresh(t *testing.T) {
	src := &switchable{s: config.DefaultSettings()}
	w := editor.NewWindow()
	b := w.Open("a.css", "")
	s := New(w, src, zaptest.NewLogger(t), WithDebounce(debounce))
	defer s.Dispose()
	var fired atomic.Int32
	s.OnTrigger(func() { fired.Add(1) })

	src.set(func(st *config.Settings) { st.TriggerPattern = "::pic" })
	typeInto(t, b, "a ::pic")
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "a ", b.Text())
	// Deleting the trigger is itself an edit; let its scan run out.
	time.Sleep(3 * debounce)

	src.set(func(st *config.Settings) { st.EnableTrigger = false })
	typeInto(t, b, "::pic")
	time.Sleep(5 * debounce)
	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, "a ::pic", b.Text())
}

func TestIgnoresInactiveDocument(t *testing.T) {
	w := editor.NewWindow()
	background := w.Open("b.md", "")
	w.Open("a.md", "")
	s := New(w, defaults(), zaptest.NewLogger(t), WithDebounce(debounce))
	defer s.Dispose()
	var fired atomic.Int32
	s.OnTrigger(func() { fired.Add(1) })

	require.NoError(t, background.Type("{/img}"))
	time.Sleep(5 * debounce)
	assert.Equal(t, int32(0), fired.Load())
	assert.Equal(t, "{/img}", background.Text())
}

func TestDisposeCancelsPendingScan(t *testing.T) {
	w := editor.NewWindow()
	b := w.Open("a.md", "")
	s := New(w, defaults(), zaptest.NewLogger(t), WithDebounce(50*time.Millisecond))
	var fired atomic.Int32
	s.OnTrigger(func() { fired.Add(1) })

	require.NoError(t, b.Type("{/img}"))
	s.Dispose()
	s.Dispose()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
	assert.Equal(t, "{/img}", b.Text())

	require.NoError(t, b.Type("{/img}"))
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load(), "unsubscribed after dispose")
}

func TestDisposeWaitsForRunningCallback(t *testing.T) {
	w := editor.NewWindow()
	b := w.Open("a.md", "")
	s := New(w, defaults(), zaptest.NewLogger(t), WithDebounce(debounce))
	started := make(chan struct{})
	release := make(chan struct{})
	var fired atomic.Int32
	s.OnTrigger(func() {
		fired.Add(1)
		close(started)
		<-release
	})

	require.NoError(t, b.Type("{/img}"))
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}

	disposed := make(chan struct{})
	go func() {
		s.Dispose()
		close(disposed)
	}()
	select {
	case <-disposed:
		t.Fatal("Dispose returned while the callback was running")
	case <-time.After(3 * debounce):
	}
	close(release)
	select {
	case <-disposed:
	case <-time.After(time.Second):
		t.Fatal("Dispose never returned")
	}

	require.NoError(t, b.Type("{/img}"))
	time.Sleep(5 * debounce)
	assert.Equal(t, int32(1), fired.Load())
}

func TestLaterCallbackReplacesEarlier(t *testing.T) {
	w := editor.NewWindow()
	b := w.Open("a.md", "")
	s := New(w, defaults(), zaptest.NewLogger(t), WithDebounce(debounce))
	defer s.Dispose()
	var first, second atomic.Int32
	s.OnTrigger(func() { first.Add(1) })
	s.OnTrigger(func() { second.Add(1) })

	require.NoError(t, b.Type("{/img}"))
	assert.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}

// The fakes below never apply deletes, so every scan that runs finds the
// pattern again. That makes the number of scans observable.

type fakeDoc struct{ lines []string }

func (d *fakeDoc) URI() string         { return "mem://doc" }
func (d *fakeDoc) FileName() string    { return "doc.md" }
func (d *fakeDoc) LineCount() int      { return len(d.lines) }
func (d *fakeDoc) LineAt(i int) string { return d.lines[i] }
func (d *fakeDoc) Text() string        { return strings.Join(d.lines, "\n") }

func (d *fakeDoc) Document() editor.Document { return d }
func (d *fakeDoc) Cursor() editor.Position   { return editor.Position{} }

type recordingEditor struct {
	*fakeDoc
	mu    sync.Mutex
	edits []editor.Range
}

func (e *recordingEditor) Edit(r editor.Range, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.edits = append(e.edits, r)
	return nil
}

func (e *recordingEditor) Edits() []editor.Range {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]editor.Range(nil), e.edits...)
}

type fakeHost struct {
	ed *recordingEditor
	fn func(editor.ChangeEvent)
}

func (h *fakeHost) ActiveEditor() editor.TextEditor { return h.ed }
func (h *fakeHost) OnDidChangeText(fn func(editor.ChangeEvent)) func() {
	h.fn = fn
	return func() { h.fn = nil }
}

func change(line, char int, text string) editor.Change {
	p := editor.Position{Line: line, Character: char}
	return editor.Change{Range: editor.Range{Start: p, End: p}, Text: text}
}

func TestDebounceCollapsesBurst(t *testing.T) {
	doc := &fakeDoc{lines: []string{"intro", "x {/img} y"}}
	host := &fakeHost{ed: &recordingEditor{fakeDoc: doc}}
	s := New(host, defaults(), zaptest.NewLogger(t), WithDebounce(40*time.Millisecond))
	defer s.Dispose()
	var fired atomic.Int32
	s.OnTrigger(func() { fired.Add(1) })

	for i := 0; i < 5; i++ {
		host.fn(editor.ChangeEvent{Document: doc, Changes: []editor.Change{change(1, 7, "}")}})
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
	edits := host.ed.Edits()
	require.Len(t, edits, 1)
	assert.Equal(t, editor.Range{
		Start: editor.Position{Line: 1, Character: 2},
		End:   editor.Position{Line: 1, Character: 8},
	}, edits[0])
}

func TestSingleUnrelatedKeystrokeSkipsScan(t *testing.T) {
	doc := &fakeDoc{lines: []string{"{/img} already here"}}
	host := &fakeHost{ed: &recordingEditor{fakeDoc: doc}}
	s := New(host, defaults(), zaptest.NewLogger(t), WithDebounce(debounce))
	defer s.Dispose()
	var fired atomic.Int32
	s.OnTrigger(func() { fired.Add(1) })

	host.fn(editor.ChangeEvent{Document: doc, Changes: []editor.Change{change(0, 19, "e")}})
	time.Sleep(5 * debounce)
	assert.Equal(t, int32(0), fired.Load())

	host.fn(editor.ChangeEvent{Document: doc, Changes: []editor.Change{change(0, 19, "ee")}})
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestOnlyChangedLinesAreScanned(t *testing.T) {
	doc := &fakeDoc{lines: []string{"{/img}", "plain", "more"}}
	host := &fakeHost{ed: &recordingEditor{fakeDoc: doc}}
	s := New(host, defaults(), zaptest.NewLogger(t), WithDebounce(debounce))
	defer s.Dispose()
	var fired atomic.Int32
	s.OnTrigger(func() { fired.Add(1) })

	host.fn(editor.ChangeEvent{Document: doc, Changes: []editor.Change{change(1, 5, "}")}})
	host.fn(editor.ChangeEvent{Document: doc, Changes: []editor.Change{change(2, 0, "x\ny\nz")}})
	time.Sleep(5 * debounce)
	assert.Equal(t, int32(0), fired.Load(), "line 0 was not touched and lines past the end are skipped")
}

func TestScanStopsAtFirstMatch(t *testing.T) {
	doc := &fakeDoc{lines: []string{"a {/img}", "b {/img}"}}
	host := &fakeHost{ed: &recordingEditor{fakeDoc: doc}}
	s := New(host, defaults(), zaptest.NewLogger(t), WithDebounce(debounce))
	defer s.Dispose()
	var fired atomic.Int32
	s.OnTrigger(func() { fired.Add(1) })

	host.fn(editor.ChangeEvent{Document: doc, Changes: []editor.Change{
		change(1, 8, "}"),
		change(0, 8, "}"),
	}})
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	edits := host.ed.Edits()
	require.Len(t, edits, 1)
	assert.Equal(t, editor.Range{
		Start: editor.Position{Line: 1, Character: 2},
		End:   editor.Position{Line: 1, Character: 8},
	}, edits[0], "changes are scanned in order")
}

func TestEmptyPatternNeverScans(t *testing.T) {
	st := config.DefaultSettings()
	st.TriggerPattern = ""
	doc := &fakeDoc{lines: []string{"anything"}}
	host := &fakeHost{ed: &recordingEditor{fakeDoc: doc}}
	s := New(host, config.StaticSource(st), zaptest.NewLogger(t), WithDebounce(debounce))
	defer s.Dispose()
	host.fn(editor.ChangeEvent{Document: doc, Changes: []editor.Change{change(0, 0, "ab")}})
	time.Sleep(5 * debounce)
	assert.Empty(t, host.ed.Edits())
}

func TestTouchesPattern(t *testing.T) {
	assert.True(t, touchesPattern("{", "{/img}"))
	assert.True(t, touchesPattern("}", "{/img}"))
	assert.False(t, touchesPattern("i", "{/img}"))
	assert.True(t, touchesPattern("é", "éclair"))
}

type switchable struct {
	mu sync.Mutex
	s  config.Settings
}

func (s *switchable) Settings() config.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.s
}

func (s *switchable) set(fn func(*config.Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.s)
}
