package editor

import (
	"fmt"
	"path/filepath"
	"sync"
)

// Window is a Host over a set of Buffers, one of which may be active.
type Window struct {
	mu       sync.Mutex
	buffers  map[string]*Buffer
	disposed map[string]func()
	active   *Buffer
	untitled int

	listeners listeners
}

func NewWindow() *Window {
	return &Window{
		buffers:  make(map[string]*Buffer),
		disposed: make(map[string]func()),
	}
}

// Open creates a buffer for fileName holding text and focuses it. An empty
// fileName opens an untitled buffer.
func (w *Window) Open(fileName string, text string) *Buffer {
	w.mu.Lock()
	var uri string
	if fileName == "" {
		w.untitled++
		uri = fmt.Sprintf("untitled:Untitled-%d", w.untitled)
	} else {
		abs, err := filepath.Abs(fileName)
		if err != nil {
			abs = fileName
		}
		uri = "file://" + filepath.ToSlash(abs)
	}
	if old, ok := w.buffers[uri]; ok {
		w.disposed[uri]()
		if w.active == old {
			w.active = nil
		}
	}
	b := NewBuffer(uri, fileName, text)
	w.buffers[uri] = b
	w.disposed[uri] = b.OnDidChange(w.listeners.emit)
	w.active = b
	w.mu.Unlock()
	return b
}

// Close drops the buffer and clears focus if it was active.
func (w *Window) Close(b *Buffer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if dispose, ok := w.disposed[b.URI()]; ok {
		dispose()
		delete(w.disposed, b.URI())
		delete(w.buffers, b.URI())
	}
	if w.active == b {
		w.active = nil
	}
}

func (w *Window) ActiveEditor() TextEditor {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active == nil {
		return nil
	}
	return w.active
}

func (w *Window) OnDidChangeText(fn func(ChangeEvent)) (dispose func()) {
	return w.listeners.add(fn)
}
