package editor

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

// Buffer is an in-memory document with a single cursor.
type Buffer struct {
	uri      string
	fileName string

	mu        sync.Mutex
	lines     []string
	cursor    Position
	listeners listeners
}

func NewBuffer(uri string, fileName string, text string) *Buffer {
	return &Buffer{
		uri:      uri,
		fileName: fileName,
		lines:    strings.Split(text, "\n"),
	}
}

func (b *Buffer) URI() string      { return b.uri }
func (b *Buffer) FileName() string { return b.fileName }
func (b *Buffer) Document() Document {
	return b
}

func (b *Buffer) LineCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// LineAt returns the text of line, or "" when it does not exist.
func (b *Buffer) LineAt(line int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if line < 0 || line >= len(b.lines) {
		return ""
	}
	return b.lines[line]
}

func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}

func (b *Buffer) Cursor() Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

// SetCursor moves the cursor, clamped to the document.
func (b *Buffer) SetCursor(p Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cursor = b.clamp(p)
}

// End is the position after the last character.
func (b *Buffer) End() Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	last := len(b.lines) - 1
	return Position{Line: last, Character: utf8.RuneCountInString(b.lines[last])}
}

// Insert puts text at pos.
func (b *Buffer) Insert(pos Position, text string) error {
	return b.Edit(Range{Start: pos, End: pos}, text)
}

// Type inserts text at the cursor, the way a keystroke would.
func (b *Buffer) Type(text string) error {
	return b.Insert(b.Cursor(), text)
}

// Edit replaces r with text as one atomic change and notifies listeners.
func (b *Buffer) Edit(r Range, text string) error {
	b.mu.Lock()
	if err := b.check(r); err != nil {
		b.mu.Unlock()
		return err
	}
	if r.End.Before(r.Start) {
		r.Start, r.End = r.End, r.Start
	}

	startLine := []rune(b.lines[r.Start.Line])
	endLine := []rune(b.lines[r.End.Line])
	joined := string(startLine[:r.Start.Character]) + text + string(endLine[r.End.Character:])
	replacement := strings.Split(joined, "\n")

	lines := make([]string, 0, len(b.lines)-(r.End.Line-r.Start.Line)+len(replacement)-1)
	lines = append(lines, b.lines[:r.Start.Line]...)
	lines = append(lines, replacement...)
	lines = append(lines, b.lines[r.End.Line+1:]...)
	b.lines = lines

	b.cursor = shift(b.cursor, r, text)
	b.mu.Unlock()

	b.listeners.emit(ChangeEvent{
		Document: b,
		Changes:  []Change{{Range: r, Text: text}},
	})
	return nil
}

// OnDidChange subscribes to edits of this buffer.
func (b *Buffer) OnDidChange(fn func(ChangeEvent)) (dispose func()) {
	return b.listeners.add(fn)
}

func (b *Buffer) check(r Range) error {
	for _, p := range []Position{r.Start, r.End} {
		if p.Line < 0 || p.Line >= len(b.lines) {
			return fmt.Errorf("line %d out of range (document has %d lines)", p.Line, len(b.lines))
		}
		if n := utf8.RuneCountInString(b.lines[p.Line]); p.Character < 0 || p.Character > n {
			return fmt.Errorf("character %d out of range on line %d", p.Character, p.Line)
		}
	}
	return nil
}

func (b *Buffer) clamp(p Position) Position {
	if p.Line < 0 {
		return Position{}
	}
	if p.Line >= len(b.lines) {
		p.Line = len(b.lines) - 1
	}
	n := utf8.RuneCountInString(b.lines[p.Line])
	if p.Character < 0 {
		p.Character = 0
	}
	if p.Character > n {
		p.Character = n
	}
	return p
}

// shift moves pos to account for r being replaced by text.
func shift(pos Position, r Range, text string) Position {
	if pos.Before(r.Start) {
		return pos
	}
	newlines := strings.Count(text, "\n")
	end := Position{Line: r.Start.Line + newlines}
	if newlines == 0 {
		end.Character = r.Start.Character + utf8.RuneCountInString(text)
	} else {
		end.Character = utf8.RuneCountInString(text[strings.LastIndex(text, "\n")+1:])
	}
	if !r.End.Before(pos) {
		return end
	}
	if pos.Line == r.End.Line {
		return Position{Line: end.Line, Character: end.Character + pos.Character - r.End.Character}
	}
	return Position{Line: pos.Line + newlines - (r.End.Line - r.Start.Line), Character: pos.Character}
}

type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(ChangeEvent)
}

func (l *listeners) add(fn func(ChangeEvent)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(ChangeEvent))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

func (l *listeners) emit(ev ChangeEvent) {
	l.mu.Lock()
	fns := make([]func(ChangeEvent), 0, len(l.fns))
	for i := 0; i < l.next; i++ {
		if fn, ok := l.fns[i]; ok {
			fns = append(fns, fn)
		}
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
