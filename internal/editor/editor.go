// Package editor describes the text surface the scanner and inserter work
// against, and provides an in-memory implementation of it.
//
// Positions count lines from zero and characters as runes within a line.
package editor

type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Before reports whether p sorts strictly before o.
func (p Position) Before(o Position) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Character < o.Character
}

type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Change is one edit: Range was replaced by Text.
type Change struct {
	Range Range
	Text  string
}

type ChangeEvent struct {
	Document Document
	Changes  []Change
}

type Document interface {
	URI() string
	FileName() string
	LineCount() int
	LineAt(line int) string
	Text() string
}

// TextEditor is a document with a cursor that can be edited.
type TextEditor interface {
	Document() Document
	Cursor() Position
	Edit(r Range, text string) error
}

// Host is the editor application: it knows which editor has focus and
// reports every text change.
type Host interface {
	// ActiveEditor returns nil when nothing is focused.
	ActiveEditor() TextEditor
	OnDidChangeText(fn func(ChangeEvent)) (dispose func())
}
