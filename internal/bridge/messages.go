// Package bridge speaks the message protocol used by a results panel: it
// takes request messages, runs searches, downloads and insertions, and
// answers with response messages.
package bridge

import (
	"github.com/moddengine/devstock/internal/editor"
	"github.com/moddengine/devstock/internal/stock"
)

// Request types.
const (
	TypeSearch       = "search"
	TypeDownload     = "download"
	TypeInsert       = "insert"
	TypeCopyURL      = "copyUrl"
	TypeOpenExternal = "openExternal"
	TypeGetConfig    = "getConfig"
	TypeReady        = "ready"
)

// Response types.
const (
	TypeSearching        = "searching"
	TypeSearchResults    = "searchResults"
	TypeDownloadComplete = "downloadComplete"
	TypeInsertComplete   = "insertComplete"
	TypeError            = "error"
	TypeConfig           = "config"
)

// Document is the editor state an insert request runs against.
type Document struct {
	FileName string          `json:"fileName" validate:"required"`
	Text     string          `json:"text"`
	Cursor   editor.Position `json:"cursor"`
}

// Request is any message sent to the handler. Which fields matter depends
// on Type.
type Request struct {
	Type        string       `json:"type" validate:"required,oneof=search download insert copyUrl openExternal getConfig ready"`
	Query       string       `json:"query,omitempty"`
	Provider    string       `json:"provider,omitempty" validate:"omitempty,oneof=unsplash pexels pixabay"`
	Page        int          `json:"page,omitempty" validate:"gte=0"`
	IsSuggested bool         `json:"isSuggested,omitempty"`
	Image       *stock.Image `json:"image,omitempty" validate:"required_if=Type download,required_if=Type insert"`
	Size        string       `json:"size,omitempty" validate:"omitempty,oneof=small medium large original"`
	Format      string       `json:"format,omitempty" validate:"omitempty,oneof=html markdown css jsx url"`
	Url         string       `json:"url,omitempty"`
	Document    *Document    `json:"document,omitempty"`
}

type Searching struct {
	Type        string `json:"type"`
	Query       string `json:"query"`
	IsSuggested bool   `json:"isSuggested,omitempty"`
}

// SearchResults carries Seq, the number of the search it answers. Stale is
// set when a newer search started before this one finished.
type SearchResults struct {
	Type        string             `json:"type"`
	Data        stock.SearchResult `json:"data"`
	IsSuggested bool               `json:"isSuggested,omitempty"`
	Seq         uint64             `json:"seq"`
	Stale       bool               `json:"stale,omitempty"`
}

type DownloadComplete struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	FilePath string `json:"filePath,omitempty"`
	Error    string `json:"error,omitempty"`
}

type InsertComplete struct {
	Type     string           `json:"type"`
	Success  bool             `json:"success"`
	Snippet  string           `json:"snippet,omitempty"`
	Position *editor.Position `json:"position,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Config struct {
	Type            string         `json:"type"`
	DefaultProvider stock.Provider `json:"defaultProvider"`
	HasUnsplash     bool           `json:"hasUnsplash"`
	HasPexels       bool           `json:"hasPexels"`
	HasPixabay      bool           `json:"hasPixabay"`
}

func errorMessage(msg string) Error {
	return Error{Type: TypeError, Message: msg}
}
