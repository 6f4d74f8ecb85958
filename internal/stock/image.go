package stock

import (
	"context"
	"fmt"
)

type Provider string

const (
	Unsplash Provider = "unsplash"
	Pexels   Provider = "pexels"
	Pixabay  Provider = "pixabay"
)

// Providers lists every supported provider in display order.
var Providers = []Provider{Unsplash, Pexels, Pixabay}

// ParseProvider maps a provider name onto the closed set.
func ParseProvider(name string) (Provider, error) {
	for _, p := range Providers {
		if string(p) == name {
			return p, nil
		}
	}
	return "", &Error{
		Kind:    ErrUnknownProvider,
		Message: fmt.Sprintf("Unknown provider: %s", name),
	}
}

// Title returns the human form of the provider name used in messages.
func (p Provider) Title() string {
	switch p {
	case Unsplash:
		return "Unsplash"
	case Pexels:
		return "Pexels"
	case Pixabay:
		return "Pixabay"
	}
	return string(p)
}

type InsertFormat string

const (
	FormatHTML     InsertFormat = "html"
	FormatMarkdown InsertFormat = "markdown"
	FormatCSS      InsertFormat = "css"
	FormatJSX      InsertFormat = "jsx"
	FormatURL      InsertFormat = "url"
)

type ImageSize string

const (
	SizeSmall    ImageSize = "small"
	SizeMedium   ImageSize = "medium"
	SizeLarge    ImageSize = "large"
	SizeOriginal ImageSize = "original"
)

type DownloadURLs struct {
	Small    string `json:"small"`
	Medium   string `json:"medium"`
	Large    string `json:"large"`
	Original string `json:"original"`
}

// Pick returns the URL for size, walking down the size ladder when the
// requested tier is empty. Unknown sizes are treated as medium.
func (d DownloadURLs) Pick(size ImageSize) string {
	switch size {
	case SizeSmall:
		return first(d.Small, d.Medium, d.Large, d.Original)
	case SizeLarge:
		return first(d.Large, d.Original, d.Medium, d.Small)
	case SizeOriginal:
		return first(d.Original, d.Large, d.Medium, d.Small)
	default:
		return first(d.Medium, d.Large, d.Original, d.Small)
	}
}

// Filled resolves every empty tier from its neighbours so that no tier is
// left blank while any URL exists.
func (d DownloadURLs) Filled() DownloadURLs {
	return DownloadURLs{
		Small:    d.Pick(SizeSmall),
		Medium:   d.Pick(SizeMedium),
		Large:    d.Pick(SizeLarge),
		Original: d.Pick(SizeOriginal),
	}
}

func (d DownloadURLs) Empty() bool {
	return d.Small == "" && d.Medium == "" && d.Large == "" && d.Original == ""
}

type Image struct {
	Id              string       `json:"id"`
	Provider        Provider     `json:"provider"`
	Description     string       `json:"description"`
	Photographer    string       `json:"photographer"`
	PhotographerUrl string       `json:"photographerUrl"`
	ThumbnailUrl    string       `json:"thumbnailUrl"`
	PreviewUrl      string       `json:"previewUrl"`
	DownloadUrls    DownloadURLs `json:"downloadUrls"`
	Width           int          `json:"width"`
	Height          int          `json:"height"`
	SourceUrl       string       `json:"sourceUrl"`
	Color           string       `json:"color,omitempty"`
	LocalPath       string       `json:"localPath,omitempty"`
}

// Usable reports whether the image carries at least one download URL.
func (img Image) Usable() bool {
	return !img.DownloadUrls.Empty()
}

type RateLimit struct {
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Reset     *int64 `json:"reset,omitempty"`
}

type SearchResult struct {
	Images       []Image    `json:"images"`
	TotalResults int        `json:"totalResults"`
	TotalPages   int        `json:"totalPages"`
	CurrentPage  int        `json:"currentPage"`
	Provider     Provider   `json:"provider"`
	RateLimit    *RateLimit `json:"rateLimit,omitempty"`
}

// Searcher is implemented by every provider adapter.
type Searcher interface {
	Name() Provider
	Search(ctx context.Context, query string, page int, perPage int) (SearchResult, error)
	IsConfigured() bool
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
