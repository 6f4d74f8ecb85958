// Package insert turns an image into the text snippet that fits the file
// being edited and places it at the cursor.
package insert

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/moddengine/devstock/internal/editor"
	"github.com/moddengine/devstock/internal/stock"
	"go.uber.org/zap"
)

const defaultAlt = "Stock image"

var formatByExt = map[string]stock.InsertFormat{
	".html":     stock.FormatHTML,
	".htm":      stock.FormatHTML,
	".ejs":      stock.FormatHTML,
	".hbs":      stock.FormatHTML,
	".pug":      stock.FormatHTML,
	".php":      stock.FormatHTML,
	".md":       stock.FormatMarkdown,
	".markdown": stock.FormatMarkdown,
	".mdx":      stock.FormatMarkdown,
	".css":      stock.FormatCSS,
	".scss":     stock.FormatCSS,
	".sass":     stock.FormatCSS,
	".less":     stock.FormatCSS,
	".jsx":      stock.FormatJSX,
	".tsx":      stock.FormatJSX,
	".js":       stock.FormatJSX,
	".ts":       stock.FormatJSX,
	".vue":      stock.FormatJSX,
	".svelte":   stock.FormatJSX,
}

// DetectFormat picks the snippet dialect from the file extension.
// Anything not in the table gets a bare URL.
func DetectFormat(fileName string) stock.InsertFormat {
	if f, ok := formatByExt[strings.ToLower(filepath.Ext(fileName))]; ok {
		return f
	}
	return stock.FormatURL
}

// ParseFormat accepts an explicit format name. An empty name means detect.
func ParseFormat(name string) (stock.InsertFormat, error) {
	switch f := stock.InsertFormat(strings.ToLower(strings.TrimSpace(name))); f {
	case "", stock.FormatHTML, stock.FormatMarkdown, stock.FormatCSS, stock.FormatJSX, stock.FormatURL:
		return f, nil
	}
	return "", fmt.Errorf("unknown insert format %q", name)
}

// GenerateSnippet renders imageUrl in format. before is the line text left
// of the cursor; when it shows the cursor already sits inside a url( or a
// src= attribute only the URL is returned.
func GenerateSnippet(format stock.InsertFormat, imageUrl string, alt string, img stock.Image, before string) string {
	prefix := strings.TrimSpace(before)
	switch format {
	case stock.FormatCSS:
		if hasAnySuffix(prefix, "url(", "url('", `url("`) {
			return imageUrl
		}
		return fmt.Sprintf("background-image: url('%s');", imageUrl)
	case stock.FormatJSX:
		if hasAnySuffix(prefix, "src={", `src="`, "src='") {
			return imageUrl
		}
		return fmt.Sprintf(`<img src="%s" alt="%s" />`, imageUrl, alt)
	case stock.FormatHTML:
		return fmt.Sprintf(`<img src="%s" alt="%s" width="%d" height="%d" />`, imageUrl, alt, img.Width, img.Height)
	case stock.FormatMarkdown:
		return fmt.Sprintf("![%s](%s)", alt, imageUrl)
	default:
		return imageUrl
	}
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

// Inserted describes one completed insertion.
type Inserted struct {
	Snippet  string
	Format   stock.InsertFormat
	Position editor.Position
}

type Inserter struct {
	host editor.Host
	log  *zap.Logger
}

func NewInserter(host editor.Host, log *zap.Logger) *Inserter {
	return &Inserter{host: host, log: log.Named("insert")}
}

// Insert writes a snippet for img at the cursor of the focused editor.
// localPath wins over the preview URL when a download already happened.
// An empty format is detected from the document's file name.
func (i *Inserter) Insert(img stock.Image, format stock.InsertFormat, localPath string) (Inserted, error) {
	active := i.host.ActiveEditor()
	if active == nil {
		return Inserted{}, &stock.Error{
			Kind:    stock.ErrNoActiveEditor,
			Message: "No active text editor. Please open a file first.",
		}
	}
	doc := active.Document()
	if format == "" {
		format = DetectFormat(doc.FileName())
	}
	imageUrl := localPath
	if imageUrl == "" {
		imageUrl = img.LocalPath
	}
	if imageUrl == "" {
		imageUrl = img.PreviewUrl
	}
	if imageUrl == "" {
		if !img.Usable() {
			return Inserted{}, &stock.Error{
				Kind:    stock.ErrNoDownloadURL,
				Message: "No image URL available for this image.",
			}
		}
		imageUrl = img.DownloadUrls.Pick(stock.SizeMedium)
	}
	alt := img.Description
	if alt == "" {
		alt = defaultAlt
	}

	pos := active.Cursor()
	snippet := GenerateSnippet(format, imageUrl, alt, img, linePrefix(doc, pos))
	if err := active.Edit(editor.Range{Start: pos, End: pos}, snippet); err != nil {
		i.log.Error("Insert failed", zap.String("uri", doc.URI()), zap.Error(err))
		return Inserted{}, fmt.Errorf("insert image: %w", err)
	}
	i.log.Debug("Inserted image",
		zap.String("id", img.Id),
		zap.String("format", string(format)),
		zap.String("uri", doc.URI()))
	return Inserted{Snippet: snippet, Format: format, Position: pos}, nil
}

func linePrefix(doc editor.Document, pos editor.Position) string {
	if pos.Line < 0 || pos.Line >= doc.LineCount() || pos.Character < 0 {
		return ""
	}
	line := []rune(doc.LineAt(pos.Line))
	if pos.Character < len(line) {
		line = line[:pos.Character]
	}
	return string(line)
}
