package insert

import (
	"testing"

	"github.com/moddengine/devstock/internal/editor"
	"github.com/moddengine/devstock/internal/stock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDetectFormat(t *testing.T) {
	cases := map[string]stock.InsertFormat{
		"index.html":       stock.FormatHTML,
		"views/page.EJS":   stock.FormatHTML,
		"a.php":            stock.FormatHTML,
		"README.md":        stock.FormatMarkdown,
		"post.mdx":         stock.FormatMarkdown,
		"style.scss":       stock.FormatCSS,
		"theme.less":       stock.FormatCSS,
		"App.tsx":          stock.FormatJSX,
		"main.js":          stock.FormatJSX,
		"Card.vue":         stock.FormatJSX,
		"Widget.svelte":    stock.FormatJSX,
		"notes.txt":        stock.FormatURL,
		"Makefile":         stock.FormatURL,
		"/tmp/dir.md/file": stock.FormatURL,
	}
	for name, want := range cases {
		assert.Equal(t, want, DetectFormat(name), name)
	}
}

func TestGenerateSnippetTemplates(t *testing.T) {
	img := stock.Image{Width: 640, Height: 480}
	url := "https://x/a.jpg"

	assert.Equal(t, `<img src="https://x/a.jpg" alt="cat" width="640" height="480" />`,
		GenerateSnippet(stock.FormatHTML, url, "cat", img, ""))
	assert.Equal(t, "![cat](https://x/a.jpg)",
		GenerateSnippet(stock.FormatMarkdown, url, "cat", img, ""))
	assert.Equal(t, "background-image: url('https://x/a.jpg');",
		GenerateSnippet(stock.FormatCSS, url, "cat", img, "  "))
	assert.Equal(t, `<img src="https://x/a.jpg" alt="cat" />`,
		GenerateSnippet(stock.FormatJSX, url, "cat", img, "return "))
	assert.Equal(t, url, GenerateSnippet(stock.FormatURL, url, "cat", img, ""))
}

func TestGenerateSnippetInsideConstruct(t *testing.T) {
	url := "https://x/a.jpg"
	img := stock.Image{}

	for _, before := range []string{"background: url(", "  background: url('", `background: url("  `} {
		assert.Equal(t, url, GenerateSnippet(stock.FormatCSS, url, "a", img, before), before)
	}
	for _, before := range []string{"<img src={", `<Image src="`, "<img src='"} {
		assert.Equal(t, url, GenerateSnippet(stock.FormatJSX, url, "a", img, before), before)
	}
	// The override only applies to its own dialect.
	assert.Equal(t, "![a](https://x/a.jpg)", GenerateSnippet(stock.FormatMarkdown, url, "a", img, "url("))
	assert.Equal(t, `<img src="https://x/a.jpg" alt="a" width="0" height="0" />`,
		GenerateSnippet(stock.FormatHTML, url, "a", img, `<img src="`))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" Markdown ")
	require.NoError(t, err)
	assert.Equal(t, stock.FormatMarkdown, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, stock.InsertFormat(""), f)

	_, err = ParseFormat("bbcode")
	assert.Error(t, err)
}

func TestInsertAtCursor(t *testing.T) {
	w := editor.NewWindow()
	b := w.Open("page.md", "# Cats\n\nend")
	b.SetCursor(editor.Position{Line: 1, Character: 0})
	ins := NewInserter(w, zap.NewNop())

	img := stock.Image{Id: "pexels-1", Description: "a cat", PreviewUrl: "https://p/cat.jpg"}
	got, err := ins.Insert(img, "", "")
	require.NoError(t, err)

	assert.Equal(t, stock.FormatMarkdown, got.Format)
	assert.Equal(t, "![a cat](https://p/cat.jpg)", got.Snippet)
	assert.Equal(t, editor.Position{Line: 1, Character: 0}, got.Position)
	assert.Equal(t, "# Cats\n![a cat](https://p/cat.jpg)\nend", b.Text())
}

func TestInsertPrefersLocalPathAndDefaultsAlt(t *testing.T) {
	w := editor.NewWindow()
	b := w.Open("index.html", "")
	ins := NewInserter(w, zap.NewNop())

	img := stock.Image{PreviewUrl: "https://p/x.jpg", Width: 10, Height: 20}
	got, err := ins.Insert(img, "", "images/x-123456.jpg")
	require.NoError(t, err)
	assert.Equal(t, `<img src="images/x-123456.jpg" alt="Stock image" width="10" height="20" />`, got.Snippet)
	assert.Equal(t, got.Snippet, b.Text())

	img.LocalPath = "images/y.jpg"
	b2 := w.Open("notes.txt", "")
	_, err = ins.Insert(img, "", "")
	require.NoError(t, err)
	assert.Equal(t, "images/y.jpg", b2.Text())
}

func TestExplicitFormatOverridesDetection(t *testing.T) {
	w := editor.NewWindow()
	b := w.Open("App.tsx", "const s = { backgroundImage: url(")
	b.SetCursor(b.End())
	ins := NewInserter(w, zap.NewNop())

	got, err := ins.Insert(stock.Image{PreviewUrl: "https://p/x.jpg"}, stock.FormatCSS, "")
	require.NoError(t, err)
	assert.Equal(t, "https://p/x.jpg", got.Snippet)
	assert.Equal(t, "const s = { backgroundImage: url(https://p/x.jpg", b.Text())
}

func TestInsertUsesRunePrefix(t *testing.T) {
	w := editor.NewWindow()
	b := w.Open("a.css", "é { background: url(")
	b.SetCursor(b.End())
	ins := NewInserter(w, zap.NewNop())

	got, err := ins.Insert(stock.Image{PreviewUrl: "u"}, "", "")
	require.NoError(t, err)
	assert.Equal(t, "u", got.Snippet)
}

func TestInsertWithoutEditor(t *testing.T) {
	w := editor.NewWindow()
	ins := NewInserter(w, zap.NewNop())

	_, err := ins.Insert(stock.Image{PreviewUrl: "https://p/x.jpg"}, "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, stock.ErrNoActiveEditor)
	assert.Equal(t, "No active text editor. Please open a file first.", err.Error())
}

func TestInsertRejectsImageWithoutUrls(t *testing.T) {
	w := editor.NewWindow()
	b := w.Open("page.md", "intro ")
	ins := NewInserter(w, zap.NewNop())

	_, err := ins.Insert(stock.Image{Id: "unsplash-x"}, "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, stock.ErrNoDownloadURL)
	assert.Equal(t, "No image URL available for this image.", err.Error())
	assert.Equal(t, "intro ", b.Text())

	got, err := ins.Insert(stock.Image{Id: "unsplash-y", DownloadUrls: stock.DownloadURLs{Large: "https://u/l.jpg"}}, "", "")
	require.NoError(t, err)
	assert.Equal(t, "![Stock image](https://u/l.jpg)", got.Snippet)
}
