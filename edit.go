package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/moddengine/devstock/internal/bridge"
	"github.com/moddengine/devstock/internal/editor"
	"github.com/moddengine/devstock/internal/insert"
	"github.com/moddengine/devstock/internal/stock"
	"github.com/moddengine/devstock/internal/trigger"
	"go.uber.org/zap"
)

var editCommands = []prompt.Suggest{
	{Text: ":w", Description: "write the file"},
	{Text: ":q", Description: "quit"},
	{Text: ":wq", Description: "write and quit"},
	{Text: ":p", Description: "print the buffer"},
	{Text: ":img", Description: "search and insert an image at the cursor"},
	{Text: ":line", Description: "move the cursor to the end of a line"},
	{Text: ":format", Description: "insert as html, markdown, css, jsx or url; blank to detect"},
}

func completer(d prompt.Document) []prompt.Suggest {
	word := d.GetWordBeforeCursor()
	if !strings.HasPrefix(word, ":") || strings.Contains(d.TextBeforeCursor(), " ") {
		return nil
	}
	return prompt.FilterHasPrefix(editCommands, word, true)
}

// imageSearcher is the registry as the editor session uses it.
type imageSearcher interface {
	Search(ctx context.Context, name string, query string, page int) (stock.SearchResult, error)
	DefaultName() stock.Provider
}

// session is one interactive edit of a single file. Each input line is
// typed into the buffer; the trigger scanner decides when to offer images.
type session struct {
	fileName  string
	window    *editor.Window
	buf       *editor.Buffer
	search    imageSearcher
	download  bridge.Downloader
	inserter  *insert.Inserter
	format    stock.InsertFormat
	triggered chan struct{}
	readLine  func(prefix string) (string, bool)
	out       io.Writer
	wait      time.Duration
	log       *zap.Logger
}

// runEditor edits fileName until :q. format forces the snippet format; an
// empty one is detected from the file name.
func runEditor(ctx context.Context, a *app, fileName string, format string, out io.Writer) error {
	insertFormat, err := insert.ParseFormat(format)
	if err != nil {
		return err
	}
	text, err := os.ReadFile(fileName)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	workspace := a.cfg.Workspace
	if workspace == "" {
		abs, err := filepath.Abs(fileName)
		if err != nil {
			return err
		}
		workspace = filepath.Dir(abs)
	}
	dl, err := a.downloader(ctx, workspace, nil)
	if err != nil {
		return err
	}

	window := editor.NewWindow()
	s := newSession(window, fileName, string(text), a.registry(), dl, a.log)
	s.out = out
	s.format = insertFormat
	s.readLine = stdinReader()

	scanner := trigger.New(window, a.settings, a.log)
	defer scanner.Dispose()
	scanner.OnTrigger(s.onTrigger)

	fmt.Fprintf(out, "Editing %s (%d lines). Type %q to pick an image, :q to quit.\n",
		fileName, s.buf.LineCount(), a.settings.Settings().TriggerPattern)
	return s.run(ctx)
}

func newSession(window *editor.Window, fileName string, text string, search imageSearcher, dl bridge.Downloader, log *zap.Logger) *session {
	buf := window.Open(fileName, text)
	buf.SetCursor(buf.End())
	return &session{
		fileName:  fileName,
		window:    window,
		buf:       buf,
		search:    search,
		download:  dl,
		inserter:  insert.NewInserter(window, log),
		triggered: make(chan struct{}, 1),
		out:       io.Discard,
		wait:      trigger.DefaultDebounce + 100*time.Millisecond,
		log:       log.Named("edit"),
	}
}

// stdinReader uses go-prompt on a terminal and plain line reads otherwise.
func stdinReader() func(string) (string, bool) {
	if info, err := os.Stdin.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
		return func(prefix string) (string, bool) {
			return prompt.Input(prefix, completer, prompt.OptionTitle("devstock edit")), true
		}
	}
	return lineReader(os.Stdin)
}

func lineReader(r io.Reader) func(string) (string, bool) {
	sc := bufio.NewScanner(r)
	return func(string) (string, bool) {
		if !sc.Scan() {
			return "", false
		}
		return sc.Text(), true
	}
}

func (s *session) onTrigger() {
	select {
	case s.triggered <- struct{}{}:
	default:
	}
}

func (s *session) run(ctx context.Context) error {
	defer s.window.Close(s.buf)
	for {
		line, ok := s.readLine(fmt.Sprintf("%d> ", s.buf.Cursor().Line+1))
		if !ok {
			return nil
		}
		cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
		switch cmd {
		case ":q":
			return nil
		case ":w":
			if err := s.save(); err != nil {
				return err
			}
			continue
		case ":wq":
			return s.save()
		case ":p":
			for i := 0; i < s.buf.LineCount(); i++ {
				fmt.Fprintf(s.out, "%4d  %s\n", i+1, s.buf.LineAt(i))
			}
			continue
		case ":img":
			s.pick(ctx, arg)
			continue
		case ":format":
			format, err := insert.ParseFormat(arg)
			if err != nil {
				fmt.Fprintf(s.out, "Unknown format %q\n", arg)
				continue
			}
			s.format = format
			if format == "" {
				fmt.Fprintln(s.out, "Format: detect from file name")
			} else {
				fmt.Fprintf(s.out, "Format: %s\n", format)
			}
			continue
		case ":line":
			n, err := strconv.Atoi(arg)
			if err != nil || n < 1 || n > s.buf.LineCount() {
				fmt.Fprintf(s.out, "No line %q\n", arg)
				continue
			}
			s.buf.SetCursor(editor.Position{Line: n - 1, Character: len([]rune(s.buf.LineAt(n - 1)))})
			continue
		}

		if err := s.buf.Type(line); err != nil {
			return err
		}
		select {
		case <-s.triggered:
			s.pick(ctx, "")
		case <-time.After(s.wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := s.buf.Type("\n"); err != nil {
			return err
		}
	}
}

func (s *session) save() error {
	if err := os.WriteFile(s.fileName, []byte(s.buf.Text()), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.fileName, err)
	}
	fmt.Fprintf(s.out, "Wrote %s\n", s.fileName)
	return nil
}

// pick asks for a query unless one is given, lists results and inserts the
// chosen image. A choice like "3d" downloads the image first.
func (s *session) pick(ctx context.Context, query string) {
	if strings.TrimSpace(query) == "" {
		q, ok := s.readLine("search: ")
		if !ok {
			return
		}
		query = q
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return
	}
	provider := string(s.search.DefaultName())
	res, err := s.search.Search(ctx, provider, query, 1)
	if err != nil {
		fmt.Fprintln(s.out, stock.Message(err))
		return
	}
	if len(res.Images) == 0 {
		fmt.Fprintf(s.out, "No %s results for %q\n", res.Provider.Title(), query)
		return
	}
	printImages(s.out, res.Images)

	choice, ok := s.readLine(fmt.Sprintf("pick [1-%d, add d to download]: ", len(res.Images)))
	if !ok {
		return
	}
	choice = strings.TrimSpace(choice)
	fetch := strings.HasSuffix(choice, "d")
	n, err := strconv.Atoi(strings.TrimSuffix(choice, "d"))
	if err != nil || n < 1 || n > len(res.Images) {
		fmt.Fprintln(s.out, "Cancelled")
		return
	}
	img := res.Images[n-1]

	localPath := ""
	if fetch && s.download != nil {
		localPath, err = s.download.Download(ctx, img, stock.SizeMedium)
		if err != nil {
			fmt.Fprintln(s.out, stock.Message(err))
			return
		}
		fmt.Fprintf(s.out, "Image saved to %s\n", localPath)
	}
	inserted, err := s.inserter.Insert(img, s.format, localPath)
	if err != nil {
		fmt.Fprintln(s.out, stock.Message(err))
		return
	}
	fmt.Fprintf(s.out, "Inserted %s\n", inserted.Snippet)
}
