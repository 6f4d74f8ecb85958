package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/moddengine/devstock/internal/bridge"
	"github.com/moddengine/devstock/internal/config"
	"github.com/moddengine/devstock/internal/download"
	"github.com/moddengine/devstock/internal/providers"
	"github.com/moddengine/devstock/internal/stock"
	"github.com/moddengine/devstock/internal/storage"
	"github.com/moddengine/devstock/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app is what every command shares once flags are parsed.
type app struct {
	cfg      *config.Server
	settings *config.FileSource
	log      *zap.Logger
}

func (a *app) registry() *providers.Registry {
	return providers.NewDefaultRegistry(a.settings, a.log, providers.BaseURLs{
		Unsplash: a.cfg.UnsplashBaseURL,
		Pexels:   a.cfg.PexelsBaseURL,
		Pixabay:  a.cfg.PixabayBaseURL,
	})
}

func (a *app) openStore() (*store.Store, error) {
	return store.NewStore(a.cfg.Database, a.log)
}

// downloader builds a downloader for workspace. ledger may be nil.
func (a *app) downloader(ctx context.Context, workspace string, ledger download.Ledger) (*download.Downloader, error) {
	opts := []download.Option{}
	if ledger != nil {
		opts = append(opts, download.WithLedger(ledger))
	}
	if a.cfg.S3Enabled() {
		s3, err := storage.NewS3(ctx, a.cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, download.WithUploader(s3))
	}
	return download.New(workspace, a.settings, a.log, opts...), nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var settingsFile, workspace string
	var debug bool

	rootCmd := &cobra.Command{
		Use:   "devstock",
		Short: "DevStock - stock photos for your editor",
		Long: `DevStock searches Unsplash, Pexels and Pixabay and inserts images into
the file you are editing as HTML, Markdown, CSS, JSX or a bare URL.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if settingsFile != "" {
				cfg.SettingsFile = settingsFile
			}
			if workspace != "" {
				cfg.Workspace = workspace
			}
			if debug {
				cfg.Debug = true
			}
			var logger *zap.Logger
			if cfg.Debug {
				logger, err = zap.NewDevelopment()
			} else {
				logger, err = zap.NewProduction()
			}
			if err != nil {
				return fmt.Errorf("can't initialize zap logger: %w", err)
			}
			a.cfg = cfg
			a.log = logger
			a.settings = config.NewFileSource(cfg.SettingsFile)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings", "", "settings file (default devstock.yaml)")
	rootCmd.PersistentFlags().StringVar(&workspace, "workspace", "", "workspace root for downloads")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "development logging")

	rootCmd.AddCommand(
		newSearchCmd(a),
		newEditCmd(a),
		newServeCmd(a),
		newUserCmd(a),
		newDownloadsCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

func newSearchCmd(a *app) *cobra.Command {
	var provider string
	var page, perPage int
	var asJson, all bool

	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search a stock photo provider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			registry := a.registry()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if all {
				mixed, err := registry.SearchAll(ctx, query, page)
				if err != nil {
					return errors.New(stock.Message(err))
				}
				for p, err := range mixed.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", p.Title(), stock.Message(err))
				}
				if asJson {
					return writeJson(out, mixed.Images)
				}
				printImages(out, mixed.Images)
				return nil
			}

			if provider == "" {
				provider = string(registry.DefaultName())
			}
			res, err := registry.SearchPage(ctx, provider, query, page, perPage)
			if err != nil {
				return errors.New(stock.Message(err))
			}
			if asJson {
				return writeJson(out, res)
			}
			fmt.Fprintf(out, "%s: %d results, page %d of %d\n", res.Provider.Title(), res.TotalResults, res.CurrentPage, res.TotalPages)
			printImages(out, res.Images)
			if res.RateLimit != nil {
				fmt.Fprintf(out, "Rate limit: %d of %d remaining\n", res.RateLimit.Remaining, res.RateLimit.Limit)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&provider, "provider", "p", "", "unsplash, pexels or pixabay (default from settings)")
	cmd.Flags().IntVar(&page, "page", 1, "result page")
	cmd.Flags().IntVar(&perPage, "per-page", stock.DefaultPerPage, "results per page")
	cmd.Flags().BoolVar(&asJson, "json", false, "print raw JSON")
	cmd.Flags().BoolVar(&all, "all", false, "search every configured provider")
	return cmd
}

func printImages(w io.Writer, images []stock.Image) {
	for i, img := range images {
		fmt.Fprintf(w, "%2d. [%s] %s by %s (%dx%d)\n    %s\n", i+1, img.Provider, img.Description, img.Photographer, img.Width, img.Height, img.PreviewUrl)
	}
}

func writeJson(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newEditCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "edit <file>",
		Short: "Edit a file line by line with image search on the trigger pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEditor(cmd.Context(), a, args[0], format, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "html, markdown, css, jsx or url (default from the file extension)")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var pretty bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the message bridge over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			dl, err := a.downloader(ctx, a.cfg.Workspace, db)
			if err != nil {
				return fmt.Errorf("S3 client creation failed: %w", err)
			}
			handler := bridge.NewHandler(a.registry(), dl, bridge.NewLogHost(a.log), a.log)
			server, err := bridge.NewServer(bridge.ServerOptions{
				Listen:        a.cfg.Listen,
				RequireAuth:   a.cfg.RequireAuth,
				PruneSchedule: a.cfg.PruneSchedule,
				Workspace:     a.cfg.Workspace,
				PrettyJson:    pretty,
			}, handler, db, db, a.log)
			if err != nil {
				return err
			}
			return server.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent JSON responses")
	return cmd
}

func newUserCmd(a *app) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage bridge users",
	}
	var password string
	var level int
	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create or update a bridge user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("DEVSTOCK_USER_PASSWORD")
			}
			if password == "" {
				return errors.New("password required: use --password or DEVSTOCK_USER_PASSWORD")
			}
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.AddUser(cmd.Context(), args[0], password, level); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %s saved\n", args[0])
			return nil
		},
	}
	addCmd.Flags().StringVar(&password, "password", "", "password for the user")
	addCmd.Flags().IntVar(&level, "level", 1, "access level")
	userCmd.AddCommand(addCmd)
	return userCmd
}

func newDownloadsCmd(a *app) *cobra.Command {
	var limit int
	var prune, asJson bool
	cmd := &cobra.Command{
		Use:   "downloads",
		Short: "List downloaded images",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			out := cmd.OutOrStdout()

			if prune {
				if a.cfg.Workspace == "" {
					return errors.New("--prune needs a workspace")
				}
				n, err := db.PruneMissing(cmd.Context(), a.cfg.Workspace)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d missing downloads\n", n)
			}
			rows, err := db.Downloads(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJson {
				return writeJson(out, rows)
			}
			for _, d := range rows {
				fmt.Fprintf(out, "%s  %-9s %-8s %s\n", d.Created.Format(time.DateTime), d.Provider, d.Size, d.Path)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "rows to show, 0 for all")
	cmd.Flags().BoolVar(&prune, "prune", false, "drop rows whose file is gone first")
	cmd.Flags().BoolVar(&asJson, "json", false, "print raw JSON")
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show the current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.settings.Settings()
			if err := a.settings.Err(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, s.String())
			path, _ := filepath.Abs(a.settings.Path())
			fmt.Fprintf(out, "\nSettings file path: %s\n", path)
			return nil
		},
	}
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a settings file with the defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.settings.Path()
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.Save(path, config.DefaultSettings()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	configCmd.AddCommand(initCmd)
	return configCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "DevStock v%s\n", version)
		},
	}
}
