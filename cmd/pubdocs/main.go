package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eringen/pubdocs"
	"github.com/eringen/pubdocs/content"
	"github.com/eringen/pubdocs/docstore"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "pubdocs",
		Short:         "Documentation site and blog backed by a document store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newSeedCommand(), newVersionCommand())
	return root
}

func newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the site, JSON API, and admin page",
		Long: `Serve reads its configuration from the environment (SITE_NAME,
SITE_URL, CONTENT_STORE_URL, ADMIN_EMAILS and friends) and runs until
interrupted.

Example:
  CONTENT_STORE_URL=sqlite://data/content.db pubdocs serve --addr :3000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := pubdocs.ConfigFromEnv()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides ADDR)")
	return cmd
}

func serve(ctx context.Context, cfg pubdocs.SiteConfig) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := pubdocs.New(cfg, pubdocs.ViewFuncs{})
	if err := app.Init(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- app.Start() }()

	select {
	case err := <-errCh:
		return errors.Join(err, app.Close())
	case <-ctx.Done():
	}
	app.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.Shutdown(shutdownCtx)
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Populate empty doc and blog collections from the built-in fixtures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := pubdocs.ConfigFromEnv()
			if err != nil {
				return err
			}
			logger, err := pubdocs.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			store, err := docstore.Open(ctx, cfg.ContentStoreURL)
			if err != nil {
				return err
			}
			defer store.Close()

			docs, posts, err := seedEmpty(ctx, store, cfg, logger)
			if err != nil {
				return err
			}
			logger.Info("seed complete",
				zap.String("store", cfg.ContentStoreURL),
				zap.Int("sections", len(docs.Sections)),
				zap.Int("posts", len(posts.Posts)),
			)
			return nil
		},
	}
}

// seedEmpty fills whichever collections are empty. Existing content is left
// untouched.
func seedEmpty(ctx context.Context, store docstore.Store, cfg pubdocs.SiteConfig, logger *zap.Logger) (content.DocsResponse, content.BlogResponse, error) {
	loader, err := content.NewLoader(store,
		content.WithRemoteDoc(cfg.RemoteDocURL, &http.Client{Timeout: 10 * time.Second}),
		content.WithLoaderLogger(logger),
	)
	if err != nil {
		return content.DocsResponse{}, content.BlogResponse{}, err
	}
	docs, err := loader.LoadSections(ctx)
	if err != nil {
		return content.DocsResponse{}, content.BlogResponse{}, err
	}
	posts, err := loader.LoadPosts(ctx)
	if err != nil {
		return content.DocsResponse{}, content.BlogResponse{}, err
	}
	return docs, posts, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pubdocs version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pubdocs %s\n", version)
		},
	}
}
