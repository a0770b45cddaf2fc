package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/corpus"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/mcp"
	"github.com/Aman-CERP/amanrag/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search engine over MCP (stdio)",
		Long: `Load the corpus and serve search, expand_query, add_synonym and
index_status to MCP clients over stdio.

stdout carries JSON-RPC only; logs go to ~/.amanrag/logs/server.log.
One server runs per data directory.

With corpus.watch the index is rebuilt whenever the corpus file changes;
searches keep using the previous snapshot until the rebuild finishes.
With server.metrics_addr (or --metrics-addr) Prometheus metrics are served
on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.Server.MetricsAddr = metricsAddr
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. 127.0.0.1:9464")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lock := corpus.NewLock(cfg.LockDir())
	if err := lock.TryLock(); err != nil {
		return reportError("serve", err)
	}
	defer func() { _ = lock.Unlock() }()

	a, err := newApp(ctx, cfg, appOptions{telemetry: true})
	if err != nil {
		return reportError("serve", err)
	}
	defer func() { _ = a.Close() }()

	n, err := a.load(ctx)
	if err != nil {
		return reportError("serve", err)
	}
	slog.Info("serve_starting",
		slog.Int("documents", n),
		slog.String("transport", cfg.Server.Transport),
		slog.Bool("watch", cfg.Corpus.Watch),
		slog.String("metrics_addr", cfg.Server.MetricsAddr))

	server, err := mcp.NewServer(a.engine, mcp.WithQueryLog(a.queries), mcp.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	defer cancel()

	if cfg.Corpus.Watch {
		if err := a.startWatch(gctx, g); err != nil {
			return reportError("serve", err)
		}
	}

	if cfg.Server.MetricsAddr != "" {
		srv := a.metrics.NewServer(cfg.Server.MetricsAddr)
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		// The client closing stdin ends the session and everything else.
		defer cancel()
		return server.Serve(gctx, cfg.Server.Transport)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return reportError("serve", err)
	}
	slog.Info("serve_stopped")
	return nil
}

// startWatch rebuilds the index after each debounced change to the corpus
// file. Reload failures are logged and the previous snapshot stays live.
func (a *app) startWatch(ctx context.Context, g *errgroup.Group) error {
	path := a.watchPath()
	if path == "" {
		slog.Warn("corpus_watch_unsupported", slog.String("reason", "corpus is not a file"))
		return nil
	}

	w, err := watcher.New([]string{path}, watcher.Options{
		DebounceWindow: config.Duration(a.cfg.Corpus.WatchDebounce),
	})
	if err != nil {
		return err
	}
	slog.Info("corpus_watch_started", slog.String("path", path), slog.Bool("polling", w.Polling()))

	g.Go(func() error {
		defer func() { _ = w.Stop() }()
		if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := a.reloader.Run(ctx, w.Events()); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		drainWatchErrors(ctx, w.Errors(), a.reloader.Errors())
		return nil
	})
	return nil
}

// drainWatchErrors logs watcher and reload failures until ctx is done. A
// failed reload leaves the previous snapshot serving.
func drainWatchErrors(ctx context.Context, watchErrs, reloadErrs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-watchErrs:
			slog.Warn("corpus_watch_error", amerrors.LogAttrs(err)...)
		case err := <-reloadErrs:
			slog.Warn("corpus_serving_previous_snapshot", amerrors.LogAttrs(err)...)
		}
	}
}
