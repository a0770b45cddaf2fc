package corpus

import (
	"context"
	"log/slog"
	"time"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
	"github.com/Aman-CERP/amanrag/internal/watcher"
)

// Indexer replaces the live snapshot. search.Engine implements it.
type Indexer interface {
	Index(ctx context.Context, docs []store.Document) error
}

// Reloader loads a Source into an Indexer, once or on every change.
type Reloader struct {
	source Source
	target Indexer
	logger *slog.Logger
	errs   chan error
}

// NewReloader creates a reloader. A nil logger uses slog.Default.
func NewReloader(source Source, target Indexer, logger *slog.Logger) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{source: source, target: target, logger: logger, errs: make(chan error, 8)}
}

// Reload performs one full load and rebuild. On error the previous
// snapshot stays live.
func (r *Reloader) Reload(ctx context.Context) (int, error) {
	start := time.Now()
	docs, err := r.source.Load(ctx)
	if err != nil {
		return 0, err
	}
	if err := r.target.Index(ctx, docs); err != nil {
		return 0, err
	}
	r.logger.Info("corpus_reloaded",
		slog.Int("documents", len(docs)),
		slog.Duration("duration", time.Since(start)))
	return len(docs), nil
}

// Run reloads after every batch from events until ctx is done or events
// closes. Failures are logged and sent on Errors without stopping the loop.
func (r *Reloader) Run(ctx context.Context, events <-chan []watcher.FileEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-events:
			if !ok {
				return nil
			}
			r.logger.Debug("corpus_change_detected", slog.Int("events", len(batch)))
			if _, err := r.Reload(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.Warn("corpus_reload_failed", amerrors.LogAttrs(err)...)
				select {
				case r.errs <- err:
				default:
				}
			}
		}
	}
}

// Errors returns reload failures from Run. It is never closed.
func (r *Reloader) Errors() <-chan error {
	return r.errs
}
