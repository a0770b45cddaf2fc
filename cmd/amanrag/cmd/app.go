package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/corpus"
	"github.com/Aman-CERP/amanrag/internal/dense"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/store"
	"github.com/Aman-CERP/amanrag/internal/telemetry"
)

// app is an engine wired from configuration, plus the corpus it serves.
type app struct {
	cfg      *config.Config
	engine   *search.Engine
	source   corpus.Source
	reloader *corpus.Reloader
	metrics  *telemetry.Metrics
	queries  *telemetry.QueryLog
	closers  []func() error
}

// appOptions selects the optional parts of an app.
type appOptions struct {
	// telemetry attaches Prometheus metrics and, if configured, the query log.
	telemetry bool
}

// newApp builds the engine, its dense adapter, cache and synonym table, and
// opens the corpus source. Close releases everything.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	engineCfg, err := engineConfig(cfg)
	if err != nil {
		return nil, err
	}

	adapter, err := dense.NewRegistry().New(cfg.Dense.Backend, dense.Options{
		Dimensions:      cfg.Dense.Dimensions,
		CacheSize:       cfg.Dense.CacheSize,
		Workers:         cfg.Dense.Workers,
		Timeout:         config.Duration(cfg.Dense.Timeout),
		BreakerFailures: cfg.Dense.BreakerFailures,
		BreakerReset:    config.Duration(cfg.Dense.BreakerReset),
	})
	if err != nil {
		return nil, err
	}

	synonyms, err := loadSynonyms(cfg)
	if err != nil {
		return nil, err
	}
	engineOpts := []search.EngineOption{
		search.WithSynonyms(synonyms),
		search.WithLogger(slog.Default()),
	}

	cache, err := newCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		engineOpts = append(engineOpts, search.WithCache(cache))
	}

	if opts.telemetry {
		if err := a.openTelemetry(ctx); err != nil {
			return nil, err
		}
		engineOpts = append(engineOpts, search.WithRecorder(a.metrics))
	}

	engine, err := search.NewEngine(store.NewLexicalRegistry(), adapter, engineCfg, engineOpts...)
	if err != nil {
		return nil, err
	}
	a.engine = engine
	a.closers = append(a.closers, engine.Close)

	source, err := a.openSource(ctx)
	if err != nil {
		return nil, err
	}
	a.source = source
	a.reloader = corpus.NewReloader(source, engine, slog.Default())
	return a, nil
}

// engineConfig maps the [search], [bm25] and [dense] sections onto the
// engine configuration.
func engineConfig(cfg *config.Config) (search.EngineConfig, error) {
	policy, err := search.ParsePolicy(cfg.Search.FusionPolicy)
	if err != nil {
		return search.EngineConfig{}, amerrors.ConfigError("search.fusion_policy: "+err.Error(), err)
	}
	return search.EngineConfig{
		Policy:             policy,
		Alpha:              cfg.Search.Alpha,
		RRFConstant:        cfg.Search.RRFConstant,
		ProbeWindow:        cfg.Search.ProbeWindow,
		DefaultTopK:        cfg.Search.DefaultTopK,
		MaxTopK:            cfg.Search.MaxTopK,
		Threshold:          cfg.Search.SimilarityThreshold,
		EnableHybrid:       cfg.Search.EnableHybrid,
		EnableMultiPath:    cfg.Search.EnableMultiPath,
		ExpandQuery:        cfg.Search.ExpandQuery,
		VariantParallelism: cfg.Search.VariantParallelism,
		LexicalBackend:     cfg.Search.LexicalBackend,
		BM25:               store.BM25Config{K1: cfg.BM25.K1, B: cfg.BM25.B},
		DenseBackend:       cfg.Dense.Backend,
		SearchTimeout:      config.Duration(cfg.Search.Timeout),
	}, nil
}

// loadSynonyms starts from the built-in table (unless disabled) and merges
// synonyms.path over it.
func loadSynonyms(cfg *config.Config) (*search.SynonymTable, error) {
	table := search.NewSynonymTable()
	if cfg.Synonyms.UseDefaults {
		table = search.DefaultSynonyms()
	}
	if cfg.Synonyms.Path != "" {
		if err := table.LoadFile(resolvePath(cfg.Synonyms.Path)); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func newCache(ctx context.Context, cfg *config.Config) (search.ResultCache, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	ttl := config.Duration(cfg.Cache.TTL)
	switch cfg.Cache.Backend {
	case "redis":
		c, err := search.NewRedisCache(ctx, search.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			TTL:      ttl,
		})
		if err != nil {
			return nil, amerrors.New(amerrors.ErrCodeNetworkUnavailable, "result cache unavailable", err).
				WithSuggestion("Check cache.redis_addr or set cache.backend: memory")
		}
		return c, nil
	default:
		return search.NewLRUCache(cfg.Cache.Size, ttl), nil
	}
}

func (a *app) openTelemetry(ctx context.Context) error {
	if a.cfg.Telemetry.QueryLog {
		st, err := telemetry.OpenSQLiteStore(ctx, a.cfg.TelemetryPath())
		if err != nil {
			return err
		}
		a.queries = telemetry.NewQueryLog(st, telemetry.QueryLogConfig{
			FlushInterval: config.Duration(a.cfg.Telemetry.FlushInterval),
		}, slog.Default())
		a.closers = append(a.closers, a.queries.Close)
	}
	a.metrics = telemetry.NewMetrics(a.queries)
	return nil
}

func (a *app) openSource(ctx context.Context) (corpus.Source, error) {
	c := a.cfg.Corpus
	switch {
	case c.Path != "":
		return corpus.NewFileSource(resolvePath(c.Path))
	case c.DSN != "":
		src, err := corpus.OpenSQL(ctx, corpus.SQLConfig{
			Driver: c.Driver,
			DSN:    c.DSN,
			Table:  c.Table,
			Retry:  amerrors.DefaultRetryConfig(),
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, src.Close)
		return src, nil
	default:
		return nil, amerrors.New(amerrors.ErrCodeConfigNotFound, "no corpus configured", nil).
			WithSuggestion("Set corpus.path in .amanrag.yaml, AMANRAG_CORPUS_PATH, or pass --corpus")
	}
}

// load reads the corpus and publishes it to the engine.
func (a *app) load(ctx context.Context) (int, error) {
	n, err := a.reloader.Reload(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load corpus: %w", err)
	}
	return n, nil
}

// watchPath returns the corpus file to watch, or "" for SQL sources.
func (a *app) watchPath() string {
	if fs, ok := a.source.(*corpus.FileSource); ok {
		return fs.Path()
	}
	return ""
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// resolvePath makes config paths relative to the project directory.
func resolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(projectDir, path)
}
