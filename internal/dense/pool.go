package dense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/semaphore"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// Pool defaults.
const (
	DefaultWorkers = 4
	DefaultTimeout = 5 * time.Second
)

// PoolConfig configures a Pool.
type PoolConfig struct {
	// Workers caps in-flight dense calls.
	Workers int

	// Timeout bounds one call, including time spent queued for a worker.
	Timeout time.Duration

	// BreakerFailures is the consecutive failure count that opens the circuit.
	BreakerFailures int

	// BreakerReset is how long the circuit stays open before a trial call.
	BreakerReset time.Duration
}

// Pool runs an inner Adapter on a bounded ants worker pool. A call waits for
// a free worker slot under its own timeout, so a saturated pool fails fast
// instead of blocking in Submit. It trips a circuit breaker after repeated
// failures. Every error it returns satisfies errors.IsDenseFailure.
type Pool struct {
	name    string
	inner   Adapter
	workers *ants.Pool
	slots   *semaphore.Weighted
	breaker *amerrors.CircuitBreaker
	timeout time.Duration
}

type searchResult struct {
	hits []store.RankedHit
	err  error
}

// NewPool wraps inner. name identifies the backend in errors and logs.
func NewPool(name string, inner Adapter, cfg PoolConfig) (*Pool, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	workers, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create dense worker pool: %w", err)
	}

	breaker := amerrors.NewCircuitBreaker("dense-"+name,
		amerrors.WithMaxFailures(cfg.BreakerFailures),
		amerrors.WithResetTimeout(cfg.BreakerReset),
		amerrors.WithStateChange(func(n string, from, to amerrors.State) {
			slog.Warn("dense_circuit_state_changed",
				slog.String("breaker", n),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		}),
	)

	return &Pool{
		name:    name,
		inner:   inner,
		workers: workers,
		slots:   semaphore.NewWeighted(int64(cfg.Workers)),
		breaker: breaker,
		timeout: cfg.Timeout,
	}, nil
}

// Search runs the inner search on a worker and waits for it, the timeout,
// or ctx, whichever comes first. Time spent waiting for a worker counts
// against the timeout.
func (p *Pool) Search(ctx context.Context, query string, topK int) ([]store.RankedHit, error) {
	hits, err := amerrors.CircuitExecute(p.breaker, func() ([]store.RankedHit, error) {
		return p.run(ctx, query, topK)
	})
	if err == nil {
		return hits, nil
	}
	if amerrors.IsDenseFailure(err) {
		return nil, err
	}
	return nil, amerrors.DenseFailure(p.name, err)
}

func (p *Pool) run(ctx context.Context, query string, topK int) ([]store.RankedHit, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// Submit blocks while every worker is busy; the slot wait honors ctx.
	if err := p.slots.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, amerrors.DenseTimeout(p.name, err)
		}
		return nil, amerrors.DenseFailure(p.name, err)
	}

	done := make(chan searchResult, 1)
	err := p.workers.Submit(func() {
		defer p.slots.Release(1)
		if err := ctx.Err(); err != nil {
			done <- searchResult{err: err}
			return
		}
		hits, err := p.inner.Search(ctx, query, topK)
		done <- searchResult{hits: hits, err: err}
	})
	if err != nil {
		p.slots.Release(1)
		return nil, amerrors.DenseFailure(p.name, err)
	}

	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				return nil, amerrors.DenseTimeout(p.name, r.err)
			}
			return nil, r.err
		}
		return r.hits, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, amerrors.DenseTimeout(p.name, ctx.Err())
		}
		return nil, amerrors.DenseFailure(p.name, ctx.Err())
	}
}

// Stage forwards to the inner adapter when it indexes the corpus itself.
// Otherwise the commit is a no-op.
func (p *Pool) Stage(ctx context.Context, docs []store.Document) (func(), error) {
	if b, ok := p.inner.(Builder); ok {
		return b.Stage(ctx, docs)
	}
	return func() {}, nil
}

// Name returns the backend name.
func (p *Pool) Name() string {
	return p.name
}

// BreakerState reports the circuit state.
func (p *Pool) BreakerState() amerrors.State {
	return p.breaker.State()
}

// Running returns the number of busy workers.
func (p *Pool) Running() int {
	return p.workers.Running()
}

// Close releases the worker pool.
func (p *Pool) Close() error {
	p.workers.Release()
	return nil
}

var (
	_ Adapter = (*Pool)(nil)
	_ Builder = (*Pool)(nil)
)
