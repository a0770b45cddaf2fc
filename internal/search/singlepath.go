package search

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/amanrag/internal/dense"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// SinglePath searches one retriever without fusion. It serves the bm25 and
// vector modes directly and is the degraded mode of the fused paths.
type SinglePath struct {
	Lexical  store.LexicalIndex
	Dense    dense.Adapter
	Recorder Recorder
	Logger   *slog.Logger
}

func (s *SinglePath) recorder() Recorder {
	if s.Recorder == nil {
		return nopRecorder{}
	}
	return s.Recorder
}

func (s *SinglePath) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// SearchLexical ranks with the lexical index alone. An empty or unbuilt
// index yields no hits and no error.
func (s *SinglePath) SearchLexical(ctx context.Context, query string, topK int) ([]Hit, error) {
	ranked, err := s.Lexical.Search(ctx, query, topK)
	if err != nil {
		if amerrors.IsEmptyIndex(err) {
			return []Hit{}, nil
		}
		return nil, err
	}
	hits := make([]Hit, len(ranked))
	for i, r := range ranked {
		hits[i] = Hit{
			FusedHit:   FusedHit{DocIndex: r.DocIndex, Score: r.Score, LexicalScore: r.Score, LexicalRank: i + 1},
			MatchCount: 1,
			Variant:    query,
		}
	}
	return hits, nil
}

// SearchDense ranks with the dense adapter alone. An unbuilt dense index
// yields no hits and no error; every other failure is returned.
func (s *SinglePath) SearchDense(ctx context.Context, query string, topK int) ([]Hit, error) {
	ranked, err := s.Dense.Search(ctx, query, topK)
	if err != nil {
		if amerrors.IsEmptyIndex(err) {
			return []Hit{}, nil
		}
		return nil, err
	}
	hits := make([]Hit, 0, len(ranked))
	for i, r := range ranked {
		if i >= topK {
			break
		}
		hits = append(hits, Hit{
			FusedHit:   FusedHit{DocIndex: r.DocIndex, Score: r.Score, DenseScore: r.Score, DenseRank: i + 1},
			MatchCount: 1,
			Variant:    query,
		})
	}
	return hits, nil
}

// Fallback answers a query whose primary path failed with cause. Lexical
// results are tried first. Dense-only is tried only when the lexical side
// fails and cause did not come from the dense boundary.
func (s *SinglePath) Fallback(ctx context.Context, query string, topK int, cause error) ([]Hit, Method, error) {
	rec := s.recorder()
	denseCaused := amerrors.IsDenseFailure(cause)
	reason := FallbackSeedFailure
	if denseCaused {
		reason = FallbackDenseFailure
		rec.DenseFailure()
	}
	rec.Fallback(reason)
	s.logger().Warn("hybrid_seed_fallback",
		append([]any{slog.String("reason", reason)}, amerrors.LogAttrs(cause)...)...)

	hits, err := s.SearchLexical(ctx, query, topK)
	if err == nil {
		return hits, MethodBM25, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, MethodBM25, ctxErr
	}
	if denseCaused || !dense.Enabled(s.Dense) {
		return nil, MethodBM25, err
	}

	rec.Fallback(FallbackLexicalFailed)
	s.logger().Warn("lexical_fallback_failed", amerrors.LogAttrs(err)...)

	hits, err = s.SearchDense(ctx, query, topK)
	if err != nil {
		if amerrors.IsDenseFailure(err) {
			rec.DenseFailure()
		}
		return nil, MethodVector, err
	}
	return hits, MethodVector, nil
}
