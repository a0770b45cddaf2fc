package search

import (
	"math"
	"sort"

	"github.com/Aman-CERP/amanrag/internal/store"
)

// Fuser combines one lexical and one dense ranking into a single ranking.
//
// Weighted-sum keeps raw scores: BM25 is unbounded and dense similarity is
// in [0,1], and no normalization is applied, so a strong lexical match is
// not flattened by the scale mismatch. RRF ignores scores and uses ranks.
//
// Under both policies the candidate set is the union of both lists, so
// fusion never introduces a document that neither retriever returned.
// Ties break by dense rank, then lexical rank, then ascending doc_index,
// with an absent rank ordered after every present one.
type Fuser struct {
	Policy      Policy
	Alpha       float64
	RRFConstant int
}

// NewFuser creates a fuser. An alpha outside [0,1] or a non-positive RRF
// constant falls back to the default.
func NewFuser(policy Policy, alpha float64, rrfConstant int) *Fuser {
	if policy == "" {
		policy = PolicyWeighted
	}
	if alpha < 0 || alpha > 1 || math.IsNaN(alpha) {
		alpha = DefaultAlpha
	}
	if rrfConstant <= 0 {
		rrfConstant = DefaultRRFConstant
	}
	return &Fuser{Policy: policy, Alpha: alpha, RRFConstant: rrfConstant}
}

// Fuse merges the two rankings and truncates to topK.
func (f *Fuser) Fuse(lexical, dense []store.RankedHit, topK int) []FusedHit {
	if topK <= 0 || (len(lexical) == 0 && len(dense) == 0) {
		return []FusedHit{}
	}

	byDoc := make(map[int]*FusedHit, len(lexical)+len(dense))
	order := make([]*FusedHit, 0, len(lexical)+len(dense))
	get := func(doc int) *FusedHit {
		if h, ok := byDoc[doc]; ok {
			return h
		}
		h := &FusedHit{DocIndex: doc}
		byDoc[doc] = h
		order = append(order, h)
		return h
	}

	// A retriever should not repeat a document; if one does, its first
	// (best) position counts.
	for i, r := range dense {
		h := get(r.DocIndex)
		if h.DenseRank == 0 {
			h.DenseRank = i + 1
			h.DenseScore = r.Score
		}
	}
	for i, r := range lexical {
		h := get(r.DocIndex)
		if h.LexicalRank == 0 {
			h.LexicalRank = i + 1
			h.LexicalScore = r.Score
		}
	}

	for _, h := range order {
		h.Score = f.score(h)
	}

	sort.Slice(order, func(i, j int) bool {
		return fusedLess(order[i], order[j])
	})
	if len(order) > topK {
		order = order[:topK]
	}

	out := make([]FusedHit, len(order))
	for i, h := range order {
		out[i] = *h
	}
	return out
}

func (f *Fuser) score(h *FusedHit) float64 {
	if f.Policy == PolicyRRF {
		s := 0.0
		if h.DenseRank > 0 {
			s += 1 / float64(f.RRFConstant+h.DenseRank)
		}
		if h.LexicalRank > 0 {
			s += 1 / float64(f.RRFConstant+h.LexicalRank)
		}
		return s
	}
	return f.Alpha*h.DenseScore + (1-f.Alpha)*h.LexicalScore
}

// rankKey orders absent (0) ranks last.
func rankKey(rank int) int {
	if rank == 0 {
		return math.MaxInt
	}
	return rank
}

func fusedLess(a, b *FusedHit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if ra, rb := rankKey(a.DenseRank), rankKey(b.DenseRank); ra != rb {
		return ra < rb
	}
	if ra, rb := rankKey(a.LexicalRank), rankKey(b.LexicalRank); ra != rb {
		return ra < rb
	}
	return a.DocIndex < b.DocIndex
}
