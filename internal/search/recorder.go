package search

import "time"

// Fallback reasons reported to a Recorder.
const (
	FallbackDenseFailure  = "dense_failure"
	FallbackSeedFailure   = "seed_failure"
	FallbackLexicalFailed = "lexical_failure"
)

// SearchEvent describes one answered search.
type SearchEvent struct {
	Query   string
	Method  Method
	Results int
	Latency time.Duration
	Cached  bool
}

// Recorder receives search events. telemetry.Metrics implements it; an
// engine built without WithRecorder uses a no-op recorder.
type Recorder interface {
	SearchCompleted(ev SearchEvent)
	Fallback(reason string)
	DenseFailure()
	VariantFailure()
	CacheLookup(hit bool)
	IndexRebuilt(documents int, err error)
}

type nopRecorder struct{}

func (nopRecorder) SearchCompleted(SearchEvent) {}
func (nopRecorder) Fallback(string)            {}
func (nopRecorder) DenseFailure()              {}
func (nopRecorder) VariantFailure()            {}
func (nopRecorder) CacheLookup(bool)           {}
func (nopRecorder) IndexRebuilt(int, error)    {}
