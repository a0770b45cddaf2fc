package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/dense"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/store"
	"github.com/Aman-CERP/amanrag/internal/telemetry"
)

func newTestEngine(t *testing.T) *search.Engine {
	t.Helper()
	adapter, err := dense.NewRegistry().New(dense.BackendHNSW, dense.Options{Dimensions: 256, Workers: 2, Timeout: 5 * time.Second})
	require.NoError(t, err)
	e, err := search.NewEngine(store.NewLexicalRegistry(), adapter, search.DefaultEngineConfig(),
		search.WithSynonyms(search.DefaultSynonyms()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	require.NoError(t, e.Index(context.Background(), []store.Document{
		{FileID: "f1", Filename: "red.txt", FileType: "text", Text: "小红书营销教程"},
		{FileID: "f2", Filename: "promo.png", FileType: "image", OCRText: "RED 推广 方法"},
		{FileID: "f3", Filename: "ml.txt", FileType: "text", Text: "李宏毅 机器学习"},
	}))
	return e
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

// stubEngine returns canned values so handlers can be tested in isolation.
type stubEngine struct {
	resp      *search.Response
	err       error
	lastReq   search.Request
	variants  []string
	synonyms  map[string][]string
	synErr    error
	stats     search.Stats
	callCount int
}

func (s *stubEngine) Search(_ context.Context, req search.Request) (*search.Response, error) {
	s.callCount++
	s.lastReq = req
	return s.resp, s.err
}

func (s *stubEngine) Expand(query string) []string {
	if s.variants != nil {
		return s.variants
	}
	return []string{query}
}

func (s *stubEngine) AddSynonym(canonical string, synonyms ...string) error {
	if s.synErr != nil {
		return s.synErr
	}
	if s.synonyms == nil {
		s.synonyms = make(map[string][]string)
	}
	s.synonyms[canonical] = synonyms
	s.stats.Synonyms = len(s.synonyms)
	return nil
}

func (s *stubEngine) Stats() search.Stats {
	return s.stats
}

func TestNewServer_RequiresEngine(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)
}

func TestServer_ListTools(t *testing.T) {
	s, err := NewServer(&stubEngine{})
	require.NoError(t, err)

	var names []string
	for _, tool := range s.ListTools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{ToolSearch, ToolExpandQuery, ToolAddSynonym, ToolIndexStatus}, names)
	assert.NotNil(t, s.MCPServer())
}

func TestSearchHandler_MultiPath(t *testing.T) {
	// Given: a real engine with the default synonym table
	s, err := NewServer(newTestEngine(t))
	require.NoError(t, err)

	// When: the query has synonyms for both tokens
	res, out, err := s.mcpSearchHandler(context.Background(), nil, SearchInput{Query: "小红书营销", Limit: 5})

	// Then: the image doc is found through a variant
	require.NoError(t, err)
	assert.Equal(t, "multi_path_hybrid", out.Method)
	assert.Equal(t, "小红书营销", out.Query)
	require.NotEmpty(t, out.Results)
	assert.Equal(t, "f1", out.Results[0].FileID)
	assert.Equal(t, len(out.Results), out.Total)
	assert.Positive(t, out.Generation)

	ids := make(map[string]search.Result)
	for _, r := range out.Results {
		ids[r.FileID] = r
	}
	require.Contains(t, ids, "f2")
	assert.NotEqual(t, "小红书营销", ids["f2"].Variant)
	assert.Contains(t, textOf(t, res), "## Search Results for \"小红书营销\"")
}

func TestSearchHandler_NoResults(t *testing.T) {
	s, err := NewServer(&stubEngine{resp: &search.Response{Method: search.MethodMultiPath}})
	require.NoError(t, err)

	res, out, err := s.mcpSearchHandler(context.Background(), nil, SearchInput{Query: "天气"})

	require.NoError(t, err)
	assert.NotNil(t, out.Results)
	assert.Empty(t, out.Results)
	assert.Equal(t, "No results found for \"天气\"", textOf(t, res))
}

func TestSearchHandler_InputValidation(t *testing.T) {
	tests := []struct {
		name  string
		input SearchInput
	}{
		{"empty query", SearchInput{Query: "   "}},
		{"negative limit", SearchInput{Query: "a", Limit: -1}},
		{"limit too large", SearchInput{Query: "a", Limit: 101}},
		{"threshold above one", SearchInput{Query: "a", Threshold: search.Float(1.5)}},
		{"unknown policy", SearchInput{Query: "a", Policy: "borda"}},
		{"unknown mode", SearchInput{Query: "a", Mode: "fuzzy"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &stubEngine{}
			s, err := NewServer(engine)
			require.NoError(t, err)

			_, _, err = s.mcpSearchHandler(context.Background(), nil, tt.input)

			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
			assert.Zero(t, engine.callCount)
		})
	}
}

func TestSearchHandler_PassesOptions(t *testing.T) {
	engine := &stubEngine{resp: &search.Response{Method: search.MethodHybrid}}
	s, err := NewServer(engine)
	require.NoError(t, err)

	_, out, err := s.mcpSearchHandler(context.Background(), nil, SearchInput{
		Query:     " 营销 ",
		Limit:     3,
		Threshold: search.Float(0.2),
		Policy:    "RRF",
		Expand:    search.Bool(false),
		Mode:      "hybrid",
	})

	require.NoError(t, err)
	assert.Equal(t, "营销", engine.lastReq.Query)
	assert.Equal(t, 3, engine.lastReq.TopK)
	require.NotNil(t, engine.lastReq.Threshold)
	assert.Equal(t, 0.2, *engine.lastReq.Threshold)
	assert.Equal(t, search.PolicyRRF, engine.lastReq.Policy)
	assert.Equal(t, search.MethodHybrid, engine.lastReq.Mode)
	require.NotNil(t, engine.lastReq.ExpandQuery)
	assert.False(t, *engine.lastReq.ExpandQuery)
	assert.Equal(t, "hybrid", out.Method)
	assert.NotNil(t, out.Results)
}

func TestSearchHandler_ReportsSkippedVariants(t *testing.T) {
	// Given: an engine response with one failed variant
	engine := &stubEngine{resp: &search.Response{
		Method:  search.MethodMultiPath,
		Total:   1,
		Results: []search.Result{{FileID: "a", Filename: "red.txt", Score: 0.8}},
		Degraded: []search.VariantFailure{{
			Variant: "RED营销",
			Code:    amerrors.ErrCodeDenseRetrieval,
			Message: "[ERR_506_DENSE_RETRIEVAL_FAILED] dense backend fake failed",
		}},
	}}
	s, err := NewServer(engine)
	require.NoError(t, err)

	// When
	res, out, err := s.mcpSearchHandler(context.Background(), nil, SearchInput{Query: "小红书营销"})

	// Then: the failure is in both the structured and the text output
	require.NoError(t, err)
	require.Len(t, out.Degraded, 1)
	assert.Equal(t, "RED营销", out.Degraded[0].Variant)
	assert.Contains(t, textOf(t, res), `Skipped variant "RED营销": ERR_506_DENSE_RETRIEVAL_FAILED`)
}

func TestSearchHandler_MapsEngineErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid query", amerrors.InvalidQuery("query has no searchable tokens"), ErrCodeInvalidParams},
		{"dense failure", amerrors.DenseFailure("hnsw", errors.New("boom")), ErrCodeDenseFailed},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"plain", errors.New("boom"), ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewServer(&stubEngine{err: tt.err})
			require.NoError(t, err)

			_, _, err = s.mcpSearchHandler(context.Background(), nil, SearchInput{Query: "营销"})

			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, tt.code, mcpErr.Code)
		})
	}
}

func TestExpandHandler(t *testing.T) {
	s, err := NewServer(newTestEngine(t))
	require.NoError(t, err)

	res, out, err := s.mcpExpandHandler(context.Background(), nil, ExpandQueryInput{Query: "小红书"})

	require.NoError(t, err)
	assert.Equal(t, []string{"小红书", "RED", "小红书APP", "小红书平台", "种草平台"}, out.Variants)
	assert.Contains(t, textOf(t, res), "2. RED")

	_, _, err = s.mcpExpandHandler(context.Background(), nil, ExpandQueryInput{})
	assert.Error(t, err)
}

func TestAddSynonymHandler(t *testing.T) {
	// Given
	engine := newTestEngine(t)
	s, err := NewServer(engine)
	require.NoError(t, err)
	before := engine.Stats().Synonyms

	// When: a new canonical is registered, blanks dropped
	_, out, err := s.mcpAddSynonymHandler(context.Background(), nil, AddSynonymInput{
		Canonical: "机器学习",
		Synonyms:  []string{"ML", " ", "machine learning"},
	})

	// Then: expansion picks it up immediately
	require.NoError(t, err)
	assert.Equal(t, []string{"ML", "machine learning"}, out.Synonyms)
	assert.Equal(t, before+1, out.Total)
	assert.Equal(t, []string{"机器学习", "ML", "machine learning"}, engine.Expand("机器学习"))
}

func TestAddSynonymHandler_Validation(t *testing.T) {
	s, err := NewServer(&stubEngine{})
	require.NoError(t, err)

	_, _, err = s.mcpAddSynonymHandler(context.Background(), nil, AddSynonymInput{Synonyms: []string{"x"}})
	assert.Error(t, err)

	_, _, err = s.mcpAddSynonymHandler(context.Background(), nil, AddSynonymInput{Canonical: "x", Synonyms: []string{""}})
	assert.Error(t, err)
}

func TestIndexStatusHandler(t *testing.T) {
	// Given: a server with a query log that has seen one search
	queries := telemetry.NewQueryLog(nil, telemetry.DefaultQueryLogConfig(), nil)
	t.Cleanup(func() { _ = queries.Close() })
	engine := newTestEngine(t)
	s, err := NewServer(engine, WithQueryLog(queries))
	require.NoError(t, err)
	queries.Record(search.SearchEvent{Query: "营销", Method: search.MethodBM25, Results: 0})

	// When
	_, out, err := s.mcpIndexStatusHandler(context.Background(), nil, IndexStatusInput{})

	// Then
	require.NoError(t, err)
	assert.True(t, out.Ready)
	assert.Equal(t, 3, out.Documents)
	assert.Equal(t, map[string]int{"text": 2, "image": 1}, out.FilesByType)
	assert.Equal(t, dense.BackendHNSW, out.DenseBackend)
	assert.NotEmpty(t, out.BuiltAt)
	require.NotNil(t, out.Queries)
	assert.Equal(t, int64(1), out.Queries.Total)
	assert.Equal(t, int64(1), out.Queries.Methods["bm25"])
	assert.Equal(t, []string{"营销"}, out.Queries.RecentZeroResults)
	assert.InDelta(t, 100.0, out.Queries.ZeroResultPercent, 1e-9)
}

func TestIndexStatusHandler_NotReady(t *testing.T) {
	s, err := NewServer(&stubEngine{})
	require.NoError(t, err)

	_, out, err := s.mcpIndexStatusHandler(context.Background(), nil, IndexStatusInput{})

	require.NoError(t, err)
	assert.False(t, out.Ready)
	assert.Empty(t, out.BuiltAt)
	assert.Nil(t, out.Queries)
}

func TestResources(t *testing.T) {
	queries := telemetry.NewQueryLog(nil, telemetry.DefaultQueryLogConfig(), nil)
	t.Cleanup(func() { _ = queries.Close() })
	s, err := NewServer(newTestEngine(t), WithQueryLog(queries))
	require.NoError(t, err)
	queries.Record(search.SearchEvent{Query: "小红书", Method: search.MethodMultiPath, Results: 2})

	t.Run("query log", func(t *testing.T) {
		res, err := s.handleQueryLog(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, res.Contents, 1)
		assert.Equal(t, QueryLogURI, res.Contents[0].URI)

		var snap telemetry.QueryLogSnapshot
		require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &snap))
		assert.Equal(t, int64(1), snap.TotalQueries)
		assert.Equal(t, int64(1), snap.MethodCounts[search.MethodMultiPath])
	})

	t.Run("synonyms", func(t *testing.T) {
		res, err := s.handleSynonyms(context.Background(), nil)
		require.NoError(t, err)

		var entries []search.SynonymEntry
		require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &entries))
		require.NotEmpty(t, entries)
		assert.Equal(t, "小红书", entries[0].Canonical)
	})
}

func TestServe_UnknownTransport(t *testing.T) {
	s, err := NewServer(&stubEngine{})
	require.NoError(t, err)

	err = s.Serve(context.Background(), "sse")
	assert.ErrorContains(t, err, "unknown transport")
}
