package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/telemetry"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

// Engine is the part of search.Engine the server needs.
type Engine interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
	Expand(query string) []string
	AddSynonym(canonical string, synonyms ...string) error
	Stats() search.Stats
}

var _ Engine = (*search.Engine)(nil)

// TransportStdio is the only supported transport.
const TransportStdio = "stdio"

// Server exposes an Engine over MCP.
type Server struct {
	mcp    *mcp.Server
	engine Engine
	logger *slog.Logger

	// Query log reported by index_status and the query_log resource.
	queries *telemetry.QueryLog

	mu sync.RWMutex
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// Option configures a Server.
type Option func(*Server)

// WithQueryLog attaches a query log to index_status and registers the
// query_log resource.
func WithQueryLog(q *telemetry.QueryLog) Option {
	return func(s *Server) {
		s.queries = q
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a server with all tools registered.
func NewServer(engine Engine, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}

	s := &Server{
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "amanrag",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns the registered tools in registration order.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: ToolSearch, Description: searchDescription},
		{Name: ToolExpandQuery, Description: expandDescription},
		{Name: ToolAddSynonym, Description: addSynonymDescription},
		{Name: ToolIndexStatus, Description: indexStatusDescription},
	}
}

const (
	searchDescription = "Search the indexed documents with hybrid BM25 and dense retrieval. " +
		"Chinese and English queries are supported; synonym variants of the query are searched " +
		"too and merged by best score."
	expandDescription      = "Show the query variants that synonym expansion produces for a query."
	addSynonymDescription  = "Register or replace the synonyms of a phrase for query expansion."
	indexStatusDescription = "Report index size, backends and recent query patterns."
)

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolSearch, Description: searchDescription}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolExpandQuery, Description: expandDescription}, s.mcpExpandHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolAddSynonym, Description: addSynonymDescription}, s.mcpAddSynonymHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolIndexStatus, Description: indexStatusDescription}, s.mcpIndexStatusHandler)
	s.logger.Debug("MCP tools registered", slog.Int("count", 4))
}

// toSearchRequest validates tool input and builds an engine request.
func toSearchRequest(input SearchInput) (search.Request, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return search.Request{}, NewInvalidParamsError("query parameter is required")
	}
	if input.Limit < 0 || input.Limit > search.MaxTopK {
		return search.Request{}, NewInvalidParamsError(
			fmt.Sprintf("limit must be between 1 and %d", search.MaxTopK))
	}
	if t := input.Threshold; t != nil && (*t < 0 || *t > 1) {
		return search.Request{}, NewInvalidParamsError("threshold must be between 0 and 1")
	}

	req := search.Request{
		Query:       query,
		TopK:        input.Limit,
		Threshold:   input.Threshold,
		ExpandQuery: input.Expand,
	}
	if input.Policy != "" {
		policy, err := search.ParsePolicy(input.Policy)
		if err != nil {
			return search.Request{}, NewInvalidParamsError(err.Error())
		}
		req.Policy = policy
	}
	if input.Mode != "" {
		switch m := search.Method(strings.ToLower(input.Mode)); m {
		case search.MethodVector, search.MethodBM25, search.MethodHybrid, search.MethodMultiPath:
			req.Mode = m
		default:
			return search.Request{}, NewInvalidParamsError(fmt.Sprintf("unknown mode %q", input.Mode))
		}
	}
	return req, nil
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	req, err := toSearchRequest(input)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	requestID := generateRequestID()
	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", req.Query),
		slog.Int("limit", req.TopK))

	start := time.Now()
	resp, err := s.engine.Search(ctx, req)
	if err != nil {
		s.logger.Error("search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.String("method", string(resp.Method)),
		slog.Int("result_count", resp.Total))

	out := SearchOutput{
		Query:      req.Query,
		Method:     string(resp.Method),
		Total:      resp.Total,
		QueryMS:    float64(resp.QueryTime.Microseconds()) / 1000,
		Generation: resp.Generation,
		Results:    resp.Results,
		Degraded:   resp.Degraded,
	}
	if out.Results == nil {
		out.Results = []search.Result{}
	}
	return textResult(FormatSearchResults(req.Query, resp)), out, nil
}

func (s *Server) mcpExpandHandler(_ context.Context, _ *mcp.CallToolRequest, input ExpandQueryInput) (
	*mcp.CallToolResult,
	ExpandQueryOutput,
	error,
) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, ExpandQueryOutput{}, NewInvalidParamsError("query parameter is required")
	}
	variants := s.engine.Expand(query)
	return textResult(FormatVariants(query, variants)), ExpandQueryOutput{Query: query, Variants: variants}, nil
}

func (s *Server) mcpAddSynonymHandler(_ context.Context, _ *mcp.CallToolRequest, input AddSynonymInput) (
	*mcp.CallToolResult,
	AddSynonymOutput,
	error,
) {
	canonical := strings.TrimSpace(input.Canonical)
	if canonical == "" {
		return nil, AddSynonymOutput{}, NewInvalidParamsError("canonical parameter is required")
	}
	synonyms := make([]string, 0, len(input.Synonyms))
	for _, syn := range input.Synonyms {
		if syn = strings.TrimSpace(syn); syn != "" {
			synonyms = append(synonyms, syn)
		}
	}
	if len(synonyms) == 0 {
		return nil, AddSynonymOutput{}, NewInvalidParamsError("at least one synonym is required")
	}

	s.mu.Lock()
	err := s.engine.AddSynonym(canonical, synonyms...)
	s.mu.Unlock()
	if err != nil {
		return nil, AddSynonymOutput{}, MapError(err)
	}

	out := AddSynonymOutput{
		Canonical: canonical,
		Synonyms:  synonyms,
		Total:     s.engine.Stats().Synonyms,
	}
	text := fmt.Sprintf("Synonyms of \"%s\": %s", canonical, strings.Join(synonyms, ", "))
	return textResult(text), out, nil
}

func (s *Server) mcpIndexStatusHandler(_ context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap *telemetry.QueryLogSnapshot
	if s.queries != nil {
		snap = s.queries.Snapshot()
	}
	return nil, newIndexStatusOutput(s.engine.Stats(), snap), nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// Serve runs the server on transport until ctx is done.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case TransportStdio, "":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped gracefully")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
