package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanrag/internal/search"
)

// Resource URIs.
const (
	QueryLogURI = "amanrag://query_log"
	SynonymsURI = "amanrag://synonyms"
)

// synonymLister is implemented by engines that expose their synonym table.
type synonymLister interface {
	Synonyms() *search.SynonymTable
}

func (s *Server) registerResources() {
	if s.queries != nil {
		s.mcp.AddResource(&mcp.Resource{
			Name:        "query_log",
			URI:         QueryLogURI,
			Description: "Method counts, top terms, zero-result queries and latency buckets since start",
			MIMEType:    "application/json",
		}, s.handleQueryLog)
	}
	if _, ok := s.engine.(synonymLister); ok {
		s.mcp.AddResource(&mcp.Resource{
			Name:        "synonyms",
			URI:         SynonymsURI,
			Description: "The synonym table used for query expansion",
			MIMEType:    "application/json",
		}, s.handleSynonyms)
	}
}

func (s *Server) handleQueryLog(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return jsonResource(QueryLogURI, s.queries.Snapshot())
}

func (s *Server) handleSynonyms(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return jsonResource(SynonymsURI, s.engine.(synonymLister).Synonyms().Entries())
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, &MCPError{Code: ErrCodeInternalError, Message: "failed to encode resource"}
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
