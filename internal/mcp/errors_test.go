package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"mcp error passes through", NewInvalidParamsError("bad"), ErrCodeInvalidParams},
		{"index not built", amerrors.IndexNotBuilt("lexical"), ErrCodeIndexNotReady},
		{"empty corpus", amerrors.New(amerrors.ErrCodeEmptyCorpus, "no documents", nil), ErrCodeIndexNotReady},
		{"circuit open", amerrors.New(amerrors.ErrCodeCircuitOpen, "open", nil), ErrCodeDenseFailed},
		{"validation", amerrors.ValidationError("bad request", nil), ErrCodeInvalidParams},
		{"network", amerrors.DenseTimeout("hnsw", context.DeadlineExceeded), ErrCodeTimeout},
		{"search failed with dense cause", amerrors.New(amerrors.ErrCodeSearchFailed, "search failed",
			amerrors.DenseFailure("hnsw", errors.New("down"))), ErrCodeDenseFailed},
		{"search failed with plain cause", amerrors.New(amerrors.ErrCodeSearchFailed, "search failed",
			errors.New("disk")), ErrCodeSearchFailed},
		{"wrapped canceled", fmt.Errorf("pass: %w", context.Canceled), ErrCodeTimeout},
		{"tool not found", ErrToolNotFound, ErrCodeMethodNotFound},
		{"unknown", errors.New("boom"), ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			assert.Equal(t, tt.code, got.Code)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_IncludesSuggestion(t *testing.T) {
	got := MapError(amerrors.IndexNotBuilt("lexical"))
	assert.Contains(t, got.Message, "lexical index not built")
	assert.Contains(t, got.Message, "amanrag index")
}

func TestMCPError_Error(t *testing.T) {
	assert.Equal(t, "MCP error -32602: bad", NewInvalidParamsError("bad").Error())
}
