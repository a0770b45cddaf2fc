// Package corpus loads the documents to index and keeps the index in step
// with its source.
//
// A Source returns the full ordered corpus; a document's position is its
// doc_index. Sources are files (JSON Lines, JSON array, YAML list) or a SQL
// table. Reloader rebuilds the index whenever the watcher reports that a
// file source changed.
package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// Source produces the ordered corpus.
type Source interface {
	Load(ctx context.Context) ([]store.Document, error)
}

// File formats.
const (
	FormatJSONL = "jsonl"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// FileSource reads the corpus from one file. The format comes from the
// extension: .jsonl/.ndjson, .json, or .yaml/.yml.
type FileSource struct {
	path   string
	format string
}

// NewFileSource creates a source for path.
func NewFileSource(path string) (*FileSource, error) {
	format, err := formatFor(path)
	if err != nil {
		return nil, err
	}
	return &FileSource{path: path, format: format}, nil
}

func formatFor(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", amerrors.New(amerrors.ErrCodeCorpusFormat,
			"unsupported corpus file extension: "+path, nil).
			WithSuggestion("Use a .jsonl, .json, .yaml or .yml file")
	}
}

// Path returns the file path.
func (s *FileSource) Path() string {
	return s.path
}

// Format returns the detected format.
func (s *FileSource) Format() string {
	return s.format
}

// Load reads and decodes the whole file.
func (s *FileSource) Load(ctx context.Context) ([]store.Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, amerrors.New(amerrors.ErrCodeFileNotFound, "corpus file not found: "+s.path, err)
		}
		if errors.Is(err, os.ErrPermission) {
			return nil, amerrors.New(amerrors.ErrCodeFilePermission, "cannot read corpus file: "+s.path, err)
		}
		return nil, fmt.Errorf("failed to read corpus file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch s.format {
	case FormatJSONL:
		return decodeJSONL(ctx, s.path, data)
	case FormatJSON:
		var docs []store.Document
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, formatError(s.path, "expected a JSON array of documents", err)
		}
		return nonNil(docs), nil
	default:
		var docs []store.Document
		if err := yaml.Unmarshal(data, &docs); err != nil {
			return nil, formatError(s.path, "expected a YAML list of documents", err)
		}
		return nonNil(docs), nil
	}
}

func decodeJSONL(ctx context.Context, path string, data []byte) ([]store.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	docs := make([]store.Document, 0, bytes.Count(data, []byte{'\n'})+1)
	for n := 1; ; n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		var d store.Document
		err := dec.Decode(&d)
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, formatError(path, fmt.Sprintf("record %d is not a JSON document", n), err)
		}
		docs = append(docs, d)
	}
}

func formatError(path, msg string, cause error) error {
	return amerrors.New(amerrors.ErrCodeCorpusFormat, msg+": "+path, cause)
}

func nonNil(docs []store.Document) []store.Document {
	if docs == nil {
		return []store.Document{}
	}
	return docs
}

var _ Source = (*FileSource)(nil)
