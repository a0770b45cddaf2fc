package search

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

func TestQueryExpander_Expand(t *testing.T) {
	// Given: a table with one canonical phrase
	table := NewSynonymTable()
	table.Set("小红书", "RED", "种草平台")
	e := NewQueryExpander(table)

	// When
	variants := e.Expand("小红书营销")

	// Then: the query itself, then one variant per synonym
	assert.Equal(t, []string{"小红书营销", "RED营销", "种草平台营销"}, variants)
}

func TestQueryExpander_NoCombinations(t *testing.T) {
	table := NewSynonymTable()
	table.Set("小红书", "RED")
	table.Set("营销", "推广")
	e := NewQueryExpander(table)

	// Each phrase expands on its own; "RED推广" is never produced.
	assert.Equal(t, []string{"小红书营销", "RED营销", "小红书推广"}, e.Expand("小红书营销"))
}

func TestQueryExpander_ReplacesEveryOccurrence(t *testing.T) {
	table := NewSynonymTable()
	table.Set("营销", "推广")
	e := NewQueryExpander(table)

	assert.Equal(t, []string{"营销与营销", "推广与推广"}, e.Expand("营销与营销"))
}

func TestQueryExpander_NoDeduplication(t *testing.T) {
	table := NewSynonymTable()
	table.Set("a", "b")
	table.Set("ab", "b")
	e := NewQueryExpander(table)

	assert.Equal(t, []string{"ab", "bb", "b"}, e.Expand("ab"))
	assert.Equal(t, []string{"x"}, e.Expand("x"))
	assert.Equal(t, []string{""}, e.Expand(""))
}

func TestQueryExpander_AddSynonymReplaces(t *testing.T) {
	e := NewQueryExpander(nil)
	e.AddSynonym("机器学习", "ML")
	e.AddSynonym("深度学习", "DL")
	e.AddSynonym("机器学习", "machine learning")

	alts, ok := e.Table().Lookup("机器学习")
	require.True(t, ok)
	assert.Equal(t, []string{"machine learning"}, alts)

	// An existing canonical keeps its position.
	entries := e.Table().Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "机器学习", entries[0].Canonical)
	assert.Equal(t, "深度学习", entries[1].Canonical)
}

func TestDefaultSynonyms(t *testing.T) {
	table := DefaultSynonyms()
	assert.Equal(t, 7, table.Len())

	alts, ok := table.Lookup("李宏毅")
	require.True(t, ok)
	assert.Contains(t, alts, "Hung-yi Lee")

	variants := NewQueryExpander(table).Expand("吴恩达课程")
	assert.Equal(t, []string{"吴恩达课程", "Andrew Ng课程", "Ng Andrew课程"}, variants)
}

func TestSynonymTable_SetIgnoresEmpty(t *testing.T) {
	table := NewSynonymTable()
	table.Set("", "x")
	table.Set("a", "", "b")
	assert.Equal(t, 1, table.Len())
	alts, _ := table.Lookup("a")
	assert.Equal(t, []string{"b"}, alts)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSynonymTable_LoadFile(t *testing.T) {
	// Given: a file whose mapping order differs from alphabetical order
	path := writeFile(t, "synonyms.yaml", "营销: [推广, 宣传]\n小红书:\n  - RED\n  - 种草平台\n")
	table := NewSynonymTable()
	table.Set("教程", "指南")

	// When
	require.NoError(t, table.LoadFile(path))

	// Then: existing entries first, file entries in file order
	entries := table.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "教程", entries[0].Canonical)
	assert.Equal(t, "营销", entries[1].Canonical)
	assert.Equal(t, []string{"推广", "宣传"}, entries[1].Synonyms)
	assert.Equal(t, "小红书", entries[2].Canonical)
	assert.Equal(t, []string{"RED", "种草平台"}, entries[2].Synonyms)
}

func TestSynonymTable_LoadFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    string
	}{
		{"not a mapping", "- a\n- b\n", amerrors.ErrCodeConfigInvalid},
		{"scalar value", "营销: 推广\n", amerrors.ErrCodeConfigInvalid},
		{"broken yaml", "营销: [推广\n", amerrors.ErrCodeConfigInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewSynonymTable().LoadFile(writeFile(t, "s.yaml", tt.content))
			require.Error(t, err)
			assert.Equal(t, tt.code, amerrors.GetCode(err))
		})
	}

	t.Run("missing file", func(t *testing.T) {
		err := NewSynonymTable().LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Equal(t, amerrors.ErrCodeFileNotFound, amerrors.GetCode(err))
	})

	t.Run("empty file", func(t *testing.T) {
		table := NewSynonymTable()
		require.NoError(t, table.LoadFile(writeFile(t, "empty.yaml", "")))
		assert.Zero(t, table.Len())
	})
}
