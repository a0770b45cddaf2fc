package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/amanrag/internal/search"
)

// FormatSearchResults renders a response as markdown for the text content
// of a tool result.
func FormatSearchResults(query string, resp *search.Response) string {
	if resp == nil || len(resp.Results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(resp.Results))
	if len(resp.Results) != 1 {
		sb.WriteString("s")
	}
	fmt.Fprintf(&sb, " via `%s`\n\n", resp.Method)
	for _, d := range resp.Degraded {
		fmt.Fprintf(&sb, "_Skipped variant \"%s\": %s_\n\n", d.Variant, d.Code)
	}

	for i, r := range resp.Results {
		formatResult(&sb, i+1, query, r)
	}
	return sb.String()
}

func formatResult(sb *strings.Builder, n int, query string, r search.Result) {
	name := r.Filename
	if name == "" {
		name = r.FileID
	}
	fmt.Fprintf(sb, "### %d. %s (score: %.4f)\n", n, name, r.Score)
	fmt.Fprintf(sb, "- file_id: `%s`\n", r.FileID)
	if r.FileType != "" {
		fmt.Fprintf(sb, "- type: %s\n", r.FileType)
	}
	fmt.Fprintf(sb, "- %s\n", matchReason(query, r))
	sb.WriteString("\n")
}

// matchReason explains which passes and retrievers surfaced a result.
func matchReason(query string, r search.Result) string {
	var parts []string
	switch {
	case r.LexicalScore > 0 && r.DenseScore > 0:
		parts = append(parts, "keyword and semantic match")
	case r.LexicalScore > 0:
		parts = append(parts, "keyword match")
	case r.DenseScore > 0:
		parts = append(parts, "semantic match")
	}
	if r.MatchCount > 1 {
		parts = append(parts, fmt.Sprintf("found by %d query variants", r.MatchCount))
	}
	if r.Variant != "" && r.Variant != query {
		parts = append(parts, fmt.Sprintf("best via \"%s\"", r.Variant))
	}
	if len(parts) == 0 {
		return "matched by " + string(r.Method)
	}
	return strings.Join(parts, ", ")
}

// FormatVariants renders expanded variants as a markdown list.
func FormatVariants(query string, variants []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Variants for \"%s\"\n\n", query)
	for i, v := range variants {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, v)
	}
	return sb.String()
}
