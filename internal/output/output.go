// Package output renders CLI output: status lines, search results and
// index statistics, coloured only on terminals.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/amanrag/internal/search"
)

// Format selects how results are rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat parses a --format value.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text or json)", s)
	}
}

// Writer provides formatted CLI output. Write errors are ignored, as for
// any console output.
type Writer struct {
	out    io.Writer
	styles Styles
}

// New creates a Writer, coloured when out is a terminal and NO_COLOR is unset.
func New(out io.Writer) *Writer {
	if IsTTY(out) && !DetectNoColor() {
		return NewWithStyles(out, DefaultStyles(out))
	}
	return NewWithStyles(out, NoColorStyles())
}

// NewWithStyles creates a Writer with explicit styles.
func NewWithStyles(out io.Writer, styles Styles) *Writer {
	return &Writer{out: out, styles: styles}
}

// Status prints a message with an icon, or indented without one.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
}

// Statusf is Status with formatting.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status("✅", w.styles.Success.Render(msg))
}

// Successf is Success with formatting.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", w.styles.Warning.Render(msg))
}

// Warningf is Warning with formatting.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", w.styles.Error.Render(msg))
}

// Errorf is Error with formatting.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON prints v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// Results prints a search response in format.
func (w *Writer) Results(query string, resp *search.Response, format Format) error {
	if format == FormatJSON {
		return w.JSON(resp)
	}

	if len(resp.Results) == 0 {
		w.Warningf("No results for %q (method %s)", query, resp.Method)
		return nil
	}

	header := fmt.Sprintf("%d results for %q", resp.Total, query)
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(header))
	_, _ = fmt.Fprintln(w.out, w.styles.Dim.Render(fmt.Sprintf("method=%s time=%s generation=%d%s",
		resp.Method, resp.QueryTime.Round(time.Microsecond), resp.Generation, cachedSuffix(resp.Cached))))
	w.Newline()

	for i, r := range resp.Results {
		name := r.Filename
		if name == "" {
			name = r.FileID
		}
		_, _ = fmt.Fprintf(w.out, "%2d. %s  %s\n", i+1, w.styles.Score.Render(fmt.Sprintf("%.4f", r.Score)), name)

		details := []string{"id=" + r.FileID, fmt.Sprintf("matches=%d", r.MatchCount), "method=" + string(r.Method)}
		if r.FileType != "" {
			details = append(details, "type="+r.FileType)
		}
		if r.Variant != "" && r.Variant != query {
			details = append(details, "via="+r.Variant)
		}
		if r.LexicalScore != 0 || r.DenseScore != 0 {
			details = append(details, fmt.Sprintf("lexical=%.4f dense=%.4f", r.LexicalScore, r.DenseScore))
		}
		_, _ = fmt.Fprintf(w.out, "    %s\n", w.styles.Label.Render(strings.Join(details, "  ")))
	}
	return nil
}

func cachedSuffix(cached bool) string {
	if cached {
		return " cached"
	}
	return ""
}

// Variants prints the expanded query variants, seed first.
func (w *Writer) Variants(query string, variants []string, format Format) error {
	if format == FormatJSON {
		return w.JSON(map[string]any{"query": query, "variants": variants})
	}
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(fmt.Sprintf("%d variants for %q", len(variants), query)))
	for i, v := range variants {
		_, _ = fmt.Fprintf(w.out, "%2d. %s\n", i+1, v)
	}
	return nil
}

// Stats prints index statistics.
func (w *Writer) Stats(stats search.Stats, format Format) error {
	if format == FormatJSON {
		return w.JSON(stats)
	}

	rows := [][2]string{
		{"Documents", fmt.Sprintf("%d", stats.Documents)},
		{"Terms", fmt.Sprintf("%d", stats.Terms)},
		{"Avg doc length", fmt.Sprintf("%.2f", stats.AvgDocLength)},
		{"Generation", fmt.Sprintf("%d", stats.Generation)},
		{"Lexical backend", stats.LexicalBackend},
		{"Dense backend", stats.DenseBackend},
		{"Synonyms", fmt.Sprintf("%d", stats.Synonyms)},
	}
	if !stats.BuiltAt.IsZero() {
		rows = append(rows, [2]string{"Built at", stats.BuiltAt.Format("2006-01-02 15:04:05")})
	}
	for _, row := range rows {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", w.styles.Label.Render(fmt.Sprintf("%-16s", row[0]+":")), row[1])
	}

	if len(stats.FilesByType) > 0 {
		types := make([]string, 0, len(stats.FilesByType))
		for t := range stats.FilesByType {
			types = append(types, t)
		}
		sort.Strings(types)
		_, _ = fmt.Fprintln(w.out, w.styles.Label.Render("Files by type:"))
		for _, t := range types {
			_, _ = fmt.Fprintf(w.out, "   %-12s %d\n", t, stats.FilesByType[t])
		}
	}
	return nil
}
