// Package logging configures structured slog output for amanrag.
// Logs are JSON lines written to a size-rotated file under ~/.amanrag/logs/
// and, outside of MCP stdio mode, mirrored to stderr.
package logging
