package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // pure Go SQLite driver

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// SQL drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SQLConfig configures a SQLSource.
type SQLConfig struct {
	Driver string
	DSN    string

	// Table holds file_id, filename, file_type, text and ocr_text columns.
	Table string

	// OrderBy fixes document order, and therefore doc_index.
	OrderBy string

	MaxOpenConns int
	Retry        amerrors.RetryConfig
}

// SQLSource reads the corpus from a table.
type SQLSource struct {
	db    *sql.DB
	query string
}

// OpenSQL opens the database and pings it with retries.
func OpenSQL(ctx context.Context, cfg SQLConfig) (*SQLSource, error) {
	driver := strings.ToLower(cfg.Driver)
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, amerrors.Newf(amerrors.ErrCodeUnknownBackend,
			"unknown corpus driver %q (available: %s, %s)", cfg.Driver, DriverPostgres, DriverSQLite)
	}
	if cfg.Table == "" {
		cfg.Table = "documents"
	}
	if cfg.OrderBy == "" {
		cfg.OrderBy = "file_id"
	}
	for _, id := range []string{cfg.Table, cfg.OrderBy} {
		if !identifier.MatchString(id) {
			return nil, amerrors.ConfigError(fmt.Sprintf("invalid SQL identifier %q", id), nil)
		}
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = amerrors.DefaultRetryConfig()
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	_, err = amerrors.RetryWithResult(ctx, cfg.Retry, func() (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return struct{}{}, db.PingContext(pingCtx)
	})
	if err != nil {
		_ = db.Close()
		return nil, amerrors.New(amerrors.ErrCodeNetworkUnavailable, "cannot reach "+driver+" corpus database", err)
	}

	query := fmt.Sprintf(`SELECT file_id,
	COALESCE(filename, ''), COALESCE(file_type, ''),
	COALESCE(text, ''), COALESCE(ocr_text, '')
FROM %s ORDER BY %s`, cfg.Table, cfg.OrderBy)

	return &SQLSource{db: db, query: query}, nil
}

// Load reads every row in order.
func (s *SQLSource) Load(ctx context.Context) ([]store.Document, error) {
	rows, err := s.db.QueryContext(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("querying corpus: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs := []store.Document{}
	for rows.Next() {
		var d store.Document
		if err := rows.Scan(&d.FileID, &d.Filename, &d.FileType, &d.Text, &d.OCRText); err != nil {
			return nil, fmt.Errorf("scanning corpus row %d: %w", len(docs)+1, err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading corpus rows: %w", err)
	}
	return docs, nil
}

// DB exposes the handle, for tests and migrations.
func (s *SQLSource) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLSource) Close() error {
	return s.db.Close()
}

var _ Source = (*SQLSource)(nil)
