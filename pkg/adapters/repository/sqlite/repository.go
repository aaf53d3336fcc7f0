package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	_ "modernc.org/sqlite"                               // Local SQLite driver

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/ns-shortener/pkg/logging"
	"github.com/wadjakorntonsri/ns-shortener/pkg/ports"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRepository backs the URL store, the click ledger and the namespace
// table with one database.
type SQLiteRepository struct {
	db        *sql.DB
	opTimeout time.Duration
}

type Option func(*SQLiteRepository)

// WithOpTimeout bounds every statement issued by the repository.
func WithOpTimeout(d time.Duration) Option {
	return func(r *SQLiteRepository) {
		if d > 0 {
			r.opTimeout = d
		}
	}
}

func NewSQLiteRepository(dbURL string, opts ...Option) (*SQLiteRepository, error) {
	driverName := "sqlite"
	if strings.Contains(dbURL, "libsql://") || strings.Contains(dbURL, "wss://") {
		driverName = "libsql"
	}

	dsn := dbURL
	if driverName == "sqlite" && !strings.Contains(dsn, "_pragma") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	if isMemoryDSN(dbURL) {
		// Every connection to a private in-memory database is a new database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r := &SQLiteRepository{db: db, opTimeout: 3 * time.Second}
	for _, opt := range opts {
		opt(r)
	}
	logging.Info().Str("driver", driverName).Msg("database ready")
	return r, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Ping reports whether the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opTimeout)
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func migrate(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS namespaces (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		name TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_namespaces_organization ON namespaces(organization_id);

	CREATE TABLE IF NOT EXISTS short_urls (
		namespace_id TEXT NOT NULL,
		shortcode TEXT NOT NULL,
		id TEXT NOT NULL UNIQUE,
		namespace_name TEXT NOT NULL DEFAULT '',
		original_url TEXT NOT NULL,
		created_by_user_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		click_count INTEGER NOT NULL DEFAULT 0,
		is_private INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		expiry TEXT,
		tags TEXT NOT NULL DEFAULT '[]',
		redirect_type TEXT NOT NULL DEFAULT 'temporary',
		PRIMARY KEY (namespace_id, shortcode)
	);

	CREATE TABLE IF NOT EXISTS url_analytics (
		namespace_id TEXT NOT NULL,
		shortcode TEXT NOT NULL,
		click_date TEXT NOT NULL,
		click_timestamp TEXT NOT NULL,
		event_id TEXT NOT NULL,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		referer TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (namespace_id, shortcode, click_date, click_timestamp, event_id)
	);
	CREATE INDEX IF NOT EXISTS idx_url_analytics_namespace_date ON url_analytics(namespace_id, click_date);
	`
	_, err := db.Exec(query)
	return err
}

// mapError classifies driver errors into domain errors.
func mapError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case isConstraintViolation(err):
		return fmt.Errorf("%s: %w", op, domain.ErrConflict)
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
	}
}

// isConstraintViolation matches on the message so it works for both drivers.
func isConstraintViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed") ||
		strings.Contains(msg, "SQLITE_CONSTRAINT")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure interface compliance
var (
	_ ports.URLRepository       = (*SQLiteRepository)(nil)
	_ ports.ClickLedger         = (*SQLiteRepository)(nil)
	_ ports.NamespaceRepository = (*SQLiteRepository)(nil)
)
