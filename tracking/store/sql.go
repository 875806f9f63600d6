package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/sweetpotato0/ai-factcheck/tracking"
)

const defaultTable = "tracking_records"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Dialect selects placeholder style and DDL for a SQL backend.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

func (d Dialect) placeholders() sq.PlaceholderFormat {
	if d == Postgres {
		return sq.Dollar
	}
	return sq.Question
}

func (d Dialect) schema(table string) string {
	if d == Postgres {
		return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		article_id VARCHAR(255) PRIMARY KEY,
		position BIGINT NOT NULL,
		payload JSONB NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_position ON %[1]s(position);
	`, table)
	}
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		article_id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		payload TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_position ON %[1]s(position);
	`, table)
}

// SQLStore keeps one row per article. Rows are ordered by a position assigned
// on first insert; upserts keep it.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	table   string
	builder sq.StatementBuilderType
}

var _ tracking.Store = (*SQLStore)(nil)

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Table    string
}

// DefaultPostgresConfig returns default PostgreSQL configuration
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		DBName:   "factcheck",
		SSLMode:  "disable",
		Table:    defaultTable,
	}
}

// OpenPostgres connects to PostgreSQL and creates the table if needed.
func OpenPostgres(ctx context.Context, config *PostgresConfig) (*SQLStore, error) {
	if config == nil {
		config = DefaultPostgresConfig()
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	store, err := NewSQLStore(ctx, db, Postgres, config.Table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// OpenSQLite opens (or creates) a SQLite database file. Use ":memory:" for a
// throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite %s: %w", path, err)
	}
	// One connection: every pooled connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)
	store, err := NewSQLStore(ctx, db, SQLite, defaultTable)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an open database and ensures the table exists.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect, table string) (*SQLStore, error) {
	if table == "" {
		table = defaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	s := &SQLStore{
		db:      db,
		dialect: dialect,
		table:   table,
		builder: sq.StatementBuilder.PlaceholderFormat(dialect.placeholders()),
	}
	if _, err := db.ExecContext(ctx, dialect.schema(table)); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return s, nil
}

// Load implements tracking.Store.
func (s *SQLStore) Load(ctx context.Context) (*tracking.Data, error) {
	rows, err := s.builder.Select("article_id", "payload").
		From(s.table).
		OrderBy("position").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracking records: %w", err)
	}
	defer rows.Close()

	data := tracking.NewData()
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan tracking record: %w", err)
		}
		rec, err := tracking.DecodeRecord([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("article %s: %w", id, err)
		}
		data.Put(id, rec)
	}
	return data, rows.Err()
}

// Has implements tracking.Store.
func (s *SQLStore) Has(ctx context.Context, articleID string) (bool, error) {
	var one int
	err := s.builder.Select("1").
		From(s.table).
		Where(sq.Eq{"article_id": articleID}).
		Limit(1).
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check tracking record: %w", err)
	}
	return true, nil
}

// Save implements tracking.Store.
func (s *SQLStore) Save(ctx context.Context, articleID string, rec tracking.Record) error {
	raw, err := tracking.EncodeRecord(rec)
	if err != nil {
		return err
	}
	position := sq.Expr(fmt.Sprintf("(SELECT COALESCE(MAX(position), 0) + 1 FROM %s)", s.table))
	_, err = s.builder.Insert(s.table).
		Columns("article_id", "position", "payload", "updated_at").
		Values(articleID, position, string(raw), time.Now().UTC()).
		Suffix("ON CONFLICT (article_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at").
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to store tracking record: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}
