package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// Dialect names a supported SQL backend. Its value is the database/sql driver name.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "postgres"
)

// ParseDialect validates a driver name.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case SQLite, Postgres:
		return d, nil
	case "sqlite", "":
		return SQLite, nil
	case "postgresql", "pgx":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", s)
	}
}

// DB wraps a connection pool with the dialect its queries must be written for.
type DB struct {
	*sql.DB
	dialect Dialect
}

// Dialect returns the backend of the pool.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// New opens a SQLite database at the given path with foreign keys enabled.
func New(path string) (*DB, error) {
	return Open(SQLite, path)
}

// Open opens a connection pool for the dialect and verifies it.
// For SQLite, dsn is a file path; pragmas for foreign keys, WAL and a busy timeout are
// added to every connection. For Postgres, dsn is a connection URL.
func Open(dialect Dialect, dsn string) (*DB, error) {
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}

	source := dsn
	if dialect == SQLite {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		source = dsn + sep + "_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"
	}

	sqlDB, err := sql.Open(string(dialect), source)
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &DB{DB: sqlDB, dialect: dialect}, nil
}

// Ping verifies the store is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to the dialect's form.
func (db *DB) rebind(query string) string {
	if db.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// dateParam is the placeholder for a YYYY-MM-DD value; empty strings are stored as NULL.
func (db *DB) dateParam() string {
	if db.dialect == Postgres {
		return "CAST(NULLIF(?, '') AS DATE)"
	}
	return "?"
}

// dateColumn selects a date column as YYYY-MM-DD text, empty when NULL.
func (db *DB) dateColumn(col string) string {
	if db.dialect == Postgres {
		return fmt.Sprintf("COALESCE(to_char(%s, 'YYYY-MM-DD'), '')", col)
	}
	return fmt.Sprintf("COALESCE(%s, '')", col)
}

// jsonParam is the placeholder for a JSON document.
func (db *DB) jsonParam() string {
	if db.dialect == Postgres {
		return "CAST(? AS JSONB)"
	}
	return "?"
}

// placeholders returns n comma-separated ? markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Migrate creates the required tables and indexes.
// It is idempotent and can be run multiple times safely.
func Migrate(db *DB) error {
	schema := sqliteSchema
	if db.dialect == Postgres {
		schema = postgresSchema
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		item_seq TEXT PRIMARY KEY,
		entp_name TEXT,
		item_name TEXT,
		item_image TEXT,
		bizrno TEXT,
		open_de TEXT,
		update_de TEXT,
		is_otc INTEGER NOT NULL DEFAULT 1,
		raw_json TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS product_sections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_seq TEXT NOT NULL,
		section TEXT NOT NULL,
		part_idx INTEGER NOT NULL,
		text TEXT NOT NULL,
		FOREIGN KEY (item_seq) REFERENCES products(item_seq) ON DELETE CASCADE,
		UNIQUE (item_seq, section, part_idx)
	);`,
	`CREATE TABLE IF NOT EXISTS product_aliases (
		alias TEXT NOT NULL,
		item_seq TEXT NOT NULL,
		FOREIGN KEY (item_seq) REFERENCES products(item_seq) ON DELETE CASCADE,
		PRIMARY KEY (alias, item_seq)
	);`,
	`CREATE TABLE IF NOT EXISTS product_ingredients (
		item_seq TEXT NOT NULL,
		ingredient TEXT NOT NULL,
		FOREIGN KEY (item_seq) REFERENCES products(item_seq) ON DELETE CASCADE,
		PRIMARY KEY (item_seq, ingredient)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_product_sections_section ON product_sections(section);`,
	`CREATE INDEX IF NOT EXISTS idx_product_aliases_item_seq ON product_aliases(item_seq);`,
	`CREATE INDEX IF NOT EXISTS idx_product_ingredients_ingredient ON product_ingredients(ingredient);`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		item_seq TEXT PRIMARY KEY,
		entp_name TEXT,
		item_name TEXT,
		item_image TEXT,
		bizrno TEXT,
		open_de DATE,
		update_de DATE,
		is_otc BOOLEAN NOT NULL DEFAULT TRUE,
		raw_json JSONB
	);`,
	`CREATE TABLE IF NOT EXISTS product_sections (
		id BIGSERIAL PRIMARY KEY,
		item_seq TEXT NOT NULL REFERENCES products(item_seq) ON DELETE CASCADE,
		section TEXT NOT NULL,
		part_idx INTEGER NOT NULL,
		text TEXT NOT NULL,
		UNIQUE (item_seq, section, part_idx)
	);`,
	`CREATE TABLE IF NOT EXISTS product_aliases (
		alias TEXT NOT NULL,
		item_seq TEXT NOT NULL REFERENCES products(item_seq) ON DELETE CASCADE,
		PRIMARY KEY (alias, item_seq)
	);`,
	`CREATE TABLE IF NOT EXISTS product_ingredients (
		item_seq TEXT NOT NULL REFERENCES products(item_seq) ON DELETE CASCADE,
		ingredient TEXT NOT NULL,
		PRIMARY KEY (item_seq, ingredient)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_product_sections_section ON product_sections(section);`,
	`CREATE INDEX IF NOT EXISTS idx_product_aliases_item_seq ON product_aliases(item_seq);`,
	`CREATE INDEX IF NOT EXISTS idx_product_ingredients_ingredient ON product_ingredients(ingredient);`,
}
