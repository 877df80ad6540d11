// ABOUTME: database/sql implementation of the Store interface for SQLite, MySQL, and PostgreSQL
// ABOUTME: Opens connections from a DSN, creates the schema, and normalizes scanned values

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver
)

// DateTimeLayout is how datetimes are written and returned
const DateTimeLayout = "2006-01-02 15:04:05"

// SQLStore implements the Store interface over database/sql
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
}

// Open connects to the database named by dsn, creating the schema if needed.
// driver optionally forces the dialect (sqlite, mysql, postgres).
// SQLite parent directories are created if needed.
func Open(ctx context.Context, dsn, driver string, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	name, conn, err := ParseDSN(dsn, driver)
	if err != nil {
		return nil, err
	}
	d, err := dialectFor(name)
	if err != nil {
		return nil, err
	}

	if d.name == DialectSQLite && conn != ":memory:" && !strings.HasPrefix(conn, "file:") {
		if err := os.MkdirAll(filepath.Dir(conn), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(d.driver, conn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if d.name == DialectSQLite {
		// Each in-memory connection is its own database
		if conn == ":memory:" {
			db.SetMaxOpenConns(1)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling foreign keys: %w", err)
		}
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	s := &SQLStore{db: db, dialect: d, logger: logger}

	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("store initialized", "dialect", d.name)
	return s, nil
}

// NewSQLStore wraps an existing connection without touching the schema.
func NewSQLStore(db *sql.DB, dialectName string, logger *slog.Logger) (*SQLStore, error) {
	d, err := dialectFor(dialectName)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLStore{db: db, dialect: d, logger: logger.With("component", "store")}, nil
}

// Dialect reports the SQL dialect in use.
func (s *SQLStore) Dialect() string {
	return s.dialect.name
}

// Migrate creates tables, indexes, and views that do not exist yet.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Ping verifies the connection is alive.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Query runs a filtered select.
func (s *SQLStore) Query(ctx context.Context, q Query) ([]Row, error) {
	query, args, err := buildSelect(s.dialect, q)
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, query, args)
}

// Aggregate runs a grouped select.
func (s *SQLStore) Aggregate(ctx context.Context, a Aggregate) ([]Row, error) {
	query, args, err := buildAggregate(s.dialect, a)
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, query, args)
}

func (s *SQLStore) fetch(ctx context.Context, query string, args []any) ([]Row, error) {
	start := time.Now()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("query failed", "query", query, "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("querying database: %w", err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("reading column types: %w", err)
	}

	values := make([]any, len(types))
	ptrs := make([]any, len(types))
	for i := range values {
		ptrs[i] = &values[i]
	}

	result := make([]Row, 0)
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(Row, len(types))
		for i, ct := range types {
			row[ct.Name()] = normalize(values[i], ct.DatabaseTypeName())
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	s.logger.Debug("query completed", "query", query, "rows", len(result), "duration", time.Since(start))
	return result, nil
}

var integerTypes = map[string]bool{
	"INT": true, "INTEGER": true, "BIGINT": true, "SMALLINT": true, "TINYINT": true,
	"MEDIUMINT": true, "INT2": true, "INT4": true, "INT8": true,
	"UNSIGNED BIGINT": true, "UNSIGNED INT": true,
}

var decimalTypes = map[string]bool{
	"DECIMAL": true, "NUMERIC": true, "FLOAT": true, "DOUBLE": true, "REAL": true,
	"FLOAT4": true, "FLOAT8": true,
}

// normalize converts driver-specific scan results into JSON-friendly values.
// MySQL returns DECIMAL and DATETIME as []byte, so byte slices are decoded
// using the column's declared type.
func normalize(v any, dbType string) any {
	switch x := v.(type) {
	case []byte:
		str := string(x)
		typ := strings.ToUpper(dbType)
		if integerTypes[typ] {
			if n, err := strconv.ParseInt(str, 10, 64); err == nil {
				return n
			}
		}
		if decimalTypes[typ] {
			if f, err := strconv.ParseFloat(str, 64); err == nil {
				return f
			}
		}
		return str
	case time.Time:
		return x.Format(DateTimeLayout)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}
