package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"painel/internal/core"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	queryLoadAll = `SELECT data, receitas, despesas FROM dados_financeiros ORDER BY data ASC`

	queryUpsert = `INSERT INTO dados_financeiros (data, receitas, despesas) VALUES (?, ?, ?)
ON CONFLICT (data) DO UPDATE SET receitas = excluded.receitas, despesas = excluded.despesas`

	queryDelete = `DELETE FROM dados_financeiros WHERE data = ?`
)

// Repository executes single-statement reads and writes against
// dados_financeiros. It holds no business logic.
type Repository struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the store named by databaseURL, runs migrations and
// verifies the connection.
func Open(ctx context.Context, databaseURL string) (*Repository, error) {
	dialect, dsn, err := ParseDatabaseURL(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if dialect == DialectSQLite {
		if err := ensureDir(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// One writer at a time keeps SQLite from returning SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w: %w", core.ErrConnection, err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.InfoContext(ctx, "Record store ready", "dialect", dialect)
	return &Repository{db: db, dialect: dialect}, nil
}

func ensureDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Dialect reports the engine the repository talks to.
func (r *Repository) Dialect() Dialect {
	return r.dialect
}

// Ping checks that the store is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w: %w", core.ErrConnection, err)
	}
	return nil
}

// LoadAll returns every record ordered by date ascending.
func (r *Repository) LoadAll(ctx context.Context) ([]core.FinancialRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(queryLoadAll))
	if err != nil {
		return nil, fmt.Errorf("load records: %w: %w", core.ErrConnection, err)
	}
	defer rows.Close()

	var records []core.FinancialRecord
	for rows.Next() {
		var rec core.FinancialRecord
		if err := rows.Scan(&rec.Date, &rec.Revenue, &rec.Expense); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w: %w", core.ErrConnection, err)
	}

	return records, nil
}

// Upsert inserts the record or replaces revenue and expense for its date.
func (r *Repository) Upsert(ctx context.Context, rec core.FinancialRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, r.dialect.rebind(queryUpsert),
		rec.Date, rec.Revenue.String(), rec.Expense.String())
	if err != nil {
		return fmt.Errorf("upsert record %s: %w: %w", rec.Date, core.ErrConnection, err)
	}

	slog.InfoContext(ctx, "Record upserted",
		"date", rec.Date.String(),
		"revenue", rec.Revenue.String(),
		"expense", rec.Expense.String())
	return nil
}

// Delete removes the record for date. Deleting a missing date is not an error.
func (r *Repository) Delete(ctx context.Context, date core.Date) error {
	if date.IsZero() {
		return &core.ValidationError{Field: "data", Reason: "required"}
	}

	res, err := r.db.ExecContext(ctx, r.dialect.rebind(queryDelete), date)
	if err != nil {
		return fmt.Errorf("delete record %s: %w: %w", date, core.ErrConnection, err)
	}

	affected, _ := res.RowsAffected()
	slog.InfoContext(ctx, "Record deleted", "date", date.String(), "rows_affected", affected)
	return nil
}
