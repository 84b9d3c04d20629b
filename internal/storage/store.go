package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Options selects and locates the database.
type Options struct {
	Dialect     Dialect
	SQLitePath  string
	DatabaseURL string
	// SkipMigrations leaves the schema untouched, for tools that manage it.
	SkipMigrations bool
}

// Store owns the connection pool and runs units of work in transactions.
type Store struct {
	db      *sql.DB
	dialect Dialect
	queries *Queries
}

func (o *Options) dsn() (string, error) {
	switch o.Dialect {
	case Postgres:
		if o.DatabaseURL == "" {
			return "", errors.New("postgres requires a database url")
		}
		return o.DatabaseURL, nil
	default:
		o.Dialect = SQLite
		if o.SQLitePath == "" {
			return "", errors.New("sqlite requires a database path")
		}
		if dir := filepath.Dir(o.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return "", fmt.Errorf("create db directory: %w", err)
			}
		}
		return sqliteDSN(o.SQLitePath), nil
	}
}

// Open connects, pings and migrates the database.
func Open(ctx context.Context, opts Options) (*Store, error) {
	dsn, err := opts.dsn()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(opts.Dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", opts.Dialect, err)
	}

	if opts.Dialect == SQLite {
		// One writer at a time; the single connection also keeps the
		// per-connection pragmas in effect for every statement.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if !opts.SkipMigrations {
		if err := RunMigrations(opts); err != nil {
			db.Close()
			return nil, err
		}
	}

	slog.InfoContext(ctx, "Database ready", "dialect", opts.Dialect, "migrated", !opts.SkipMigrations)

	return &Store{
		db:      db,
		dialect: opts.Dialect,
		queries: New(db, opts.Dialect),
	}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB exposes the pool for migrations and health checks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() Dialect { return s.dialect }

// Queries runs statements outside of a transaction.
func (s *Store) Queries() *Queries { return s.queries }

// InTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(q *Queries) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
			}
		}
	}()

	if err = fn(s.queries.WithTx(tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
