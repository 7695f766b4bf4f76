// Package sqlite implementa los repositorios del callback sobre SQLite
// (modernc.org/sqlite, sin cgo). Pensado para desarrollo, single-node y tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
	"github.com/dropDatabas3/oauthcallback/internal/store/migrate"
)

// MemoryPath abre una base en memoria, privada a este Store.
const MemoryPath = ":memory:"

// querier abstrae *sql.DB y *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store es el adapter SQLite.
type Store struct {
	db *sql.DB
	repos
}

// Open abre la base y aplica las migraciones embebidas.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	var dsn string
	if path == MemoryPath {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	} else {
		dsn = "file:" + filepath.Clean(path) +
			"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// SQLite serializa escrituras; una conexión evita SQLITE_BUSY y mantiene
	// viva la base en memoria.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := migrate.Up(ctx, db, migrate.DriverSQLite); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	return &Store{db: db, repos: repos{q: db}}, nil
}

// Name identifica el driver.
func (s *Store) Name() string { return "sqlite" }

// Ping verifica la conexión.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close libera la base.
func (s *Store) Close() error { return s.db.Close() }

// InTx ejecuta fn con repositorios ligados a una transacción.
func (s *Store) InTx(ctx context.Context, fn func(repository.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(repos{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

type repos struct {
	q querier
}

func (r repos) OuterRequests() repository.OuterRequestRepository {
	return outerRequestRepo{q: r.q}
}

func (r repos) ProviderAccounts() repository.ProviderAccountRepository {
	return providerAccountRepo{q: r.q}
}

func (r repos) Users() repository.UserRepository { return userRepo{q: r.q} }

func (r repos) ContactChannels() repository.ContactChannelRepository {
	return contactChannelRepo{q: r.q}
}

func (r repos) Tokens() repository.OAuthTokenRepository { return tokenRepo{q: r.q} }

// mapErr traduce errores de database/sql y sqlite a los sentinels del dominio.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %s", repository.ErrConflict, serr.Error())
		}
	}
	return err
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
