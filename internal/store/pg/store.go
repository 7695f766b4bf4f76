// Package pg implementa los repositorios del callback sobre PostgreSQL.
// Usa pgxpool directamente; las transacciones se exponen vía InTx.
package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
)

// querier abstrae *pgxpool.Pool y pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Config configura el pool.
type Config struct {
	DSN      string
	MaxConns int32
}

// Store es el adapter PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	repos
}

// Open crea el pool y verifica conectividad.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}

	return &Store{pool: pool, repos: repos{q: pool}}, nil
}

// Name identifica el driver.
func (s *Store) Name() string { return "postgres" }

// Ping verifica la conexión.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close libera el pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// InTx ejecuta fn con repositorios ligados a una transacción.
func (s *Store) InTx(ctx context.Context, fn func(repository.Repositories) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pg: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(repos{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pg: commit: %w", err)
	}
	return nil
}

// repos implementa repository.Repositories sobre un querier.
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

// mapErr traduce errores de pgx a los sentinels del dominio.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" { // unique_violation
			return fmt.Errorf("%w: %s", repository.ErrConflict, pgErr.ConstraintName)
		}
	}
	return err
}

// nullIfEmpty retorna nil si el string está vacío.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
