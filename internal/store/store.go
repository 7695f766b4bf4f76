// Package store abre el backend de persistencia configurado.
//
//	Open(cfg) ─┬─► pg.Store      (pgxpool)
//	           └─► sqlite.Store  (modernc, migraciones al abrir)
package store

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
	"github.com/dropDatabas3/oauthcallback/internal/store/migrate"
	"github.com/dropDatabas3/oauthcallback/internal/store/pg"
	"github.com/dropDatabas3/oauthcallback/internal/store/sqlite"
)

// Store es un backend completo: repositorios, transacciones y health.
type Store interface {
	repository.Repositories
	repository.TxRunner
	Name() string
	Ping(ctx context.Context) error
	Close() error
}

// Config selecciona y configura el backend.
type Config struct {
	Driver       string // postgres | sqlite
	DSN          string
	MaxOpenConns int
	// AutoMigrate aplica migraciones al abrir (sqlite siempre migra).
	AutoMigrate bool
}

// Open crea el Store para cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case migrate.DriverPostgres:
		if cfg.AutoMigrate {
			if _, err := migrate.UpDSN(ctx, cfg.Driver, cfg.DSN); err != nil {
				return nil, err
			}
		}
		return pg.Open(ctx, pg.Config{DSN: cfg.DSN, MaxConns: int32(cfg.MaxOpenConns)})
	case migrate.DriverSQLite:
		return sqlite.Open(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", cfg.Driver)
	}
}

var (
	_ Store = (*pg.Store)(nil)
	_ Store = (*sqlite.Store)(nil)
)
