// Package migrate aplica las migraciones embebidas con goose.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib" // driver "pgx" para database/sql
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // driver "sqlite" para database/sql

	"github.com/dropDatabas3/oauthcallback/migrations"
)

// Drivers soportados.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Result resume una corrida de migraciones.
type Result struct {
	Applied []int64
	Current int64
}

func provider(db *sql.DB, driver string) (*goose.Provider, error) {
	var (
		dialect goose.Dialect
		dir     string
	)
	switch driver {
	case DriverPostgres:
		dialect, dir = goose.DialectPostgres, migrations.PostgresDir
	case DriverSQLite:
		dialect, dir = goose.DialectSQLite3, migrations.SQLiteDir
	default:
		return nil, fmt.Errorf("migrate: unsupported driver %q", driver)
	}

	fsys, err := fs.Sub(migrations.FS, dir)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return goose.NewProvider(dialect, db, fsys)
}

// Up aplica todas las migraciones pendientes sobre db.
func Up(ctx context.Context, db *sql.DB, driver string) (*Result, error) {
	p, err := provider(db, driver)
	if err != nil {
		return nil, err
	}

	results, err := p.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate: up: %w", err)
	}

	res := &Result{}
	for _, r := range results {
		res.Applied = append(res.Applied, r.Source.Version)
	}
	if res.Current, err = p.GetDBVersion(ctx); err != nil {
		return nil, fmt.Errorf("migrate: version: %w", err)
	}
	return res, nil
}

// UpDSN abre una conexión database/sql para el driver y aplica Up.
// Para postgres usa pgx/v5/stdlib.
func UpDSN(ctx context.Context, driver, dsn string) (*Result, error) {
	sqlDriver := "sqlite"
	if driver == DriverPostgres {
		sqlDriver = "pgx"
	}
	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("migrate: open database: %w", err)
	}
	defer db.Close()

	return Up(ctx, db, driver)
}
