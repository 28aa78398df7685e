// Package backend opens the storage engine selected by configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/abhisek/pathway/internal/config"
	"github.com/abhisek/pathway/internal/store"
	"github.com/abhisek/pathway/internal/store/memstore"
	"github.com/abhisek/pathway/internal/store/sqlstore"
)

// Open resolves the backend for driver. An empty sqlite dsn selects the
// default data path.
func Open(ctx context.Context, driver, dsn string) (store.Backend, error) {
	switch driver {
	case config.DriverMemory:
		return memstore.New(), nil
	case config.DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("postgres requires a DSN")
		}
		return sqlstore.OpenPostgres(ctx, dsn)
	case config.DriverSQLite, "":
		if dsn == "" {
			p, err := store.DefaultDBPath()
			if err != nil {
				return nil, err
			}
			dsn = p
		} else if err := ensureFileDir(dsn); err != nil {
			return nil, err
		}
		slog.Debug("opening sqlite database", "path", dsn)
		return sqlstore.OpenSQLite(ctx, dsn)
	}
	return nil, fmt.Errorf("unknown backend driver %q", driver)
}

// FromConfig opens the backend named by cfg.
func FromConfig(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	return Open(ctx, cfg.DBDriver, cfg.DSN)
}

// ensureFileDir creates the parent directory of plain file paths. DSNs with
// a scheme or query are left to the driver.
func ensureFileDir(dsn string) error {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	return store.EnsureDir(dsn)
}
