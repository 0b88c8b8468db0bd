package store

import (
	"context"
	"fmt"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Open connects to the configured backend and ensures its schema exists.
func Open(ctx context.Context, driver, dbURL, sqlitePath string) (Store, error) {
	var (
		st  Store
		err error
	)
	switch driver {
	case DriverPostgres, "":
		st, err = NewPostgresStore(ctx, dbURL)
	case DriverSQLite:
		st, err = OpenSQLite(ctx, sqlitePath)
	case DriverMemory:
		st = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown db driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.EnsureSchema(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return st, nil
}
