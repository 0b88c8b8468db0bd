package cli

import (
	"context"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/PratikDhanave/access-status-service/internal/reconcile"
	"github.com/PratikDhanave/access-status-service/internal/store"
)

// StoreConnection holds the flags that select and locate the store. Defaults
// come from the same environment variables the API server reads.
type StoreConnection struct {
	Driver     string
	DBURL      string
	SQLitePath string
	Verbose    bool
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// AddFlags registers the connection flags on flagSet.
func (c *StoreConnection) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.Driver, "driver", envOr("DB_DRIVER", store.DriverSQLite), "store backend: postgres, sqlite or memory")
	flagSet.StringVar(&c.DBURL, "db-url", os.Getenv("DB_URL"), "Postgres connection URL")
	flagSet.StringVar(&c.SQLitePath, "sqlite-path", envOr("SQLITE_PATH", "./data/access-status.db"), "SQLite database file")
	flagSet.BoolVarP(&c.Verbose, "verbose", "v", false, "log engine decisions to stderr")
}

func (c *StoreConnection) open(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, c.Driver, c.DBURL, c.SQLitePath)
}

// engine opens the store and returns an engine over it. The caller closes
// the store.
func (c *StoreConnection) engine(ctx context.Context) (*reconcile.Engine, store.Store, error) {
	st, err := c.open(ctx)
	if err != nil {
		return nil, nil, err
	}
	return reconcile.NewEngine(st, c.logger()), st, nil
}

func (c *StoreConnection) logger() *zap.Logger {
	if !c.Verbose {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}
