package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/nx-scanner/internal/ledger"
)

func initStore(ctx context.Context) (ledger.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "scans.db"
		}
		return ledger.NewSQLite(dsn)
	case "postgres":
		return ledger.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initLedger opens the configured store, runs migrations, and wraps it
// in the ledger service. The caller owns the returned store's lifetime.
func initLedger(ctx context.Context) (*ledger.Ledger, ledger.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, nil, err
	}
	return ledger.New(st, cfg.Ledger), st, nil
}
