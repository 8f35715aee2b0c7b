package store

import (
	"context"
	"os"
	"testing"
	"time"

	"calltrack/pkg/utils"
)

// Runs against a disposable database when CALLTRACK_TEST_POSTGRES_DSN is set.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CALLTRACK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CALLTRACK_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	runContract(t, func(t *testing.T) Store {
		db, err := utils.OpenPostgres(ctx, "pgx", dsn, utils.PoolConfig{})
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if err := Migrate(db); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		if _, err := db.ExecContext(ctx, `TRUNCATE recompute_events, calls, leads, tenants`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		p := NewPostgres(db)
		p.PollInterval = 50 * time.Millisecond
		t.Cleanup(func() { _ = p.Close() })
		return p
	})
}
