package backend

import (
	"context"
	"path/filepath"
	"testing"

	"ledger-aggregates/internal/config"
	"ledger-aggregates/internal/domain"
)

func TestOpen_Memory(t *testing.T) {
	stores, cleanup, err := Open(context.Background(), &config.Config{StoreBackend: config.BackendMemory}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cleanup()

	if stores.Sequencer == nil || stores.Snapshots == nil || stores.Cursor == nil {
		t.Fatalf("incomplete stores: %+v", stores)
	}
}

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		StoreBackend: config.BackendSQLite,
		SQLitePath:   filepath.Join(t.TempDir(), "agg.db"),
	}

	stores, cleanup, err := Open(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cleanup()

	v, err := stores.Sequencer.NextVersion(ctx, domain.SeriesKey{EntityKey: "a", MetricKind: domain.MetricSupply}, 0)
	if err != nil {
		t.Fatalf("NextVersion: %v", err)
	}
	if v != 0 {
		t.Errorf("first version = %d, want 0", v)
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, _, err := Open(context.Background(), &config.Config{StoreBackend: config.BackendPostgres}, nil)
	if err == nil {
		t.Fatal("expected error for postgres without dsn")
	}
}
