package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nzvengeance/launch-shelf/internal/config"
	"github.com/nzvengeance/launch-shelf/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	cfg := &config.Config{
		StoreDriver: "sqlite",
		DBPath:      filepath.Join(t.TempDir(), "nested", "test.db"),
	}
	db, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSlotStore(t *testing.T) {
	db := openTestDB(t)
	slots := db.Slots()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, ok, err := slots.Get(ctx, "launchList")
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if ok {
			t.Error("expected missing key")
		}
	})

	t.Run("set then overwrite", func(t *testing.T) {
		if err := slots.Set(ctx, "rocketCostMap", []byte(`{"falcon9":1}`)); err != nil {
			t.Fatalf("Set() error: %v", err)
		}
		if err := slots.Set(ctx, "rocketCostMap", []byte(`{"falcon9":2}`)); err != nil {
			t.Fatalf("second Set() error: %v", err)
		}
		val, ok, err := slots.Get(ctx, "rocketCostMap")
		if err != nil || !ok {
			t.Fatalf("Get() = %v, %v", ok, err)
		}
		if string(val) != `{"falcon9":2}` {
			t.Errorf("Get() = %s", val)
		}
	})
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	if _, err := New(&config.Config{StoreDriver: "mysql"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if _, err := New(&config.Config{StoreDriver: "postgres"}); err == nil {
		t.Fatal("expected error for postgres without DATABASE_URL")
	}
}

func TestSyncHistory(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.InsertSyncStatus(ctx, &models.SyncRecord{SyncType: "launches", Status: "running"})
	if err != nil {
		t.Fatalf("InsertSyncStatus() error: %v", err)
	}
	if err := db.UpdateSyncStatus(ctx, id, "error", 0, "Not found"); err != nil {
		t.Fatalf("UpdateSyncStatus() error: %v", err)
	}

	history, err := db.GetLatestSyncStatus(ctx, 5)
	if err != nil {
		t.Fatalf("GetLatestSyncStatus() error: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 record, got %d", len(history))
	}
	rec := history[0]
	if rec.SyncType != "launches" || rec.Status != "error" || rec.ErrorMessage != "Not found" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.CompletedAt.IsZero() {
		t.Error("CompletedAt should be set")
	}
}

func TestReplacePlaceholders(t *testing.T) {
	got := replacePlaceholders("UPDATE t SET a = ?, b = ? WHERE id = ?")
	want := "UPDATE t SET a = $1, b = $2 WHERE id = $3"
	if got != want {
		t.Errorf("replacePlaceholders() = %q, want %q", got, want)
	}
}
