package history_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/otarkhan/slotwatch/internal/history"
	"github.com/otarkhan/slotwatch/internal/testutil"
)

func newStore(t *testing.T) *history.Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	store, err := history.NewStore(db, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewStore() = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAddAssignsDefaults(t *testing.T) {
	t.Parallel()
	store := newStore(t)

	rec, err := store.Add(context.Background(), history.Record{
		Appd: "ABC-123", Success: true, TotalSlots: 3,
	})
	if err != nil {
		t.Fatalf("Add() = %v", err)
	}
	if rec.ID == "" {
		t.Error("no id assigned")
	}
	if rec.CheckedAt.IsZero() {
		t.Error("no timestamp assigned")
	}
}

func TestListFiltersAndOrders(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seed := []history.Record{
		{Appd: "ABC-123", Success: true, TotalSlots: 2, CheckedAt: base},
		{Appd: "ABC-123", Success: false, ErrorKind: "bot_challenge", CheckedAt: base.Add(time.Hour)},
		{Appd: "XYZ-999", Success: true, TotalSlots: 1, CheckedAt: base.Add(2 * time.Hour)},
	}
	for _, rec := range seed {
		if _, err := store.Add(ctx, rec); err != nil {
			t.Fatalf("Add() = %v", err)
		}
	}

	all, err := store.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("listed %d records, want 3", len(all))
	}
	if all[0].Appd != "XYZ-999" {
		t.Errorf("first record = %+v, want the newest", all[0])
	}

	filtered, err := store.List(ctx, "ABC-123", 0)
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("filtered %d records, want 2", len(filtered))
	}
	if filtered[0].ErrorKind != "bot_challenge" {
		t.Errorf("newest ABC-123 record = %+v", filtered[0])
	}

	limited, err := store.List(ctx, "", 1)
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited list has %d records, want 1", len(limited))
	}
}
