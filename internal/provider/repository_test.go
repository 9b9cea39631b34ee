package provider

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE slot_overrides (
			slot       INTEGER PRIMARY KEY,
			package    TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE queried_features (
			package    TEXT PRIMARY KEY,
			features   TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return NewStore(db)
}

func TestOverridePersistence(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SaveOverride(ctx, 0, "com.example.carrier"); err != nil {
		t.Fatalf("SaveOverride: %v", err)
	}
	if err := store.SaveOverride(ctx, 1, "com.example.other"); err != nil {
		t.Fatalf("SaveOverride: %v", err)
	}

	overrides, err := store.ListOverrides(ctx)
	if err != nil {
		t.Fatalf("ListOverrides: %v", err)
	}
	if len(overrides) != 2 || overrides[0] != "com.example.carrier" {
		t.Errorf("overrides = %v", overrides)
	}

	// Saving the same slot replaces the previous owner.
	if err := store.SaveOverride(ctx, 0, "com.example.replacement"); err != nil {
		t.Fatalf("SaveOverride replace: %v", err)
	}
	overrides, _ = store.ListOverrides(ctx)
	if overrides[0] != "com.example.replacement" {
		t.Errorf("slot 0 = %s, want replacement", overrides[0])
	}

	if err := store.ClearOverride(ctx, 0); err != nil {
		t.Fatalf("ClearOverride: %v", err)
	}
	overrides, _ = store.ListOverrides(ctx)
	if _, ok := overrides[0]; ok {
		t.Error("cleared override still listed")
	}
	if len(overrides) != 1 {
		t.Errorf("overrides = %v, want only slot 1", overrides)
	}
}

func TestClearOverrideOnEmptyTable(t *testing.T) {
	store := openTestStore(t)
	if err := store.ClearOverride(context.Background(), 3); err != nil {
		t.Errorf("ClearOverride on empty table: %v", err)
	}
}

func TestQueriedFeaturesRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, found, err := store.GetQueriedFeatures(ctx, "com.example.p"); err != nil || found {
		t.Fatalf("GetQueriedFeatures empty = (%v, %v), want (false, nil)", found, err)
	}

	fs := mustSet(t, "0/mmtel", "1/rcs")
	if err := store.SaveQueriedFeatures(ctx, "com.example.p", fs); err != nil {
		t.Fatalf("SaveQueriedFeatures: %v", err)
	}

	got, found, err := store.GetQueriedFeatures(ctx, "com.example.p")
	if err != nil {
		t.Fatalf("GetQueriedFeatures: %v", err)
	}
	if !found || !got.Equal(fs) {
		t.Errorf("features = %v, want %v", got.Strings(), fs.Strings())
	}

	// Saving again replaces the cached set.
	fs2 := mustSet(t, "0/mmtel")
	if err := store.SaveQueriedFeatures(ctx, "com.example.p", fs2); err != nil {
		t.Fatalf("SaveQueriedFeatures replace: %v", err)
	}
	got, _, _ = store.GetQueriedFeatures(ctx, "com.example.p")
	if !got.Equal(fs2) {
		t.Errorf("features = %v, want %v", got.Strings(), fs2.Strings())
	}

	if err := store.DeleteQueriedFeatures(ctx, "com.example.p"); err != nil {
		t.Fatalf("DeleteQueriedFeatures: %v", err)
	}
	if _, found, _ := store.GetQueriedFeatures(ctx, "com.example.p"); found {
		t.Error("deleted feature set still present")
	}
}
