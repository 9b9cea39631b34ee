package database

import (
	"context"
	"testing"
)

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantUp      bool
		wantOK      bool
	}{
		{
			name:        "valid up migration",
			filename:    "20260214_090000_resolver_state.up.sql",
			wantVersion: "20260214_090000",
			wantUp:      true,
			wantOK:      true,
		},
		{
			name:        "valid down migration",
			filename:    "20260214_090000_resolver_state.down.sql",
			wantVersion: "20260214_090000",
			wantUp:      false,
			wantOK:      true,
		},
		{
			name:     "missing direction",
			filename: "20260214_090000_resolver_state.sql",
			wantOK:   false,
		},
		{
			name:     "not sql",
			filename: "20260214_090000_resolver_state.up.txt",
			wantOK:   false,
		},
		{
			name:     "no version",
			filename: "notes.up.sql",
			wantOK:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion {
				t.Errorf("version = %s, want %s", version, tt.wantVersion)
			}
			if isUp != tt.wantUp {
				t.Errorf("isUp = %v, want %v", isUp, tt.wantUp)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	if got := extractMigrationName("20260214_090000_resolver_state.up.sql"); got != "resolver_state" {
		t.Errorf("extractMigrationName = %s, want resolver_state", got)
	}
}

func TestMigrateWithoutEmbeddedFiles(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// No embedded filesystem registered in this test binary; Migrate
	// must still create the bookkeeping table and succeed.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus: %v", err)
	}
	if len(applied) != 0 || len(pending) != 0 {
		t.Errorf("applied = %d, pending = %d, want 0/0", len(applied), len(pending))
	}
}
