package provider

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store persists resolver state that must survive restarts: the per-slot
// override table and feature sets learned through dynamic capability queries.
//
// All methods are safe for concurrent use; SQLite serialises writers.
type Store struct {
	db *sql.DB
}

// NewStore creates a store on top of an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveOverride records pkg as the override provider for slot.
func (s *Store) SaveOverride(ctx context.Context, slot int, pkg string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slot_overrides (slot, package, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			package = excluded.package,
			updated_at = excluded.updated_at
	`, slot, pkg, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving override for slot %d: %w", slot, err)
	}
	return nil
}

// ClearOverride removes the override for slot, if any.
func (s *Store) ClearOverride(ctx context.Context, slot int) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM slot_overrides WHERE slot = ?", slot)
	if err != nil {
		return fmt.Errorf("clearing override for slot %d: %w", slot, err)
	}
	return nil
}

// ListOverrides returns the persisted slot → package override table.
func (s *Store) ListOverrides(ctx context.Context) (map[int]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT slot, package FROM slot_overrides ORDER BY slot")
	if err != nil {
		return nil, fmt.Errorf("listing overrides: %w", err)
	}
	defer rows.Close()

	overrides := make(map[int]string)
	for rows.Next() {
		var slot int
		var pkg string
		if err := rows.Scan(&slot, &pkg); err != nil {
			return nil, fmt.Errorf("scanning override row: %w", err)
		}
		overrides[slot] = pkg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating overrides: %w", err)
	}
	return overrides, nil
}

// SaveQueriedFeatures records the feature set a dynamic capability query
// reported for pkg.
func (s *Store) SaveQueriedFeatures(ctx context.Context, pkg string, fs FeatureSet) error {
	encoded, err := json.Marshal(fs.Strings())
	if err != nil {
		return fmt.Errorf("encoding features for %s: %w", pkg, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO queried_features (package, features, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(package) DO UPDATE SET
			features = excluded.features,
			updated_at = excluded.updated_at
	`, pkg, string(encoded), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving queried features for %s: %w", pkg, err)
	}
	return nil
}

// GetQueriedFeatures returns the persisted feature set for pkg.
// The second return value is false when no row exists.
func (s *Store) GetQueriedFeatures(ctx context.Context, pkg string) (FeatureSet, bool, error) {
	var encoded string
	err := s.db.QueryRowContext(ctx,
		"SELECT features FROM queried_features WHERE package = ?", pkg,
	).Scan(&encoded)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading queried features for %s: %w", pkg, err)
	}

	var items []string
	if err := json.Unmarshal([]byte(encoded), &items); err != nil {
		return nil, false, fmt.Errorf("decoding queried features for %s: %w", pkg, err)
	}
	fs, err := ParseFeatureSet(items)
	if err != nil {
		return nil, false, fmt.Errorf("parsing queried features for %s: %w", pkg, err)
	}
	return fs, true, nil
}

// DeleteQueriedFeatures drops the persisted feature set for pkg.
// Called when the package is uninstalled.
func (s *Store) DeleteQueriedFeatures(ctx context.Context, pkg string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM queried_features WHERE package = ?", pkg)
	if err != nil {
		return fmt.Errorf("deleting queried features for %s: %w", pkg, err)
	}
	return nil
}
