package device

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// TagRepository manages device tag associations.
type TagRepository interface {
	// SetTags replaces the full tag set of a device.
	SetTags(ctx context.Context, deviceID string, tags []string) error

	// GetTags returns the tags of a device, sorted.
	GetTags(ctx context.Context, deviceID string) ([]string, error)

	// AddTag is idempotent.
	AddTag(ctx context.Context, deviceID, tag string) error

	RemoveTag(ctx context.Context, deviceID, tag string) error

	// ListDevicesByTag returns sorted device IDs carrying tag.
	ListDevicesByTag(ctx context.Context, tag string) ([]string, error)

	// GetTagsForDevices bulk-loads tags keyed by device ID.
	GetTagsForDevices(ctx context.Context, deviceIDs []string) (map[string][]string, error)
}

// SQLiteTagRepository implements TagRepository using SQLite.
type SQLiteTagRepository struct {
	db *sql.DB
}

// NewSQLiteTagRepository creates a new SQLite-backed tag repository.
func NewSQLiteTagRepository(db *sql.DB) *SQLiteTagRepository {
	return &SQLiteTagRepository{db: db}
}

// SetTags deletes and re-inserts the device's tags in one transaction.
func (r *SQLiteTagRepository) SetTags(ctx context.Context, deviceID string, tags []string) error {
	if deviceID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM device_tags WHERE device_id = ?", deviceID); err != nil {
		return fmt.Errorf("clearing device tags: %w", err)
	}
	for _, tag := range normaliseTags(tags) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO device_tags (device_id, tag) VALUES (?, ?)", deviceID, tag); err != nil {
			return fmt.Errorf("inserting tag %q: %w", tag, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetTags returns all tags for a device.
func (r *SQLiteTagRepository) GetTags(ctx context.Context, deviceID string) ([]string, error) {
	return queryStrings(ctx, r.db, "querying device tags",
		"SELECT tag FROM device_tags WHERE device_id = ? ORDER BY tag", deviceID)
}

// AddTag adds a single tag. INSERT OR IGNORE keeps it idempotent.
func (r *SQLiteTagRepository) AddTag(ctx context.Context, deviceID, tag string) error {
	n, err := checkTagArgs(deviceID, tag)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO device_tags (device_id, tag) VALUES (?, ?)", deviceID, n); err != nil {
		return fmt.Errorf("adding device tag: %w", err)
	}
	return nil
}

// RemoveTag removes a single tag. Removing an absent tag is not an error.
func (r *SQLiteTagRepository) RemoveTag(ctx context.Context, deviceID, tag string) error {
	n, err := checkTagArgs(deviceID, tag)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM device_tags WHERE device_id = ? AND tag = ?", deviceID, n); err != nil {
		return fmt.Errorf("removing device tag: %w", err)
	}
	return nil
}

// ListDevicesByTag returns all device IDs that have the given tag.
func (r *SQLiteTagRepository) ListDevicesByTag(ctx context.Context, tag string) ([]string, error) {
	n := normaliseTag(tag)
	if n == "" {
		return []string{}, nil
	}
	return queryStrings(ctx, r.db, "querying devices by tag",
		"SELECT device_id FROM device_tags WHERE tag = ? ORDER BY device_id", n)
}

// GetTagsForDevices returns tags for multiple device IDs in a single query.
func (r *SQLiteTagRepository) GetTagsForDevices(ctx context.Context, deviceIDs []string) (map[string][]string, error) {
	result := make(map[string][]string, len(deviceIDs))
	if len(deviceIDs) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(deviceIDs)), ",")
	args := make([]any, len(deviceIDs))
	for i, id := range deviceIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT device_id, tag FROM device_tags WHERE device_id IN ("+placeholders+") ORDER BY device_id, tag",
		args...)
	if err != nil {
		return nil, fmt.Errorf("querying tags for devices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var deviceID, tag string
		if err := rows.Scan(&deviceID, &tag); err != nil {
			return nil, fmt.Errorf("scanning device tag: %w", err)
		}
		result[deviceID] = append(result[deviceID], tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device tags: %w", err)
	}
	return result, nil
}

func checkTagArgs(deviceID, tag string) (string, error) {
	if deviceID == "" {
		return "", fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	n := normaliseTag(tag)
	if n == "" {
		return "", ErrInvalidTag
	}
	return n, nil
}

// normaliseTag trims whitespace and lowercases tag values.
func normaliseTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// normaliseTags normalises, deduplicates and sorts a tag slice.
func normaliseTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(tags))
	var out []string
	for _, tag := range tags {
		n := normaliseTag(tag)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func queryStrings(ctx context.Context, db *sql.DB, op, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return values, nil
}
