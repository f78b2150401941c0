package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-influx/internal/importer"
)

// ImportRepository persists import definitions, one per device.
type ImportRepository interface {
	List(ctx context.Context) ([]importer.Definition, error)
	Get(ctx context.Context, deviceID string) (importer.Definition, error)
	Save(ctx context.Context, d importer.Definition) error
	Delete(ctx context.Context, deviceID string) error
}

// SQLiteImportRepository implements ImportRepository using SQLite.
type SQLiteImportRepository struct {
	db *sql.DB
}

// NewSQLiteImportRepository creates a new SQLite-backed import repository.
func NewSQLiteImportRepository(db *sql.DB) *SQLiteImportRepository {
	return &SQLiteImportRepository{db: db}
}

const importColumns = "device_id, query, interval_seconds, unit"

// List returns all definitions ordered by device id.
func (r *SQLiteImportRepository) List(ctx context.Context) ([]importer.Definition, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+importColumns+" FROM import_definitions ORDER BY device_id")
	if err != nil {
		return nil, fmt.Errorf("querying import definitions: %w", err)
	}
	defer rows.Close()

	var defs []importer.Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning import definition: %w", err)
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating import definitions: %w", err)
	}
	return defs, nil
}

// Get returns ErrNotFound if the device has no definition.
func (r *SQLiteImportRepository) Get(ctx context.Context, deviceID string) (importer.Definition, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+importColumns+" FROM import_definitions WHERE device_id = ?", deviceID)
	d, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return importer.Definition{}, ErrNotFound
	}
	if err != nil {
		return importer.Definition{}, fmt.Errorf("querying import definition: %w", err)
	}
	return d, nil
}

// Save validates and upserts the definition. Intervals are stored in whole
// seconds.
func (r *SQLiteImportRepository) Save(ctx context.Context, d importer.Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO import_definitions (`+importColumns+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			query = excluded.query,
			interval_seconds = excluded.interval_seconds,
			unit = excluded.unit,
			updated_at = excluded.updated_at`,
		d.DeviceID, d.Query, int64(d.Interval/time.Second), d.Unit, now, now,
	)
	if err != nil {
		return fmt.Errorf("saving import definition: %w", err)
	}
	return nil
}

// Delete returns ErrNotFound if the device has no definition.
func (r *SQLiteImportRepository) Delete(ctx context.Context, deviceID string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM import_definitions WHERE device_id = ?", deviceID)
	if err != nil {
		return fmt.Errorf("deleting import definition: %w", err)
	}
	return requireRow(res)
}

func scanDefinition(s rowScanner) (importer.Definition, error) {
	var (
		d       importer.Definition
		seconds int64
	)
	if err := s.Scan(&d.DeviceID, &d.Query, &seconds, &d.Unit); err != nil {
		return importer.Definition{}, err
	}
	d.Interval = time.Duration(seconds) * time.Second
	return d, nil
}
