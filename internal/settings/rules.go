package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-influx/internal/export"
)

// RuleRepository persists export rules.
type RuleRepository interface {
	List(ctx context.Context) ([]export.Rule, error)
	Get(ctx context.Context, id string) (export.Rule, error)
	// Save inserts or replaces a rule. An empty ID is assigned a new UUID.
	Save(ctx context.Context, r export.Rule) (export.Rule, error)
	Delete(ctx context.Context, id string) error
}

// SQLiteRuleRepository implements RuleRepository using SQLite.
type SQLiteRuleRepository struct {
	db *sql.DB
}

// NewSQLiteRuleRepository creates a new SQLite-backed rule repository.
func NewSQLiteRuleRepository(db *sql.DB) *SQLiteRuleRepository {
	return &SQLiteRuleRepository{db: db}
}

const ruleColumns = "id, device_id, measurement, field, string_field, min_value, max_value, tags"

// List returns all rules ordered by device and id.
func (r *SQLiteRuleRepository) List(ctx context.Context) ([]export.Rule, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+ruleColumns+" FROM persistence_rules ORDER BY device_id, id")
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	var rules []export.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rules: %w", err)
	}
	return rules, nil
}

// Get returns ErrNotFound if the rule does not exist.
func (r *SQLiteRuleRepository) Get(ctx context.Context, id string) (export.Rule, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+ruleColumns+" FROM persistence_rules WHERE id = ?", id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return export.Rule{}, ErrNotFound
	}
	if err != nil {
		return export.Rule{}, fmt.Errorf("querying rule: %w", err)
	}
	return rule, nil
}

// Save validates and upserts the rule.
func (r *SQLiteRuleRepository) Save(ctx context.Context, rule export.Rule) (export.Rule, error) {
	if err := rule.Validate(); err != nil {
		return export.Rule{}, err
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	tags := "{}"
	if len(rule.Tags) > 0 {
		b, err := json.Marshal(rule.Tags)
		if err != nil {
			return export.Rule{}, fmt.Errorf("encoding rule tags: %w", err)
		}
		tags = string(b)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO persistence_rules (`+ruleColumns+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			device_id = excluded.device_id,
			measurement = excluded.measurement,
			field = excluded.field,
			string_field = excluded.string_field,
			min_value = excluded.min_value,
			max_value = excluded.max_value,
			tags = excluded.tags,
			updated_at = excluded.updated_at`,
		rule.ID, rule.DeviceID, rule.Measurement, rule.Field, rule.StringField,
		nullFloat(rule.Min), nullFloat(rule.Max), tags, now, now,
	)
	if err != nil {
		return export.Rule{}, fmt.Errorf("saving rule: %w", err)
	}
	return rule.Clone(), nil
}

// Delete returns ErrNotFound if the rule does not exist.
func (r *SQLiteRuleRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM persistence_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(s rowScanner) (export.Rule, error) {
	var (
		rule   export.Rule
		lo, hi sql.NullFloat64
		tags   string
	)
	if err := s.Scan(&rule.ID, &rule.DeviceID, &rule.Measurement, &rule.Field, &rule.StringField,
		&lo, &hi, &tags); err != nil {
		return export.Rule{}, err
	}
	if lo.Valid {
		v := lo.Float64
		rule.Min = &v
	}
	if hi.Valid {
		v := hi.Float64
		rule.Max = &v
	}
	if tags != "" && tags != "{}" {
		if err := json.Unmarshal([]byte(tags), &rule.Tags); err != nil {
			return export.Rule{}, fmt.Errorf("decoding tags of rule %s: %w", rule.ID, err)
		}
	}
	return rule, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
