package adminstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/voiceorch/core/pkg/config"
)

// ListFeatureFlags returns every feature flag row, ordered by priority.
func (s *Store) ListFeatureFlags(ctx context.Context) ([]config.FeatureFlag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, enabled, category, required, priority, avg_latency_ms, hit_rate
		FROM feature_flags ORDER BY priority ASC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []config.FeatureFlag
	for rows.Next() {
		var f config.FeatureFlag
		if err := rows.Scan(&f.Name, &f.Enabled, &f.Category, &f.Required, &f.Priority, &f.AvgLatencyMs, &f.HitRate); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpsertFeatureFlag inserts or updates a feature flag row.
func (s *Store) UpsertFeatureFlag(ctx context.Context, f config.FeatureFlag) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feature_flags (name, enabled, category, required, priority, avg_latency_ms, hit_rate, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (name) DO UPDATE SET
			enabled = EXCLUDED.enabled, category = EXCLUDED.category, required = EXCLUDED.required,
			priority = EXCLUDED.priority, avg_latency_ms = EXCLUDED.avg_latency_ms,
			hit_rate = EXCLUDED.hit_rate, updated_at = now()`,
		f.Name, f.Enabled, f.Category, f.Required, f.Priority, f.AvgLatencyMs, f.HitRate)
	return err
}

// DeleteFeatureFlag removes a feature flag row.
func (s *Store) DeleteFeatureFlag(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM feature_flags WHERE name = $1`, name)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ErrNotFound is returned by delete/get repository methods when no row matches.
var ErrNotFound = errors.New("adminstore: not found")
