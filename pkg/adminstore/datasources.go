package adminstore

import (
	"context"

	"github.com/voiceorch/core/pkg/config"
)

// ListDataSources returns every configured per-category upstream endpoint
// (the Open Question resolution for flights/stocks providers: an
// admin-configurable row per category rather than a hardcoded one).
func (s *Store) ListDataSources(ctx context.Context) ([]config.DataSourceConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category, base_url, api_key_env FROM data_sources ORDER BY category ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []config.DataSourceConfig
	for rows.Next() {
		var d config.DataSourceConfig
		if err := rows.Scan(&d.Category, &d.BaseURL, &d.APIKeyEnv); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpsertDataSource inserts or updates a data source row.
func (s *Store) UpsertDataSource(ctx context.Context, d config.DataSourceConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO data_sources (category, base_url, api_key_env, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (category) DO UPDATE SET
			base_url = EXCLUDED.base_url, api_key_env = EXCLUDED.api_key_env, updated_at = now()`,
		d.Category, d.BaseURL, d.APIKeyEnv)
	return err
}

// DeleteDataSource removes a data source row.
func (s *Store) DeleteDataSource(ctx context.Context, category string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM data_sources WHERE category = $1`, category)
	if err != nil {
		return err
	}
	return checkAffected(res)
}
