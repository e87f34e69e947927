package adminstore

import (
	"context"
	"time"

	"github.com/voiceorch/core/pkg/config"
)

// ListLLMBackends returns every configured backend, ordered by priority.
func (s *Store) ListLLMBackends(ctx context.Context) ([]config.LLMBackend, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model_name, backend_type, endpoint, enabled, priority, max_tokens, default_temperature, timeout_ms
		FROM llm_backends ORDER BY priority ASC, model_name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []config.LLMBackend
	for rows.Next() {
		var b config.LLMBackend
		var backendType string
		var timeoutMs int
		if err := rows.Scan(&b.ModelName, &backendType, &b.Endpoint, &b.Enabled, &b.Priority,
			&b.MaxTokens, &b.DefaultTemperature, &timeoutMs); err != nil {
			return nil, err
		}
		b.BackendType = config.BackendType(backendType)
		b.Timeout = time.Duration(timeoutMs) * time.Millisecond
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpsertLLMBackend inserts or updates a backend row. Rolling metrics are
// owned by the LLM Router in-process and are not persisted here.
func (s *Store) UpsertLLMBackend(ctx context.Context, b config.LLMBackend) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_backends (model_name, backend_type, endpoint, enabled, priority, max_tokens, default_temperature, timeout_ms, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (model_name) DO UPDATE SET
			backend_type = EXCLUDED.backend_type, endpoint = EXCLUDED.endpoint, enabled = EXCLUDED.enabled,
			priority = EXCLUDED.priority, max_tokens = EXCLUDED.max_tokens,
			default_temperature = EXCLUDED.default_temperature, timeout_ms = EXCLUDED.timeout_ms, updated_at = now()`,
		b.ModelName, string(b.BackendType), b.Endpoint, b.Enabled, b.Priority, b.MaxTokens,
		b.DefaultTemperature, b.Timeout.Milliseconds())
	return err
}

// DeleteLLMBackend removes a backend row.
func (s *Store) DeleteLLMBackend(ctx context.Context, modelName string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM llm_backends WHERE model_name = $1`, modelName)
	if err != nil {
		return err
	}
	return checkAffected(res)
}
