package adminstore

import (
	"context"

	"github.com/voiceorch/core/pkg/config"
)

// ListClarificationRules returns every rule, ordered by priority.
func (s *Store) ListClarificationRules(ctx context.Context) ([]config.ClarificationRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, enabled, timeout_seconds, priority, option_source
		FROM clarification_rules ORDER BY priority ASC, kind ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []config.ClarificationRule
	for rows.Next() {
		var r config.ClarificationRule
		var optionSource string
		if err := rows.Scan(&r.Kind, &r.Enabled, &r.TimeoutSeconds, &r.Priority, &optionSource); err != nil {
			return nil, err
		}
		r.OptionSource = config.OptionSourceKind(optionSource)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertClarificationRule inserts or updates a clarification rule row.
func (s *Store) UpsertClarificationRule(ctx context.Context, r config.ClarificationRule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clarification_rules (kind, enabled, timeout_seconds, priority, option_source, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (kind) DO UPDATE SET
			enabled = EXCLUDED.enabled, timeout_seconds = EXCLUDED.timeout_seconds,
			priority = EXCLUDED.priority, option_source = EXCLUDED.option_source, updated_at = now()`,
		r.Kind, r.Enabled, r.TimeoutSeconds, r.Priority, string(r.OptionSource))
	return err
}

// DeleteClarificationRule removes a clarification rule row.
func (s *Store) DeleteClarificationRule(ctx context.Context, kind string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM clarification_rules WHERE kind = $1`, kind)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// ListDisambiguationEntries returns every entry.
func (s *Store) ListDisambiguationEntries(ctx context.Context) ([]config.DisambiguationEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT trigger_token, options FROM disambiguation_entries ORDER BY trigger_token ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []config.DisambiguationEntry
	for rows.Next() {
		var e config.DisambiguationEntry
		var raw []byte
		if err := rows.Scan(&e.TriggerToken, &raw); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(raw, &e.Options); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertDisambiguationEntry inserts or updates a disambiguation entry row.
func (s *Store) UpsertDisambiguationEntry(ctx context.Context, e config.DisambiguationEntry) error {
	raw, err := marshalJSON(e.Options)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO disambiguation_entries (trigger_token, options, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (trigger_token) DO UPDATE SET options = EXCLUDED.options, updated_at = now()`,
		e.TriggerToken, raw)
	return err
}

// DeleteDisambiguationEntry removes a disambiguation entry row.
func (s *Store) DeleteDisambiguationEntry(ctx context.Context, triggerToken string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM disambiguation_entries WHERE trigger_token = $1`, triggerToken)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// ListDeviceDisambiguationRules returns every device disambiguation rule.
func (s *Store) ListDeviceDisambiguationRules(ctx context.Context) ([]config.DeviceDisambiguationRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_kind, min_entities_to_ask, include_all_option
		FROM device_disambiguation_rules ORDER BY device_kind ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []config.DeviceDisambiguationRule
	for rows.Next() {
		var r config.DeviceDisambiguationRule
		if err := rows.Scan(&r.DeviceKind, &r.MinEntitiesToAsk, &r.IncludeAllOption); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertDeviceDisambiguationRule inserts or updates a device disambiguation rule row.
func (s *Store) UpsertDeviceDisambiguationRule(ctx context.Context, r config.DeviceDisambiguationRule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_disambiguation_rules (device_kind, min_entities_to_ask, include_all_option, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (device_kind) DO UPDATE SET
			min_entities_to_ask = EXCLUDED.min_entities_to_ask,
			include_all_option = EXCLUDED.include_all_option, updated_at = now()`,
		r.DeviceKind, r.MinEntitiesToAsk, r.IncludeAllOption)
	return err
}

// DeleteDeviceDisambiguationRule removes a device disambiguation rule row.
func (s *Store) DeleteDeviceDisambiguationRule(ctx context.Context, deviceKind string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM device_disambiguation_rules WHERE device_kind = $1`, deviceKind)
	if err != nil {
		return err
	}
	return checkAffected(res)
}
