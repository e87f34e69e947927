package adminstore

import (
	"context"
	"database/sql"

	"github.com/voiceorch/core/pkg/config"
)

// GetConversationSettings returns the stored row, or false if none has ever
// been written (callers fall back to documented defaults).
func (s *Store) GetConversationSettings(ctx context.Context) (config.ConversationSettings, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT settings FROM conversation_settings WHERE id = true`).Scan(&raw)
	if err == sql.ErrNoRows {
		return config.ConversationSettings{}, false, nil
	}
	if err != nil {
		return config.ConversationSettings{}, false, err
	}
	var out config.ConversationSettings
	if err := unmarshalJSON(raw, &out); err != nil {
		return config.ConversationSettings{}, false, err
	}
	return out, true, nil
}

// PutConversationSettings upserts the singleton conversation-settings row.
func (s *Store) PutConversationSettings(ctx context.Context, v config.ConversationSettings) error {
	raw, err := marshalJSON(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_settings (id, settings, updated_at) VALUES (true, $1, now())
		ON CONFLICT (id) DO UPDATE SET settings = EXCLUDED.settings, updated_at = now()`, raw)
	return err
}

// GetClarificationSettings returns the stored row, or false if none exists.
func (s *Store) GetClarificationSettings(ctx context.Context) (config.ClarificationSettings, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT settings FROM clarification_settings WHERE id = true`).Scan(&raw)
	if err == sql.ErrNoRows {
		return config.ClarificationSettings{}, false, nil
	}
	if err != nil {
		return config.ClarificationSettings{}, false, err
	}
	var out config.ClarificationSettings
	if err := unmarshalJSON(raw, &out); err != nil {
		return config.ClarificationSettings{}, false, err
	}
	return out, true, nil
}

// PutClarificationSettings upserts the singleton clarification-settings row.
func (s *Store) PutClarificationSettings(ctx context.Context, v config.ClarificationSettings) error {
	raw, err := marshalJSON(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clarification_settings (id, settings, updated_at) VALUES (true, $1, now())
		ON CONFLICT (id) DO UPDATE SET settings = EXCLUDED.settings, updated_at = now()`, raw)
	return err
}
