package state

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// SetLastRoute remembers the conversation the profile last had open. An
// empty chat id means the root (new chat) view.
func (db *DB) SetLastRoute(ctx context.Context, profile, chatID string) error {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return nil
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO last_routes (profile, chat_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(profile) DO UPDATE SET
			chat_id = excluded.chat_id,
			updated_at = excluded.updated_at
	`, profile, strings.TrimSpace(chatID), time.Now().UTC())
	return err
}

// GetLastRoute returns the remembered conversation id, or "" when the
// profile has none recorded.
func (db *DB) GetLastRoute(ctx context.Context, profile string) (string, error) {
	var chatID string
	err := db.conn.QueryRowContext(ctx, `
		SELECT chat_id FROM last_routes WHERE profile = ?
	`, strings.TrimSpace(profile)).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(chatID), nil
}
