package state

import (
	"context"
	"strings"
	"time"
)

const DefaultInputHistoryLimit = 100

// AppendInputHistory records a submitted input line and trims the history
// to the retention limit. Blank content is ignored.
func (db *DB) AppendInputHistory(ctx context.Context, profile, content string) error {
	profile = strings.TrimSpace(profile)
	content = strings.TrimSpace(content)
	if profile == "" || content == "" {
		return nil
	}

	if _, err := db.conn.ExecContext(ctx, `
		INSERT INTO input_history (profile, content, created_at)
		VALUES (?, ?, ?)
	`, profile, content, time.Now().UTC()); err != nil {
		return err
	}

	_, err := db.conn.ExecContext(ctx, `
		DELETE FROM input_history
		WHERE profile = ?
		  AND id NOT IN (
			SELECT id
			FROM input_history
			WHERE profile = ?
			ORDER BY id DESC
			LIMIT ?
		  )
	`, profile, profile, DefaultInputHistoryLimit)
	return err
}

// GetInputHistory returns the retained input lines, oldest first.
func (db *DB) GetInputHistory(ctx context.Context, profile string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT content
		FROM input_history
		WHERE profile = ?
		ORDER BY id ASC
	`, strings.TrimSpace(profile))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0, DefaultInputHistoryLimit)
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, err
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		out = append(out, content)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
