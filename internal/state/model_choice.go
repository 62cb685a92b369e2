package state

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// ModelChoiceRow is the persisted model override for a profile. Both
// fields empty means automatic routing.
type ModelChoiceRow struct {
	Profile    string
	ProviderID string
	ModelID    string
	UpdatedAt  time.Time
}

func (db *DB) SetModelChoice(ctx context.Context, profile, providerID, modelID string) error {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return nil
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO model_choices (profile, provider_id, model_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(profile) DO UPDATE SET
			provider_id = excluded.provider_id,
			model_id = excluded.model_id,
			updated_at = excluded.updated_at
	`, profile, strings.TrimSpace(providerID), strings.TrimSpace(modelID), time.Now().UTC())
	return err
}

func (db *DB) GetModelChoice(ctx context.Context, profile string) (ModelChoiceRow, error) {
	var row ModelChoiceRow
	err := db.conn.QueryRowContext(ctx, `
		SELECT profile, provider_id, model_id, updated_at
		FROM model_choices
		WHERE profile = ?
	`, strings.TrimSpace(profile)).Scan(&row.Profile, &row.ProviderID, &row.ModelID, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelChoiceRow{Profile: strings.TrimSpace(profile)}, nil
	}
	if err != nil {
		return ModelChoiceRow{}, err
	}
	return row, nil
}
