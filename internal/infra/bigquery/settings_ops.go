package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/twocents/internal/domain"
)

// GetSettings implements remote.SettingsClient. Defaults are stored on the
// first read so category ids stay stable.
func (b *Backend) GetSettings(ctx context.Context) (domain.Settings, error) {
	s, err := b.loadSettings(ctx)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("GetSettings: %w", err)
	}
	return s, nil
}

// UpdateSettings implements remote.SettingsClient.
func (b *Backend) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) error {
	cur, err := b.loadSettings(ctx)
	if err != nil {
		return fmt.Errorf("UpdateSettings: %w", err)
	}

	r, err := settingsRow(patch.Apply(cur))
	if err != nil {
		return fmt.Errorf("UpdateSettings: %w", err)
	}
	err = b.c.exec(ctx, `
		UPDATE `+b.c.table(settingsTable)+`
		SET currency = @currency, ui_mode = @ui_mode, categories = @categories,
			couple_mode = @couple_mode, updated_ts = @now
		WHERE owner_key = @owner_key
	`, append(r.params(), b.owner(), now())...)
	if err != nil {
		return fmt.Errorf("UpdateSettings: %w", err)
	}
	return nil
}

func (b *Backend) loadSettings(ctx context.Context) (domain.Settings, error) {
	rows, err := read[SettingsRow](ctx, b.c, `
		SELECT currency, ui_mode, categories, couple_mode
		FROM `+b.c.table(settingsTable)+`
		WHERE owner_key = @owner_key
		ORDER BY updated_ts DESC
		LIMIT 1
	`, b.owner())
	if err != nil {
		return domain.Settings{}, err
	}
	if len(rows) > 0 {
		return rows[0].toDomain()
	}

	s := domain.DefaultSettings()
	r, err := settingsRow(s)
	if err != nil {
		return domain.Settings{}, err
	}
	err = b.c.exec(ctx, `
		INSERT INTO `+b.c.table(settingsTable)+`
			(owner_key, currency, ui_mode, categories, couple_mode, updated_ts)
		VALUES (@owner_key, @currency, @ui_mode, @categories, @couple_mode, @now)
	`, append(r.params(), b.owner(), now())...)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("store defaults: %w", err)
	}
	return s, nil
}

func (r SettingsRow) params() []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "currency", Value: r.Currency},
		{Name: "ui_mode", Value: r.UIMode},
		{Name: "categories", Value: r.Categories},
		{Name: "couple_mode", Value: r.CoupleMode},
	}
}
