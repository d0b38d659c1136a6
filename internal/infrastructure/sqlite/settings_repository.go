package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zjrosen/forkchat/internal/chat/domain"
)

// settingsRepository implements domain.SettingsRepository using SQLite.
type settingsRepository struct {
	db *sql.DB
}

func newSettingsRepository(db *sql.DB) *settingsRepository {
	return &settingsRepository{db: db}
}

var _ domain.SettingsRepository = (*settingsRepository)(nil)

// Get returns the saved settings for a thread.
// Returns NotFoundError if the thread has none.
func (r *settingsRepository) Get(ctx context.Context, threadID domain.ThreadID) (*domain.ThreadSettings, error) {
	var model SettingsModel
	err := r.db.QueryRowContext(ctx,
		`SELECT thread_id, provider_id, model_id, system_prompt, context_window, max_tokens, extra_params, updated_at
		 FROM thread_settings WHERE thread_id = ?`,
		string(threadID),
	).Scan(
		&model.ThreadID, &model.ProviderID, &model.ModelID, &model.SystemPrompt,
		&model.ContextWindow, &model.MaxTokens, &model.ExtraParams, &model.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "settings", ID: string(threadID)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread settings: %w", err)
	}
	return model.toDomain(), nil
}

// Save upserts the settings row for a thread.
func (r *settingsRepository) Save(ctx context.Context, threadID domain.ThreadID, settings *domain.ThreadSettings) error {
	if settings == nil {
		settings = &domain.ThreadSettings{}
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	model, err := toSettingsModel(threadID, settings)
	if err != nil {
		return fmt.Errorf("failed to encode extra params: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO thread_settings (thread_id, provider_id, model_id, system_prompt, context_window, max_tokens, extra_params, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(thread_id) DO UPDATE SET
			provider_id = excluded.provider_id,
			model_id = excluded.model_id,
			system_prompt = excluded.system_prompt,
			context_window = excluded.context_window,
			max_tokens = excluded.max_tokens,
			extra_params = excluded.extra_params,
			updated_at = excluded.updated_at`,
		model.ThreadID, model.ProviderID, model.ModelID, model.SystemPrompt,
		model.ContextWindow, model.MaxTokens, model.ExtraParams, model.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return domain.ThreadNotFound(threadID)
		}
		return fmt.Errorf("failed to save thread settings: %w", err)
	}
	return nil
}

// Delete removes a thread's settings row if present.
func (r *settingsRepository) Delete(ctx context.Context, threadID domain.ThreadID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM thread_settings WHERE thread_id = ?`, string(threadID)); err != nil {
		return fmt.Errorf("failed to delete thread settings: %w", err)
	}
	return nil
}
