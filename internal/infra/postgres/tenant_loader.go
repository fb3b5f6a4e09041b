package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizbot-gateway/internal/domain"
)

// TenantLoader resolves channel bindings on a pgx pool.
type TenantLoader struct {
	pool *pgxpool.Pool
}

func NewTenantLoader(pool *pgxpool.Pool) *TenantLoader {
	return &TenantLoader{pool: pool}
}

func (l *TenantLoader) FindByChannelID(ctx context.Context, channelID string) (domain.TenantChannelConfig, error) {
	var cfg domain.TenantChannelConfig
	err := l.pool.QueryRow(ctx, `
		SELECT id, tenant_id, channel_id, messaging_token, ai_api_key, ai_model,
		       system_prompt, language, is_active, created_at
		FROM tenant_channel_configs
		WHERE channel_id = $1 AND is_active`, channelID).
		Scan(&cfg.ID, &cfg.TenantID, &cfg.ChannelID, &cfg.MessagingToken, &cfg.AIAPIKey,
			&cfg.AIModel, &cfg.SystemPrompt, &cfg.Language, &cfg.IsActive, &cfg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TenantChannelConfig{}, domain.ErrTenantNotFound
	}
	if err != nil {
		return domain.TenantChannelConfig{}, fmt.Errorf("load tenant config: %w", err)
	}
	return cfg, nil
}
