package postgres

import (
	"context"
	"fmt"

	"quizbot-gateway/internal/domain"
)

func (s *Store) Append(ctx context.Context, msg *domain.ConversationMessage) error {
	if _, err := s.db.NewInsert().Model(msg).Exec(ctx); err != nil {
		return fmt.Errorf("append conversation message: %w", err)
	}
	return nil
}

// HasProviderMessage fetches one matching row rather than counting.
func (s *Store) HasProviderMessage(ctx context.Context, tenantID, providerMessageID string) (bool, error) {
	var ids []string
	err := s.db.NewSelect().Model((*domain.ConversationMessage)(nil)).
		Column("id").
		Where("tenant_id = ?", tenantID).
		Where("provider_message_id = ?", providerMessageID).
		Limit(1).
		Scan(ctx, &ids)
	if err != nil {
		return false, fmt.Errorf("lookup provider message: %w", err)
	}
	return len(ids) > 0, nil
}

func (s *Store) MarkDispatched(ctx context.Context, messageID, providerMessageID string, status domain.DeliveryStatus) error {
	query := s.db.NewUpdate().Model((*domain.ConversationMessage)(nil)).
		Set("delivery_status = ?", status).
		Where("id = ?", messageID)
	if providerMessageID != "" {
		query = query.Set("provider_message_id = ?", providerMessageID)
	}
	if _, err := query.Exec(ctx); err != nil {
		return fmt.Errorf("mark dispatched: %w", err)
	}
	return nil
}

func (s *Store) SetDeliveryStatus(ctx context.Context, providerMessageID string, status domain.DeliveryStatus) error {
	_, err := s.db.NewUpdate().Model((*domain.ConversationMessage)(nil)).
		Set("delivery_status = ?", status).
		Where("provider_message_id = ?", providerMessageID).
		Where("sender = ?", domain.SenderBot).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set delivery status: %w", err)
	}
	return nil
}
