package app

import (
	"context"
	"log/slog"

	"quizbot-gateway/internal/domain"
)

// StatusSync applies provider delivery receipts to logged outbound messages.
type StatusSync struct {
	conversations ConversationStore
	logger        *slog.Logger
}

func NewStatusSync(log *slog.Logger, conversations ConversationStore) *StatusSync {
	if log == nil {
		log = slog.Default()
	}
	return &StatusSync{
		conversations: conversations,
		logger:        log.With(slog.String("component", "status_sync")),
	}
}

// Apply records one delivery receipt. Unknown statuses and unknown message ids
// are dropped quietly.
func (s *StatusSync) Apply(ctx context.Context, update domain.StatusUpdate) {
	if update.ProviderMessageID == "" {
		return
	}
	switch update.Status {
	case domain.DeliverySent, domain.DeliveryDelivered, domain.DeliveryRead, domain.DeliveryFailed:
	default:
		s.logger.Debug("unknown delivery status",
			slog.String("status", string(update.Status)),
			slog.String("provider_message_id", update.ProviderMessageID))
		return
	}
	if err := s.conversations.SetDeliveryStatus(ctx, update.ProviderMessageID, update.Status); err != nil {
		s.logger.Warn("apply delivery status",
			slog.String("provider_message_id", update.ProviderMessageID),
			slog.Any("error", err))
	}
}
