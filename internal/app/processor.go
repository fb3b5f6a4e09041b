package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"quizbot-gateway/internal/domain"
)

// TenantStore resolves the tenant configuration bound to a provider channel.
type TenantStore interface {
	// FindByChannelID returns domain.ErrTenantNotFound when no active tenant
	// is bound to the channel.
	FindByChannelID(ctx context.Context, channelID string) (domain.TenantChannelConfig, error)
}

// ConversationStore appends to the per-tenant message log and answers
// idempotency lookups.
type ConversationStore interface {
	Append(ctx context.Context, msg *domain.ConversationMessage) error
	HasProviderMessage(ctx context.Context, tenantID, providerMessageID string) (bool, error)
	// MarkDispatched stamps an outbound row with the provider's receipt id and
	// delivery status.
	MarkDispatched(ctx context.Context, messageID, providerMessageID string, status domain.DeliveryStatus) error
	// SetDeliveryStatus updates the row matching a provider message id. Rows
	// that do not exist are skipped without error.
	SetDeliveryStatus(ctx context.Context, providerMessageID string, status domain.DeliveryStatus) error
}

// DedupStore is the fast-path duplicate-delivery claim. Claim marks the id as
// seen and reports whether it was already claimed inside the TTL window.
// Release undoes a claim whose attempt left no durable trace, so the
// provider's redelivery is processed instead of swallowed.
type DedupStore interface {
	Claim(ctx context.Context, tenantID, providerMessageID string) (bool, error)
	Release(ctx context.Context, tenantID, providerMessageID string) error
}

// ReplySender delivers the bot's reply over the ingress that produced the
// inbound message. It returns the provider's message id when one exists.
type ReplySender interface {
	Send(ctx context.Context, cfg domain.TenantChannelConfig, to, text string) (string, error)
}

// Processor runs the inbound pipeline: tenant resolution, duplicate
// suppression, routing, reply generation, conversation logging, and dispatch.
type Processor struct {
	tenants       TenantStore
	store         SessionStore
	conversations ConversationStore
	dedup         DedupStore
	engine        *QuizEngine
	responder     *Responder
	logger        *slog.Logger
	clock         func() time.Time
}

func NewProcessor(log *slog.Logger, tenants TenantStore, store SessionStore, conversations ConversationStore, dedup DedupStore, engine *QuizEngine, responder *Responder) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		tenants:       tenants,
		store:         store,
		conversations: conversations,
		dedup:         dedup,
		engine:        engine,
		responder:     responder,
		logger:        log.With(slog.String("component", "processor")),
		clock:         time.Now,
	}
}

// Process handles one normalized inbound message end to end. Business-rule
// drops (unknown tenant, duplicate delivery, empty text) return nil; only a
// failed tenant lookup surfaces as an error. Store and delivery failures
// degrade to canned replies or logged warnings so the webhook can still be
// acknowledged.
func (p *Processor) Process(ctx context.Context, msg domain.InboundMessage, sender ReplySender) error {
	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}

	cfg, err := p.tenants.FindByChannelID(ctx, msg.ChannelID)
	if err != nil {
		if errors.Is(err, domain.ErrTenantNotFound) {
			p.logger.Warn("message for unknown channel",
				slog.String("channel_id", msg.ChannelID))
			return nil
		}
		return fmt.Errorf("resolve tenant: %w", err)
	}

	log := p.logger.With(
		slog.String("tenant_id", cfg.TenantID),
		slog.String("channel_user_id", msg.ChannelUserID))

	claimed := false
	if msg.ProviderMessageID != "" {
		var seen bool
		seen, claimed = p.seenBefore(ctx, log, cfg.TenantID, msg.ProviderMessageID)
		if seen {
			return nil
		}
	}

	active, err := p.store.ActiveSession(ctx, cfg.TenantID, msg.ChannelUserID)
	if err != nil {
		log.Error("load active session", slog.Any("error", err))
		active = nil
	}

	classification := Route(msg.Text, active != nil && active.IsActive())

	var reply string
	if classification == domain.ClassificationQuiz {
		reply, err = p.engine.Handle(ctx, cfg, msg, active)
		if err != nil {
			log.Error("quiz handling failed", slog.Any("error", err))
			reply = messagesFor(cfg.Language).quizUnavailable
		}
	} else {
		reply = p.responder.Respond(ctx, cfg, msg.Text)
	}

	now := p.clock().UTC()
	inbound := &domain.ConversationMessage{
		ID:                uuid.NewString(),
		TenantID:          cfg.TenantID,
		ChannelUserID:     msg.ChannelUserID,
		Content:           msg.Text,
		Sender:            domain.SenderUser,
		Classification:    classification,
		ProviderMessageID: msg.ProviderMessageID,
		CreatedAt:         now,
	}
	if err := p.conversations.Append(ctx, inbound); err != nil {
		log.Error("append inbound message", slog.Any("error", err))
		// Without the inbound row the durable duplicate check cannot catch a
		// redelivery, so the fast-path claim must not swallow it either.
		if claimed {
			p.releaseClaim(ctx, log, cfg.TenantID, msg.ProviderMessageID)
		}
	}

	outbound := &domain.ConversationMessage{
		ID:             uuid.NewString(),
		TenantID:       cfg.TenantID,
		ChannelUserID:  msg.ChannelUserID,
		Content:        reply,
		Sender:         domain.SenderBot,
		Classification: classification,
		DeliveryStatus: domain.DeliveryPending,
		CreatedAt:      now,
	}
	if err := p.conversations.Append(ctx, outbound); err != nil {
		log.Error("append outbound message", slog.Any("error", err))
	}

	providerMessageID, err := sender.Send(ctx, cfg, msg.ChannelUserID, reply)
	if err != nil {
		log.Error("reply delivery failed", slog.Any("error", err))
		if markErr := p.conversations.MarkDispatched(ctx, outbound.ID, "", domain.DeliveryFailed); markErr != nil {
			log.Error("mark delivery failed", slog.Any("error", markErr))
		}
		return nil
	}
	if markErr := p.conversations.MarkDispatched(ctx, outbound.ID, providerMessageID, domain.DeliverySent); markErr != nil {
		log.Error("mark dispatched", slog.Any("error", markErr))
	}
	return nil
}

// seenBefore checks the fast TTL claim and then the durable conversation log.
// Check errors fail open and only log. claimed reports whether this call took
// a fresh claim, which the caller owes back if no durable trace of the
// message lands.
func (p *Processor) seenBefore(ctx context.Context, log *slog.Logger, tenantID, providerMessageID string) (seen, claimed bool) {
	if p.dedup != nil {
		duplicate, err := p.dedup.Claim(ctx, tenantID, providerMessageID)
		switch {
		case err != nil:
			log.Warn("dedup claim failed", slog.Any("error", err))
		case duplicate:
			log.Info("duplicate delivery ignored",
				slog.String("provider_message_id", providerMessageID))
			return true, false
		default:
			claimed = true
		}
	}

	durable, err := p.conversations.HasProviderMessage(ctx, tenantID, providerMessageID)
	if err != nil {
		log.Warn("conversation duplicate check failed", slog.Any("error", err))
		return false, claimed
	}
	if durable {
		log.Info("duplicate delivery ignored",
			slog.String("provider_message_id", providerMessageID))
	}
	return durable, claimed
}

// releaseClaim reopens a dedup claim after an attempt that did not record the
// message. The request context may already be canceled at this point, so the
// release runs on a detached context.
func (p *Processor) releaseClaim(ctx context.Context, log *slog.Logger, tenantID, providerMessageID string) {
	if p.dedup == nil {
		return
	}
	if err := p.dedup.Release(context.WithoutCancel(ctx), tenantID, providerMessageID); err != nil {
		log.Warn("dedup release failed",
			slog.String("provider_message_id", providerMessageID),
			slog.Any("error", err))
	}
}
