package app

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"quizbot-gateway/internal/domain"
)

// RuleStore serves a tenant's auto-reply rules.
type RuleStore interface {
	ActiveRules(ctx context.Context, tenantID string) ([]domain.AutoReplyRule, error)
}

// CompletionClient produces an AI reply for messages no rule matched.
type CompletionClient interface {
	Complete(ctx context.Context, cfg domain.TenantChannelConfig, userText string) (string, error)
}

// Responder answers non-quiz messages: keyword rules first, then the AI
// collaborator. It never returns an error; every failure path has a canned
// reply.
type Responder struct {
	rules     RuleStore
	ai        CompletionClient
	aiTimeout time.Duration
	logger    *slog.Logger
}

func NewResponder(log *slog.Logger, rules RuleStore, ai CompletionClient, aiTimeout time.Duration) *Responder {
	if log == nil {
		log = slog.Default()
	}
	if aiTimeout <= 0 {
		aiTimeout = 20 * time.Second
	}
	return &Responder{
		rules:     rules,
		ai:        ai,
		aiTimeout: aiTimeout,
		logger:    log.With(slog.String("component", "responder")),
	}
}

// Respond picks the highest-priority matching rule, falling back to the AI
// collaborator and finally to canned copy.
func (r *Responder) Respond(ctx context.Context, cfg domain.TenantChannelConfig, text string) string {
	copySet := messagesFor(cfg.Language)

	rules, err := r.rules.ActiveRules(ctx, cfg.TenantID)
	if err != nil {
		r.logger.Error("load auto-reply rules",
			slog.String("tenant_id", cfg.TenantID),
			slog.Any("error", err))
	}
	if reply, ok := matchRule(rules, text); ok {
		return reply
	}

	if r.ai == nil {
		return copySet.aiFallback
	}
	aiCtx, cancel := context.WithTimeout(ctx, r.aiTimeout)
	defer cancel()
	reply, err := r.ai.Complete(aiCtx, cfg, text)
	if err != nil {
		r.logger.Warn("ai completion failed",
			slog.String("tenant_id", cfg.TenantID),
			slog.Any("error", err))
		return copySet.aiFallback
	}
	return reply
}

// matchRule scans active rules in descending priority order and returns the
// first response whose keyword appears in the text.
func matchRule(rules []domain.AutoReplyRule, text string) (string, bool) {
	sorted := make([]domain.AutoReplyRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })

	lowered := strings.ToLower(text)
	for _, rule := range sorted {
		if !rule.IsActive {
			continue
		}
		for _, keyword := range rule.TriggerKeywords {
			keyword = strings.ToLower(strings.TrimSpace(keyword))
			if keyword != "" && strings.Contains(lowered, keyword) {
				return rule.ResponseText, true
			}
		}
	}
	return "", false
}
