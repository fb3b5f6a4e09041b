package postgres

import (
	"context"
	"fmt"

	"quizbot-gateway/internal/domain"
)

// LoadQuestions fetches a tenant's full catalog ordered by order_index. The
// catalog caches sit on top of this.
func (s *Store) LoadQuestions(ctx context.Context, tenantID string) ([]domain.QuizQuestion, error) {
	var questions []domain.QuizQuestion
	err := s.db.NewSelect().Model(&questions).
		Where("tenant_id = ?", tenantID).
		OrderExpr("order_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return questions, nil
}

// ActiveRules fetches a tenant's active auto-reply rules, highest priority
// first.
func (s *Store) ActiveRules(ctx context.Context, tenantID string) ([]domain.AutoReplyRule, error) {
	var rules []domain.AutoReplyRule
	err := s.db.NewSelect().Model(&rules).
		Where("tenant_id = ?", tenantID).
		Where("is_active = TRUE").
		OrderExpr("priority DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load auto-reply rules: %w", err)
	}
	return rules, nil
}
