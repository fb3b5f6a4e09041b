package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quizbot-gateway/internal/domain"
)

func (s *Store) FindTaker(ctx context.Context, tenantID, channelUserID string) (*domain.QuizTaker, error) {
	taker := new(domain.QuizTaker)
	err := s.db.NewSelect().Model(taker).
		Where("tenant_id = ?", tenantID).
		Where("channel_user_id = ?", channelUserID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find taker: %w", err)
	}
	return taker, nil
}

// SaveTaker upserts on (tenant_id, channel_user_id) and scans the surviving
// row id back into the model.
func (s *Store) SaveTaker(ctx context.Context, taker *domain.QuizTaker) error {
	_, err := s.db.NewInsert().Model(taker).
		On("CONFLICT (tenant_id, channel_user_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("current_step = EXCLUDED.current_step").
		Set("score = EXCLUDED.score").
		Set("profile_tag = EXCLUDED.profile_tag").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save taker: %w", err)
	}
	return nil
}

func (s *Store) ActiveSession(ctx context.Context, tenantID, channelUserID string) (*domain.QuizSession, error) {
	session := new(domain.QuizSession)
	err := s.db.NewSelect().Model(session).
		Where("tenant_id = ?", tenantID).
		Where("channel_user_id = ?", channelUserID).
		Where("completion_status = ?", domain.SessionActive).
		Where("ended_at IS NULL").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load active session: %w", err)
	}
	return session, nil
}

func (s *Store) EndActiveSessions(ctx context.Context, tenantID, channelUserID string, status domain.SessionStatus, endedAt time.Time) error {
	_, err := s.db.NewUpdate().Model((*domain.QuizSession)(nil)).
		Set("completion_status = ?", status).
		Set("ended_at = ?", endedAt).
		Where("tenant_id = ?", tenantID).
		Where("channel_user_id = ?", channelUserID).
		Where("completion_status = ?", domain.SessionActive).
		Where("ended_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("end active sessions: %w", err)
	}
	return nil
}

// CreateSession relies on the partial unique index over active sessions to
// keep one run per user.
func (s *Store) CreateSession(ctx context.Context, session *domain.QuizSession) error {
	_, err := s.db.NewInsert().Model(session).Exec(ctx)
	if err != nil {
		if isIntegrityViolation(err) {
			return domain.ErrSessionConflict
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// AdvanceSession moves the session pointer with a conditional update and
// appends the graded answer in the same transaction. Zero matched rows means
// another delivery advanced the session first.
func (s *Store) AdvanceSession(ctx context.Context, sessionID string, fromIndex, toIndex int, answer *domain.QuizAnswer) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*domain.QuizSession)(nil)).
			Set("current_question_index = ?", toIndex).
			Set("engagement_score = engagement_score + ?", answer.PointsAwarded).
			Where("id = ?", sessionID).
			Where("current_question_index = ?", fromIndex).
			Where("completion_status = ?", domain.SessionActive).
			Where("ended_at IS NULL").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("advance session: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("advance session rows: %w", err)
		}
		if affected == 0 {
			return domain.ErrSessionConflict
		}
		if _, err := tx.NewInsert().Model(answer).Exec(ctx); err != nil {
			return fmt.Errorf("append answer: %w", err)
		}
		return nil
	})
}

// CompleteSession closes the session with the same conditional guard as
// AdvanceSession.
func (s *Store) CompleteSession(ctx context.Context, sessionID string, fromIndex int, endedAt time.Time, answer *domain.QuizAnswer) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*domain.QuizSession)(nil)).
			Set("completion_status = ?", domain.SessionCompleted).
			Set("ended_at = ?", endedAt).
			Set("engagement_score = engagement_score + ?", answer.PointsAwarded).
			Where("id = ?", sessionID).
			Where("current_question_index = ?", fromIndex).
			Where("completion_status = ?", domain.SessionActive).
			Where("ended_at IS NULL").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("complete session: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("complete session rows: %w", err)
		}
		if affected == 0 {
			return domain.ErrSessionConflict
		}
		if _, err := tx.NewInsert().Model(answer).Exec(ctx); err != nil {
			return fmt.Errorf("append final answer: %w", err)
		}
		return nil
	})
}

func (s *Store) SessionScore(ctx context.Context, sessionID string) (int, error) {
	var total int
	err := s.db.NewSelect().Model((*domain.QuizAnswer)(nil)).
		ColumnExpr("COALESCE(SUM(points_awarded), 0)").
		Where("session_id = ?", sessionID).
		Scan(ctx, &total)
	if err != nil {
		return 0, fmt.Errorf("sum session score: %w", err)
	}
	return total, nil
}
