package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"quizbot-gateway/internal/domain"
)

// SessionStore persists quiz takers, sessions, and graded answers. The
// conditional methods compare the stored question index so two concurrent
// deliveries of the same answer cannot both advance a session; the loser gets
// domain.ErrSessionConflict. AdvanceSession and CompleteSession append the
// answer and add its points to the session's engagement score in the same
// transaction.
type SessionStore interface {
	// FindTaker returns (nil, nil) when the user has no taker record yet.
	FindTaker(ctx context.Context, tenantID, channelUserID string) (*domain.QuizTaker, error)
	SaveTaker(ctx context.Context, taker *domain.QuizTaker) error
	// ActiveSession returns (nil, nil) when the user has no active session.
	ActiveSession(ctx context.Context, tenantID, channelUserID string) (*domain.QuizSession, error)
	EndActiveSessions(ctx context.Context, tenantID, channelUserID string, status domain.SessionStatus, endedAt time.Time) error
	// CreateSession fails with domain.ErrSessionConflict when another active
	// session already exists for the same user.
	CreateSession(ctx context.Context, session *domain.QuizSession) error
	AdvanceSession(ctx context.Context, sessionID string, fromIndex, toIndex int, answer *domain.QuizAnswer) error
	CompleteSession(ctx context.Context, sessionID string, fromIndex int, endedAt time.Time, answer *domain.QuizAnswer) error
	// SessionScore sums the points awarded to one session's answers.
	SessionScore(ctx context.Context, sessionID string) (int, error)
}

// QuestionCatalog serves a tenant's ordered question list. Lookup methods
// return (nil, nil) when no question matches.
type QuestionCatalog interface {
	FirstQuestions(ctx context.Context, tenantID string, limit int) ([]domain.QuizQuestion, error)
	QuestionAt(ctx context.Context, tenantID string, orderIndex int) (*domain.QuizQuestion, error)
	NextQuestion(ctx context.Context, tenantID string, afterIndex int) (*domain.QuizQuestion, error)
	TotalPoints(ctx context.Context, tenantID string) (int, error)
}

// QuizEngine drives the guided quiz state machine: start triggers open a fresh
// session, in-session texts are graded as answers, and the final answer closes
// the run with a score summary.
type QuizEngine struct {
	store   SessionStore
	catalog QuestionCatalog
	logger  *slog.Logger
	clock   func() time.Time
}

func NewQuizEngine(log *slog.Logger, store SessionStore, catalog QuestionCatalog) *QuizEngine {
	if log == nil {
		log = slog.Default()
	}
	return &QuizEngine{
		store:   store,
		catalog: catalog,
		logger:  log.With(slog.String("component", "quiz_engine")),
		clock:   time.Now,
	}
}

// NewQuizEngineWithClock pins the engine's clock for deterministic tests.
func NewQuizEngineWithClock(log *slog.Logger, store SessionStore, catalog QuestionCatalog, clock func() time.Time) *QuizEngine {
	engine := NewQuizEngine(log, store, catalog)
	engine.clock = clock
	return engine
}

// Handle processes one quiz-routed message and returns the bot reply. active
// is the result of the caller's single active-session lookup, nil when the
// user has none.
func (e *QuizEngine) Handle(ctx context.Context, cfg domain.TenantChannelConfig, msg domain.InboundMessage, active *domain.QuizSession) (string, error) {
	if MatchesStartTrigger(msg.Text) {
		return e.start(ctx, cfg, msg)
	}
	if active != nil && active.IsActive() {
		return e.answer(ctx, cfg, msg, active)
	}
	return e.start(ctx, cfg, msg)
}

// start opens a fresh session, ending any active one first. The previous run's
// progress is discarded.
func (e *QuizEngine) start(ctx context.Context, cfg domain.TenantChannelConfig, msg domain.InboundMessage) (string, error) {
	copySet := messagesFor(cfg.Language)

	// Emptiness is judged on fetched rows, not a count.
	first, err := e.catalog.FirstQuestions(ctx, cfg.TenantID, 1)
	if err != nil {
		return "", fmt.Errorf("load first question: %w", err)
	}
	if len(first) == 0 {
		return "", fmt.Errorf("tenant %s: %w", cfg.TenantID, domain.ErrNoQuestionsConfigured)
	}

	now := e.clock().UTC()
	taker, err := e.store.FindTaker(ctx, cfg.TenantID, msg.ChannelUserID)
	if err != nil {
		return "", fmt.Errorf("find taker: %w", err)
	}
	if taker == nil {
		taker = &domain.QuizTaker{
			ID:            uuid.NewString(),
			TenantID:      cfg.TenantID,
			ChannelUserID: msg.ChannelUserID,
			CreatedAt:     now,
		}
	}
	taker.Status = domain.TakerActive
	taker.CurrentStep = 0
	taker.Score = 0
	taker.ProfileTag = ""
	taker.UpdatedAt = now
	if err := e.store.SaveTaker(ctx, taker); err != nil {
		return "", fmt.Errorf("save taker: %w", err)
	}

	if err := e.store.EndActiveSessions(ctx, cfg.TenantID, msg.ChannelUserID, domain.SessionRestarted, now); err != nil {
		return "", fmt.Errorf("end previous sessions: %w", err)
	}

	session := &domain.QuizSession{
		ID:                   uuid.NewString(),
		TenantID:             cfg.TenantID,
		ChannelUserID:        msg.ChannelUserID,
		CompletionStatus:     domain.SessionActive,
		CurrentQuestionIndex: first[0].OrderIndex,
		StartedAt:            now,
	}
	if err := e.store.CreateSession(ctx, session); err != nil {
		if errors.Is(err, domain.ErrSessionConflict) {
			// A concurrent delivery won the start race; repeat its question.
			return e.currentQuestionReply(ctx, cfg, msg.ChannelUserID, copySet)
		}
		return "", fmt.Errorf("create session: %w", err)
	}

	return copySet.startHeader + "\n\n" + formatQuestion(first[0]), nil
}

// answer grades one in-session message against the session's current question.
func (e *QuizEngine) answer(ctx context.Context, cfg domain.TenantChannelConfig, msg domain.InboundMessage, session *domain.QuizSession) (string, error) {
	copySet := messagesFor(cfg.Language)

	question, err := e.catalog.QuestionAt(ctx, cfg.TenantID, session.CurrentQuestionIndex)
	if err != nil {
		return "", fmt.Errorf("load question at %d: %w", session.CurrentQuestionIndex, err)
	}
	if question == nil {
		return "", fmt.Errorf("session %s at index %d: %w", session.ID, session.CurrentQuestionIndex, domain.ErrQuestionNotFound)
	}

	chosen, ok := matchOption(msg.Text, question.Options)
	if !ok {
		// Unparseable answers repeat the question without advancing.
		return formatQuestion(*question), nil
	}

	taker, err := e.store.FindTaker(ctx, cfg.TenantID, msg.ChannelUserID)
	if err != nil {
		return "", fmt.Errorf("find taker: %w", err)
	}
	now := e.clock().UTC()
	if taker == nil {
		taker = &domain.QuizTaker{
			ID:            uuid.NewString(),
			TenantID:      cfg.TenantID,
			ChannelUserID: msg.ChannelUserID,
			Status:        domain.TakerActive,
			CreatedAt:     now,
		}
	}

	correct := strings.EqualFold(chosen, question.CorrectAnswer)
	awarded := 0
	if correct {
		awarded = question.PointsOrDefault()
	}
	graded := &domain.QuizAnswer{
		ID:            uuid.NewString(),
		TenantID:      cfg.TenantID,
		SessionID:     session.ID,
		TakerID:       taker.ID,
		QuestionID:    question.ID,
		AnswerText:    chosen,
		IsCorrect:     correct,
		PointsAwarded: awarded,
		CreatedAt:     now,
	}

	next, err := e.catalog.NextQuestion(ctx, cfg.TenantID, question.OrderIndex)
	if err != nil {
		return "", fmt.Errorf("load next question: %w", err)
	}
	if next == nil {
		return e.complete(ctx, cfg, copySet, session, taker, question, graded, now)
	}

	if err := e.store.AdvanceSession(ctx, session.ID, question.OrderIndex, next.OrderIndex, graded); err != nil {
		if errors.Is(err, domain.ErrSessionConflict) {
			e.logger.Info("advance lost a concurrent delivery race",
				slog.String("session_id", session.ID))
			return e.currentQuestionReply(ctx, cfg, msg.ChannelUserID, copySet)
		}
		return "", fmt.Errorf("advance session: %w", err)
	}

	taker.CurrentStep++
	taker.UpdatedAt = now
	if err := e.store.SaveTaker(ctx, taker); err != nil {
		e.logger.Warn("save taker progress",
			slog.String("taker_id", taker.ID),
			slog.Any("error", err))
	}

	return formatQuestion(*next), nil
}

// complete closes the session after its final answer and reports the score.
func (e *QuizEngine) complete(ctx context.Context, cfg domain.TenantChannelConfig, copySet messageSet, session *domain.QuizSession, taker *domain.QuizTaker, question *domain.QuizQuestion, graded *domain.QuizAnswer, now time.Time) (string, error) {
	err := e.store.CompleteSession(ctx, session.ID, question.OrderIndex, now, graded)
	if err != nil && !errors.Is(err, domain.ErrSessionConflict) {
		return "", fmt.Errorf("complete session: %w", err)
	}
	if errors.Is(err, domain.ErrSessionConflict) {
		// The duplicate that won already recorded this answer; fall through
		// and report the same summary.
		e.logger.Info("completion raced with a concurrent delivery",
			slog.String("session_id", session.ID))
	}

	total, err := e.store.SessionScore(ctx, session.ID)
	if err != nil {
		return "", fmt.Errorf("sum session score: %w", err)
	}
	possible, err := e.catalog.TotalPoints(ctx, cfg.TenantID)
	if err != nil {
		return "", fmt.Errorf("sum catalog points: %w", err)
	}

	taker.Status = domain.TakerCompleted
	taker.CurrentStep++
	taker.Score = total
	taker.ProfileTag = profileTag(total, possible)
	taker.UpdatedAt = now
	if err := e.store.SaveTaker(ctx, taker); err != nil {
		return "", fmt.Errorf("save completed taker: %w", err)
	}

	return fmt.Sprintf(copySet.completionFmt, total, possible), nil
}

// currentQuestionReply re-reads the user's active session and repeats its
// current question. Used after losing a conditional-update race.
func (e *QuizEngine) currentQuestionReply(ctx context.Context, cfg domain.TenantChannelConfig, channelUserID string, copySet messageSet) (string, error) {
	session, err := e.store.ActiveSession(ctx, cfg.TenantID, channelUserID)
	if err != nil {
		e.logger.Warn("reload active session", slog.Any("error", err))
		return copySet.quizUnavailable, nil
	}
	if session == nil {
		return copySet.quizUnavailable, nil
	}
	question, err := e.catalog.QuestionAt(ctx, cfg.TenantID, session.CurrentQuestionIndex)
	if err != nil || question == nil {
		return copySet.quizUnavailable, nil
	}
	return formatQuestion(*question), nil
}

// formatQuestion renders a question with numbered options.
func formatQuestion(q domain.QuizQuestion) string {
	var b strings.Builder
	b.WriteString(q.Text)
	for i, option := range q.Options {
		b.WriteString("\n")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(option)
	}
	return b.String()
}

// matchOption resolves free text to one of the question's options, accepting
// either the 1-based option number or the option text.
func matchOption(text string, options []string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if n, err := strconv.Atoi(trimmed); err == nil && n >= 1 && n <= len(options) {
		return options[n-1], true
	}
	for _, option := range options {
		if strings.EqualFold(trimmed, option) {
			return option, true
		}
	}
	return "", false
}

// profileTag buckets a final score into an engagement tier.
func profileTag(score, possible int) string {
	if possible <= 0 {
		return domain.ProfileLow
	}
	ratio := float64(score) / float64(possible)
	switch {
	case ratio >= 0.8:
		return domain.ProfileHigh
	case ratio >= 0.5:
		return domain.ProfileMedium
	default:
		return domain.ProfileLow
	}
}
