package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"quizbot-gateway/internal/domain"
	"quizbot-gateway/internal/infra/memory"
)

var engineNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTenantConfig() domain.TenantChannelConfig {
	return domain.TenantChannelConfig{
		ID:        "cfg-1",
		TenantID:  "tenant-1",
		ChannelID: "chan-1",
		Language:  "en",
		IsActive:  true,
	}
}

// Order indexes 0, 2, 5 on purpose: order values are unique, not contiguous.
func engineQuestions() []domain.QuizQuestion {
	return []domain.QuizQuestion{
		{ID: "q1", TenantID: "tenant-1", OrderIndex: 0, Text: "What color is the sky?", Options: []string{"blue", "green"}, CorrectAnswer: "blue", Points: 1},
		{ID: "q2", TenantID: "tenant-1", OrderIndex: 2, Text: "What is 2 + 2?", Options: []string{"3", "4"}, CorrectAnswer: "4", Points: 1},
		{ID: "q3", TenantID: "tenant-1", OrderIndex: 5, Text: "Which planet is largest?", Options: []string{"Mars", "Jupiter"}, CorrectAnswer: "Jupiter", Points: 2},
	}
}

func newEngineFixture(questions []domain.QuizQuestion) (*QuizEngine, *memory.SessionStore) {
	store := memory.NewSessionStore()
	catalog := memory.NewCatalogRepository(memory.NewStaticCatalogLoader(map[string][]domain.QuizQuestion{
		"tenant-1": questions,
	}), time.Minute)
	engine := NewQuizEngineWithClock(testLogger(), store, catalog, func() time.Time { return engineNow })
	return engine, store
}

func userText(text string) domain.InboundMessage {
	return domain.InboundMessage{
		ChannelUserID: "u1",
		ChannelID:     "chan-1",
		Text:          text,
		ReceivedAt:    engineNow,
	}
}

func TestQuizStartCreatesSession(t *testing.T) {
	engine, store := newEngineFixture(engineQuestions())
	ctx := context.Background()

	reply, err := engine.Handle(ctx, testTenantConfig(), userText("game"), nil)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(reply, "What color is the sky?") {
		t.Fatalf("expected the first question in the reply, got %q", reply)
	}
	if !strings.Contains(reply, "1. blue") || !strings.Contains(reply, "2. green") {
		t.Fatalf("expected numbered options, got %q", reply)
	}

	session, err := store.ActiveSession(ctx, "tenant-1", "u1")
	if err != nil {
		t.Fatalf("active session: %v", err)
	}
	if session == nil {
		t.Fatalf("expected an active session after start")
	}
	if session.CurrentQuestionIndex != 0 {
		t.Fatalf("expected the lowest order index, got %d", session.CurrentQuestionIndex)
	}

	taker, err := store.FindTaker(ctx, "tenant-1", "u1")
	if err != nil {
		t.Fatalf("find taker: %v", err)
	}
	if taker == nil || taker.Status != domain.TakerActive || taker.CurrentStep != 0 || taker.Score != 0 {
		t.Fatalf("unexpected taker after start: %+v", taker)
	}
}

func TestQuizAnswerFlowToCompletion(t *testing.T) {
	engine, store := newEngineFixture(engineQuestions())
	ctx := context.Background()
	cfg := testTenantConfig()

	if _, err := engine.Handle(ctx, cfg, userText("quiz"), nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	session, _ := store.ActiveSession(ctx, "tenant-1", "u1")
	reply, err := engine.Handle(ctx, cfg, userText("1"), session)
	if err != nil {
		t.Fatalf("first answer: %v", err)
	}
	if !strings.Contains(reply, "What is 2 + 2?") {
		t.Fatalf("expected the second question, got %q", reply)
	}

	session, _ = store.ActiveSession(ctx, "tenant-1", "u1")
	if session.CurrentQuestionIndex != 2 {
		t.Fatalf("expected index 2 after one answer, got %d", session.CurrentQuestionIndex)
	}

	// Answer by option text rather than number.
	if _, err := engine.Handle(ctx, cfg, userText("4"), session); err != nil {
		t.Fatalf("second answer: %v", err)
	}

	session, _ = store.ActiveSession(ctx, "tenant-1", "u1")
	if session.CurrentQuestionIndex != 5 {
		t.Fatalf("expected index 5 before the final answer, got %d", session.CurrentQuestionIndex)
	}
	sessionID := session.ID

	reply, err = engine.Handle(ctx, cfg, userText("jupiter"), session)
	if err != nil {
		t.Fatalf("final answer: %v", err)
	}
	want := fmt.Sprintf(messagesFor("en").completionFmt, 4, 4)
	if reply != want {
		t.Fatalf("expected %q, got %q", want, reply)
	}

	if active, _ := store.ActiveSession(ctx, "tenant-1", "u1"); active != nil {
		t.Fatalf("expected no active session after completion, got %+v", active)
	}
	completed, ok := store.SessionByID(sessionID)
	if !ok || completed.CompletionStatus != domain.SessionCompleted || completed.EndedAt == nil {
		t.Fatalf("expected a completed session, got %+v", completed)
	}

	// The completed session's score equals the sum of its answer rows.
	score, err := store.SessionScore(ctx, sessionID)
	if err != nil {
		t.Fatalf("session score: %v", err)
	}
	sum := 0
	for _, answer := range store.Answers(sessionID) {
		sum += answer.PointsAwarded
	}
	if score != sum || score != 4 {
		t.Fatalf("expected score 4 matching answer rows, got score=%d sum=%d", score, sum)
	}
	if completed.EngagementScore != 4 {
		t.Fatalf("expected engagement score 4, got %d", completed.EngagementScore)
	}

	taker, _ := store.FindTaker(ctx, "tenant-1", "u1")
	if taker.Status != domain.TakerCompleted || taker.Score != 4 || taker.ProfileTag != domain.ProfileHigh {
		t.Fatalf("unexpected taker after completion: %+v", taker)
	}
	if taker.CurrentStep != 3 {
		t.Fatalf("expected step 3 after three answers, got %d", taker.CurrentStep)
	}
}

func TestQuizUnparseableAnswerRepeatsQuestion(t *testing.T) {
	engine, store := newEngineFixture(engineQuestions())
	ctx := context.Background()
	cfg := testTenantConfig()

	if _, err := engine.Handle(ctx, cfg, userText("quiz"), nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	session, _ := store.ActiveSession(ctx, "tenant-1", "u1")

	for _, text := range []string{"banana", "9", "0", "blue please"} {
		reply, err := engine.Handle(ctx, cfg, userText(text), session)
		if err != nil {
			t.Fatalf("answer %q: %v", text, err)
		}
		if !strings.Contains(reply, "What color is the sky?") {
			t.Fatalf("expected the question repeated for %q, got %q", text, reply)
		}
	}

	session, _ = store.ActiveSession(ctx, "tenant-1", "u1")
	if session.CurrentQuestionIndex != 0 {
		t.Fatalf("unparseable answers must not advance, index %d", session.CurrentQuestionIndex)
	}
	if got := len(store.Answers(session.ID)); got != 0 {
		t.Fatalf("unparseable answers must not be recorded, got %d rows", got)
	}
}

func TestQuizRestartMidSession(t *testing.T) {
	engine, store := newEngineFixture(engineQuestions())
	ctx := context.Background()
	cfg := testTenantConfig()

	if _, err := engine.Handle(ctx, cfg, userText("quiz"), nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	first, _ := store.ActiveSession(ctx, "tenant-1", "u1")
	if _, err := engine.Handle(ctx, cfg, userText("1"), first); err != nil {
		t.Fatalf("answer: %v", err)
	}

	mid, _ := store.ActiveSession(ctx, "tenant-1", "u1")
	reply, err := engine.Handle(ctx, cfg, userText("quiz ulang"), mid)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !strings.Contains(reply, "What color is the sky?") {
		t.Fatalf("expected the first question again, got %q", reply)
	}

	old, ok := store.SessionByID(first.ID)
	if !ok || old.CompletionStatus != domain.SessionRestarted || old.EndedAt == nil {
		t.Fatalf("expected the old session marked restarted, got %+v", old)
	}

	fresh, _ := store.ActiveSession(ctx, "tenant-1", "u1")
	if fresh == nil || fresh.ID == first.ID {
		t.Fatalf("expected a fresh session, got %+v", fresh)
	}
	if fresh.CurrentQuestionIndex != 0 {
		t.Fatalf("restart must rewind to the first question, index %d", fresh.CurrentQuestionIndex)
	}

	taker, _ := store.FindTaker(ctx, "tenant-1", "u1")
	if taker.Score != 0 || taker.CurrentStep != 0 || taker.Status != domain.TakerActive {
		t.Fatalf("restart must reset the taker, got %+v", taker)
	}
}

func TestQuizStartWithEmptyCatalog(t *testing.T) {
	engine, store := newEngineFixture(nil)
	ctx := context.Background()
	cfg := testTenantConfig()

	_, err := engine.Handle(ctx, cfg, userText("quiz"), nil)
	if !errors.Is(err, domain.ErrNoQuestionsConfigured) {
		t.Fatalf("expected ErrNoQuestionsConfigured, got %v", err)
	}
	if session, _ := store.ActiveSession(ctx, "tenant-1", "u1"); session != nil {
		t.Fatalf("no session may be created for an empty catalog, got %+v", session)
	}
	if taker, _ := store.FindTaker(ctx, "tenant-1", "u1"); taker != nil {
		t.Fatalf("no taker may be created for an empty catalog, got %+v", taker)
	}
}

func TestQuizAnswerAtMissingQuestion(t *testing.T) {
	engine, store := newEngineFixture(engineQuestions())
	ctx := context.Background()
	cfg := testTenantConfig()

	if _, err := engine.Handle(ctx, cfg, userText("quiz"), nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	session, _ := store.ActiveSession(ctx, "tenant-1", "u1")

	// Point the session at an order index the catalog never had.
	if err := store.AdvanceSession(ctx, session.ID, 0, 9, &domain.QuizAnswer{ID: "a-skip", SessionID: session.ID}); err != nil {
		t.Fatalf("advance to phantom index: %v", err)
	}
	session, _ = store.ActiveSession(ctx, "tenant-1", "u1")

	_, err := engine.Handle(ctx, cfg, userText("blue"), session)
	if !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
}

func TestQuizAdvanceConflictRepeatsCurrent(t *testing.T) {
	engine, store := newEngineFixture(engineQuestions())
	ctx := context.Background()
	cfg := testTenantConfig()

	if _, err := engine.Handle(ctx, cfg, userText("quiz"), nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	stale, _ := store.ActiveSession(ctx, "tenant-1", "u1")

	// A concurrent delivery advances the session first.
	if err := store.AdvanceSession(ctx, stale.ID, 0, 2, &domain.QuizAnswer{ID: "a-race", SessionID: stale.ID, PointsAwarded: 1}); err != nil {
		t.Fatalf("simulated concurrent advance: %v", err)
	}

	reply, err := engine.Handle(ctx, cfg, userText("1"), stale)
	if err != nil {
		t.Fatalf("losing delivery: %v", err)
	}
	if !strings.Contains(reply, "What is 2 + 2?") {
		t.Fatalf("the loser should repeat the current question, got %q", reply)
	}
	if got := len(store.Answers(stale.ID)); got != 1 {
		t.Fatalf("the losing delivery must not add an answer row, got %d", got)
	}
	session, _ := store.ActiveSession(ctx, "tenant-1", "u1")
	if session.CurrentQuestionIndex != 2 {
		t.Fatalf("index must advance exactly once, got %d", session.CurrentQuestionIndex)
	}
}

func TestProfileTagBuckets(t *testing.T) {
	cases := []struct {
		score, possible int
		want            string
	}{
		{8, 10, domain.ProfileHigh},
		{10, 10, domain.ProfileHigh},
		{7, 10, domain.ProfileMedium},
		{5, 10, domain.ProfileMedium},
		{4, 10, domain.ProfileLow},
		{0, 10, domain.ProfileLow},
		{0, 0, domain.ProfileLow},
	}
	for _, tc := range cases {
		if got := profileTag(tc.score, tc.possible); got != tc.want {
			t.Fatalf("profileTag(%d, %d) = %q, want %q", tc.score, tc.possible, got, tc.want)
		}
	}
}

func TestMatchOption(t *testing.T) {
	options := []string{"Jakarta", "Bandung", "Surabaya"}

	if got, ok := matchOption("2", options); !ok || got != "Bandung" {
		t.Fatalf("expected Bandung for \"2\", got %q ok=%v", got, ok)
	}
	if got, ok := matchOption("  surabaya ", options); !ok || got != "Surabaya" {
		t.Fatalf("expected Surabaya for text match, got %q ok=%v", got, ok)
	}
	if _, ok := matchOption("4", options); ok {
		t.Fatalf("out-of-range numbers must not match")
	}
	if _, ok := matchOption("Bogor", options); ok {
		t.Fatalf("unknown text must not match")
	}
}
