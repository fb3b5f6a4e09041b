package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"quizbot-gateway/internal/domain"
)

func userKey(tenantID, channelUserID string) string {
	return tenantID + "|" + channelUserID
}

// SessionStore is an in-memory implementation of app.SessionStore. The
// conditional advance semantics match the postgres store: updates only apply
// when the stored question index equals the caller's expectation.
type SessionStore struct {
	mu       sync.RWMutex
	takers   map[string]domain.QuizTaker
	sessions map[string]*domain.QuizSession
	answers  map[string][]domain.QuizAnswer
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		takers:   make(map[string]domain.QuizTaker),
		sessions: make(map[string]*domain.QuizSession),
		answers:  make(map[string][]domain.QuizAnswer),
	}
}

func (s *SessionStore) FindTaker(_ context.Context, tenantID, channelUserID string) (*domain.QuizTaker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	taker, ok := s.takers[userKey(tenantID, channelUserID)]
	if !ok {
		return nil, nil
	}
	found := taker
	return &found, nil
}

func (s *SessionStore) SaveTaker(_ context.Context, taker *domain.QuizTaker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.takers[userKey(taker.TenantID, taker.ChannelUserID)] = *taker
	return nil
}

func (s *SessionStore) ActiveSession(_ context.Context, tenantID, channelUserID string) (*domain.QuizSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.TenantID == tenantID && session.ChannelUserID == channelUserID && session.IsActive() {
			found := *session
			return &found, nil
		}
	}
	return nil, nil
}

func (s *SessionStore) EndActiveSessions(_ context.Context, tenantID, channelUserID string, status domain.SessionStatus, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.TenantID == tenantID && session.ChannelUserID == channelUserID && session.IsActive() {
			ended := endedAt
			session.CompletionStatus = status
			session.EndedAt = &ended
		}
	}
	return nil
}

func (s *SessionStore) CreateSession(_ context.Context, session *domain.QuizSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.TenantID == session.TenantID && existing.ChannelUserID == session.ChannelUserID && existing.IsActive() {
			return domain.ErrSessionConflict
		}
	}
	stored := *session
	s.sessions[session.ID] = &stored
	return nil
}

func (s *SessionStore) AdvanceSession(_ context.Context, sessionID string, fromIndex, toIndex int, answer *domain.QuizAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok || !session.IsActive() || session.CurrentQuestionIndex != fromIndex {
		return domain.ErrSessionConflict
	}
	session.CurrentQuestionIndex = toIndex
	session.EngagementScore += answer.PointsAwarded
	s.answers[sessionID] = append(s.answers[sessionID], *answer)
	return nil
}

func (s *SessionStore) CompleteSession(_ context.Context, sessionID string, fromIndex int, endedAt time.Time, answer *domain.QuizAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok || !session.IsActive() || session.CurrentQuestionIndex != fromIndex {
		return domain.ErrSessionConflict
	}
	ended := endedAt
	session.CompletionStatus = domain.SessionCompleted
	session.EndedAt = &ended
	session.EngagementScore += answer.PointsAwarded
	s.answers[sessionID] = append(s.answers[sessionID], *answer)
	return nil
}

func (s *SessionStore) SessionScore(_ context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, answer := range s.answers[sessionID] {
		total += answer.PointsAwarded
	}
	return total, nil
}

// SessionByID returns a copy of any session, active or not.
func (s *SessionStore) SessionByID(sessionID string) (domain.QuizSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.QuizSession{}, false
	}
	return *session, true
}

// Answers returns a copy of one session's graded answers in append order.
func (s *SessionStore) Answers(sessionID string) []domain.QuizAnswer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	answers := make([]domain.QuizAnswer, len(s.answers[sessionID]))
	copy(answers, s.answers[sessionID])
	return answers
}

// TenantStore is an in-memory implementation of app.TenantStore.
type TenantStore struct {
	mu        sync.RWMutex
	byChannel map[string]domain.TenantChannelConfig
}

func NewTenantStore(configs ...domain.TenantChannelConfig) *TenantStore {
	store := &TenantStore{byChannel: make(map[string]domain.TenantChannelConfig)}
	for _, cfg := range configs {
		store.byChannel[cfg.ChannelID] = cfg
	}
	return store
}

func (s *TenantStore) Put(cfg domain.TenantChannelConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byChannel[cfg.ChannelID] = cfg
}

func (s *TenantStore) FindByChannelID(_ context.Context, channelID string) (domain.TenantChannelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.byChannel[channelID]
	if !ok || !cfg.IsActive {
		return domain.TenantChannelConfig{}, domain.ErrTenantNotFound
	}
	return cfg, nil
}

// RuleStore is an in-memory implementation of app.RuleStore.
type RuleStore struct {
	mu    sync.RWMutex
	rules map[string][]domain.AutoReplyRule
}

func NewRuleStore(rules ...domain.AutoReplyRule) *RuleStore {
	store := &RuleStore{rules: make(map[string][]domain.AutoReplyRule)}
	for _, rule := range rules {
		store.rules[rule.TenantID] = append(store.rules[rule.TenantID], rule)
	}
	return store
}

func (s *RuleStore) ActiveRules(_ context.Context, tenantID string) ([]domain.AutoReplyRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []domain.AutoReplyRule
	for _, rule := range s.rules[tenantID] {
		if rule.IsActive {
			active = append(active, rule)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Priority > active[j].Priority })
	return active, nil
}

// ConversationStore is an in-memory implementation of app.ConversationStore.
type ConversationStore struct {
	mu       sync.RWMutex
	messages []domain.ConversationMessage
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{}
}

func (s *ConversationStore) Append(_ context.Context, msg *domain.ConversationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *ConversationStore) HasProviderMessage(_ context.Context, tenantID, providerMessageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, msg := range s.messages {
		if msg.TenantID == tenantID && msg.ProviderMessageID == providerMessageID {
			return true, nil
		}
	}
	return false, nil
}

func (s *ConversationStore) MarkDispatched(_ context.Context, messageID, providerMessageID string, status domain.DeliveryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages[i].ProviderMessageID = providerMessageID
			s.messages[i].DeliveryStatus = status
			return nil
		}
	}
	return nil
}

func (s *ConversationStore) SetDeliveryStatus(_ context.Context, providerMessageID string, status domain.DeliveryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].Sender == domain.SenderBot && s.messages[i].ProviderMessageID == providerMessageID {
			s.messages[i].DeliveryStatus = status
		}
	}
	return nil
}

// Messages returns a snapshot of the log, optionally filtered by sender.
func (s *ConversationStore) Messages(sender domain.Sender) []domain.ConversationMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ConversationMessage
	for _, msg := range s.messages {
		if sender == "" || msg.Sender == sender {
			out = append(out, msg)
		}
	}
	return out
}

// DedupStore is an in-memory implementation of app.DedupStore with per-entry
// expiry. Expired entries are swept on every claim so the map does not grow
// with ids that are never redelivered.
type DedupStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock func() time.Time
	seen  map[string]time.Time
}

func NewDedupStore(ttl time.Duration) *DedupStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &DedupStore{
		ttl:   ttl,
		clock: time.Now,
		seen:  make(map[string]time.Time),
	}
}

func (s *DedupStore) Claim(_ context.Context, tenantID, providerMessageID string) (bool, error) {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, expiry := range s.seen {
		if !expiry.After(now) {
			delete(s.seen, key)
		}
	}

	key := dedupKey(tenantID, providerMessageID)
	if _, ok := s.seen[key]; ok {
		return true, nil
	}
	s.seen[key] = now.Add(s.ttl)
	return false, nil
}

// Release drops a claim so the next delivery of the id is processed again.
func (s *DedupStore) Release(_ context.Context, tenantID, providerMessageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, dedupKey(tenantID, providerMessageID))
	return nil
}

func dedupKey(tenantID, providerMessageID string) string {
	return strings.Join([]string{tenantID, providerMessageID}, "|")
}
