package domain

import (
	"time"

	"github.com/uptrace/bun"
)

// Sender identifies which side of a conversation authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Classification records which pipeline produced or consumed a message.
type Classification string

const (
	ClassificationQuiz     Classification = "quiz"
	ClassificationFallback Classification = "fallback"
)

// TakerStatus tracks a quiz taker's lifetime progress across sessions.
type TakerStatus string

const (
	TakerNotStarted TakerStatus = "not_started"
	TakerActive     TakerStatus = "active"
	TakerCompleted  TakerStatus = "completed"
)

// SessionStatus is the lifecycle state of a single quiz run.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionRestarted SessionStatus = "restarted"
)

// DeliveryStatus mirrors the provider's delivery receipt vocabulary.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRead      DeliveryStatus = "read"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Engagement profile tags assigned when a quiz run completes.
const (
	ProfileHigh   = "high"
	ProfileMedium = "medium"
	ProfileLow    = "low"
)

// InboundMessage is a provider-agnostic text message after normalization.
type InboundMessage struct {
	ChannelUserID     string    `json:"channelUserId"`
	ChannelID         string    `json:"channelId"`
	Text              string    `json:"text"`
	ProviderMessageID string    `json:"providerMessageId"`
	ReceivedAt        time.Time `json:"receivedAt"`
}

// StatusUpdate is a normalized delivery receipt for a previously sent message.
type StatusUpdate struct {
	ProviderMessageID string         `json:"providerMessageId"`
	Status            DeliveryStatus `json:"status"`
	RecipientID       string         `json:"recipientId"`
	OccurredAt        time.Time      `json:"occurredAt"`
}

// TenantChannelConfig binds a provider channel to a tenant and carries the
// per-tenant credentials and bot personality.
type TenantChannelConfig struct {
	bun.BaseModel `bun:"table:tenant_channel_configs,alias:tcc"`

	ID             string    `bun:"id,pk" json:"id"`
	TenantID       string    `bun:"tenant_id" json:"tenantId"`
	ChannelID      string    `bun:"channel_id" json:"channelId"`
	MessagingToken string    `bun:"messaging_token" json:"-"`
	AIAPIKey       string    `bun:"ai_api_key" json:"-"`
	AIModel        string    `bun:"ai_model" json:"aiModel"`
	SystemPrompt   string    `bun:"system_prompt" json:"systemPrompt"`
	Language       string    `bun:"language" json:"language"`
	IsActive       bool      `bun:"is_active" json:"isActive"`
	CreatedAt      time.Time `bun:"created_at" json:"createdAt"`
}

// QuizTaker is the per-tenant lifetime record of one channel user.
type QuizTaker struct {
	bun.BaseModel `bun:"table:quiz_takers,alias:qt"`

	ID            string      `bun:"id,pk" json:"id"`
	TenantID      string      `bun:"tenant_id" json:"tenantId"`
	ChannelUserID string      `bun:"channel_user_id" json:"channelUserId"`
	Status        TakerStatus `bun:"status" json:"status"`
	CurrentStep   int         `bun:"current_step" json:"currentStep"`
	Score         int         `bun:"score" json:"score"`
	ProfileTag    string      `bun:"profile_tag" json:"profileTag"`
	CreatedAt     time.Time   `bun:"created_at" json:"createdAt"`
	UpdatedAt     time.Time   `bun:"updated_at" json:"updatedAt"`
}

// QuizSession is one quiz run. At most one session per (tenant, channel user)
// may be active at a time; the store enforces this.
type QuizSession struct {
	bun.BaseModel `bun:"table:quiz_sessions,alias:qs"`

	ID                   string        `bun:"id,pk" json:"id"`
	TenantID             string        `bun:"tenant_id" json:"tenantId"`
	ChannelUserID        string        `bun:"channel_user_id" json:"channelUserId"`
	CompletionStatus     SessionStatus `bun:"completion_status" json:"completionStatus"`
	CurrentQuestionIndex int           `bun:"current_question_index" json:"currentQuestionIndex"`
	EngagementScore      int           `bun:"engagement_score" json:"engagementScore"`
	StartedAt            time.Time     `bun:"started_at" json:"startedAt"`
	EndedAt              *time.Time    `bun:"ended_at" json:"endedAt,omitempty"`
}

// IsActive reports whether the session still accepts answers.
func (s *QuizSession) IsActive() bool {
	return s.CompletionStatus == SessionActive && s.EndedAt == nil
}

// QuizQuestion is one catalog entry. OrderIndex values are unique per tenant
// but need not be contiguous.
type QuizQuestion struct {
	bun.BaseModel `bun:"table:quiz_questions,alias:qq"`

	ID            string   `bun:"id,pk" json:"id"`
	TenantID      string   `bun:"tenant_id" json:"tenantId"`
	OrderIndex    int      `bun:"order_index" json:"orderIndex"`
	Text          string   `bun:"text" json:"text"`
	Options       []string `bun:"options,array" json:"options"`
	CorrectAnswer string   `bun:"correct_answer" json:"correctAnswer"`
	Points        int      `bun:"points" json:"points"` // defaults to 1 if zero
}

// PointsOrDefault returns the question's point value, treating zero as one.
func (q QuizQuestion) PointsOrDefault() int {
	if q.Points > 0 {
		return q.Points
	}
	return 1
}

// QuizAnswer is the immutable record of one graded submission.
type QuizAnswer struct {
	bun.BaseModel `bun:"table:quiz_answers,alias:qa"`

	ID            string    `bun:"id,pk" json:"id"`
	TenantID      string    `bun:"tenant_id" json:"tenantId"`
	SessionID     string    `bun:"session_id" json:"sessionId"`
	TakerID       string    `bun:"taker_id" json:"takerId"`
	QuestionID    string    `bun:"question_id" json:"questionId"`
	AnswerText    string    `bun:"answer_text" json:"answerText"`
	IsCorrect     bool      `bun:"is_correct" json:"isCorrect"`
	PointsAwarded int       `bun:"points_awarded" json:"pointsAwarded"`
	CreatedAt     time.Time `bun:"created_at" json:"createdAt"`
}

// AutoReplyRule is a tenant-configured keyword response. Higher priority wins;
// inactive rules are never consulted.
type AutoReplyRule struct {
	bun.BaseModel `bun:"table:auto_reply_rules,alias:arr"`

	ID              string   `bun:"id,pk" json:"id"`
	TenantID        string   `bun:"tenant_id" json:"tenantId"`
	TriggerKeywords []string `bun:"trigger_keywords,array" json:"triggerKeywords"`
	ResponseText    string   `bun:"response_text" json:"responseText"`
	Priority        int      `bun:"priority" json:"priority"`
	IsActive        bool     `bun:"is_active" json:"isActive"`
}

// ConversationMessage is one append-only audit row. Inbound rows carry the
// provider message id used for duplicate detection; outbound rows gain one
// after dispatch.
type ConversationMessage struct {
	bun.BaseModel `bun:"table:conversation_messages,alias:cm"`

	ID                string         `bun:"id,pk" json:"id"`
	TenantID          string         `bun:"tenant_id" json:"tenantId"`
	ChannelUserID     string         `bun:"channel_user_id" json:"channelUserId"`
	Content           string         `bun:"content" json:"content"`
	Sender            Sender         `bun:"sender" json:"sender"`
	Classification    Classification `bun:"classification" json:"classification"`
	ProviderMessageID string         `bun:"provider_message_id,nullzero" json:"providerMessageId,omitempty"`
	DeliveryStatus    DeliveryStatus `bun:"delivery_status,nullzero" json:"deliveryStatus,omitempty"`
	CreatedAt         time.Time      `bun:"created_at" json:"createdAt"`
}
