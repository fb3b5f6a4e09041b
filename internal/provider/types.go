// Package provider speaks the messaging provider's wire formats: the nested
// webhook envelope, the flattened single-message shape, and the outbound send
// API.
package provider

import "quizbot-gateway/internal/domain"

// Batch is the normalized content of one webhook delivery.
type Batch struct {
	Messages []domain.InboundMessage
	Statuses []domain.StatusUpdate
}

// webhookBody is a decode probe covering both accepted payload shapes. The
// nested envelope populates Object/Entry; the flattened shape populates the
// channel fields.
type webhookBody struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`

	ChannelUserID string `json:"channelUserId"`
	ChannelID     string `json:"channelId"`
	Text          string `json:"text"`
	MessageID     string `json:"messageId"`
}

type entry struct {
	ID      string   `json:"id"`
	Changes []change `json:"changes"`
}

type change struct {
	Field string      `json:"field"`
	Value changeValue `json:"value"`
}

type changeValue struct {
	Metadata metadata       `json:"metadata"`
	Messages []entryMessage `json:"messages"`
	Statuses []entryStatus  `json:"statuses"`
}

type metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type entryMessage struct {
	From      string    `json:"from"`
	ID        string    `json:"id"`
	Timestamp string    `json:"timestamp"`
	Type      string    `json:"type"`
	Text      *textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

type entryStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}
