package domain

import "errors"

var (
	// ErrMalformedPayload is returned when a webhook body parses as JSON but
	// matches no known message shape.
	ErrMalformedPayload = errors.New("malformed webhook payload")
	// ErrTenantNotFound indicates no active tenant is bound to the channel id.
	ErrTenantNotFound = errors.New("tenant not found for channel")
	// ErrNoQuestionsConfigured indicates a tenant has an empty question catalog.
	ErrNoQuestionsConfigured = errors.New("no quiz questions configured")
	// ErrQuestionNotFound indicates a session points at a question that is
	// missing from the catalog.
	ErrQuestionNotFound = errors.New("quiz question not found")
	// ErrSessionConflict is returned when a conditional session update lost a
	// race with a concurrent delivery of the same message.
	ErrSessionConflict = errors.New("quiz session modified concurrently")
	// ErrAIUnavailable covers provider timeouts and non-success responses from
	// the completion API.
	ErrAIUnavailable = errors.New("ai completion unavailable")
	// ErrDeliveryFailed indicates the messaging provider rejected an outbound
	// send.
	ErrDeliveryFailed = errors.New("message delivery failed")
)
