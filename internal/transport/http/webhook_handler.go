// Package http exposes the provider webhook and the webchat websocket.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"quizbot-gateway/internal/app"
	"quizbot-gateway/internal/domain"
	"quizbot-gateway/internal/provider"
)

const maxWebhookBody = 1 << 20

// WebhookHandler ingests provider deliveries: inbound user messages and
// delivery status callbacks, possibly batched in one request.
type WebhookHandler struct {
	processor *app.Processor
	statuses  *app.StatusSync
	sender    app.ReplySender
	logger    *slog.Logger
}

func NewWebhookHandler(log *slog.Logger, processor *app.Processor, statuses *app.StatusSync, sender app.ReplySender) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		processor: processor,
		statuses:  statuses,
		sender:    sender,
		logger:    log.With(slog.String("component", "webhook")),
	}
}

type webhookResponse struct {
	Success bool `json:"success"`
}

// ServeHTTP handles one delivery. Recognized payloads are acknowledged with
// 200 even on business failures so the provider does not retry them; only
// unreadable bodies get a 4xx.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if len(body) > maxWebhookBody {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	batch, err := provider.ParseWebhook(body, time.Now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrMalformedPayload) {
			h.logger.Warn("unrecognized webhook shape")
			writeJSON(w, http.StatusOK, webhookResponse{Success: false})
			return
		}
		h.logger.Warn("undecodable webhook body", slog.Any("error", err))
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	for _, update := range batch.Statuses {
		h.statuses.Apply(r.Context(), update)
	}

	ok := true
	for _, msg := range batch.Messages {
		if err := h.processor.Process(r.Context(), msg, h.sender); err != nil {
			h.logger.Error("process inbound message", slog.Any("error", err))
			ok = false
		}
	}

	writeJSON(w, http.StatusOK, webhookResponse{Success: ok})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Healthz reports process liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
