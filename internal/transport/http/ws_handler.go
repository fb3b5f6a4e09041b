package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"quizbot-gateway/internal/app"
	"quizbot-gateway/internal/domain"
)

// WSHandler serves the webchat ingress. Clients connect with their channel
// binding in the query string and exchange JSON frames; replies go back over
// the same socket instead of the messaging provider.
type WSHandler struct {
	processor *app.Processor
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

func NewWSHandler(log *slog.Logger, processor *app.Processor) *WSHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WSHandler{
		processor: processor,
		logger:    log.With(slog.String("component", "webchat")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type chatFrame struct {
	Text string `json:"text"`
}

type replyFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ServeWS upgrades the request and pumps chat frames through the processor.
// Replies only flow from this loop, so connection writes stay serialized.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channelId")
	channelUserID := r.URL.Query().Get("channelUserId")
	if channelID == "" || channelUserID == "" {
		http.Error(w, "missing channelId or channelUserId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	sender := &socketSender{conn: conn}
	for {
		var frame chatFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if strings.TrimSpace(frame.Text) == "" {
			continue
		}
		msg := domain.InboundMessage{
			ChannelUserID: channelUserID,
			ChannelID:     channelID,
			Text:          frame.Text,
			ReceivedAt:    time.Now().UTC(),
		}
		if err := h.processor.Process(r.Context(), msg, sender); err != nil {
			h.logger.Error("process webchat message", slog.Any("error", err))
			_ = conn.WriteJSON(replyFrame{Type: "error", Text: "something went wrong, please try again"})
		}
	}
}

// socketSender writes replies back over the originating websocket. Webchat
// has no provider receipts, so the returned id is always empty.
type socketSender struct {
	conn *websocket.Conn
}

func (s *socketSender) Send(_ context.Context, _ domain.TenantChannelConfig, _ string, text string) (string, error) {
	if err := s.conn.WriteJSON(replyFrame{Type: "reply", Text: text}); err != nil {
		return "", err
	}
	return "", nil
}
