package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"quizbot-gateway/internal/domain"
)

// Client sends messages through the provider's HTTP API using each tenant's
// own credentials.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(log *slog.Logger, baseURL string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("component", "provider_client")),
	}
}

type sendRequest struct {
	To   string       `json:"to"`
	Type string       `json:"type"`
	Text sendTextBody `json:"text"`
}

type sendTextBody struct {
	Body string `json:"body"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// Send posts a text message to a channel user and returns the provider's
// message id for later status correlation. The id may be empty when the
// provider omits it.
func (c *Client) Send(ctx context.Context, cfg domain.TenantChannelConfig, to, text string) (string, error) {
	payload, err := json.Marshal(sendRequest{To: to, Type: "text", Text: sendTextBody{Body: text}})
	if err != nil {
		return "", fmt.Errorf("encode send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, cfg.ChannelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.MessagingToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", domain.ErrDeliveryFailed, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		// Delivery succeeded; only the receipt id is lost.
		c.logger.Warn("decode send response", slog.Any("error", err))
		return "", nil
	}
	if len(decoded.Messages) == 0 {
		return "", nil
	}
	return decoded.Messages[0].ID, nil
}
