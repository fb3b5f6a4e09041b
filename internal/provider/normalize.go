package provider

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"quizbot-gateway/internal/domain"
)

// ParseWebhook decodes a webhook body into normalized messages and status
// updates. Invalid JSON surfaces as a decode error; valid JSON that matches no
// known shape surfaces as domain.ErrMalformedPayload. Non-text and empty-text
// entries are dropped rather than rejected, so a statuses-only delivery yields
// an empty batch and no error.
func ParseWebhook(body []byte, now time.Time) (Batch, error) {
	var payload webhookBody
	if err := json.Unmarshal(body, &payload); err != nil {
		return Batch{}, fmt.Errorf("decode webhook body: %w", err)
	}

	if payload.Object != "" || len(payload.Entry) > 0 {
		return parseEntries(payload.Entry, now), nil
	}

	if payload.ChannelUserID != "" && payload.ChannelID != "" {
		var batch Batch
		if text := strings.TrimSpace(payload.Text); text != "" {
			batch.Messages = append(batch.Messages, domain.InboundMessage{
				ChannelUserID:     payload.ChannelUserID,
				ChannelID:         payload.ChannelID,
				Text:              text,
				ProviderMessageID: payload.MessageID,
				ReceivedAt:        now,
			})
		}
		return batch, nil
	}

	return Batch{}, domain.ErrMalformedPayload
}

func parseEntries(entries []entry, now time.Time) Batch {
	var batch Batch
	for _, e := range entries {
		for _, c := range e.Changes {
			channelID := c.Value.Metadata.PhoneNumberID
			for _, m := range c.Value.Messages {
				if m.Text == nil {
					continue
				}
				text := strings.TrimSpace(m.Text.Body)
				if text == "" {
					continue
				}
				batch.Messages = append(batch.Messages, domain.InboundMessage{
					ChannelUserID:     m.From,
					ChannelID:         channelID,
					Text:              text,
					ProviderMessageID: m.ID,
					ReceivedAt:        parseTimestamp(m.Timestamp, now),
				})
			}
			for _, s := range c.Value.Statuses {
				if s.ID == "" {
					continue
				}
				batch.Statuses = append(batch.Statuses, domain.StatusUpdate{
					ProviderMessageID: s.ID,
					Status:            domain.DeliveryStatus(s.Status),
					RecipientID:       s.RecipientID,
					OccurredAt:        parseTimestamp(s.Timestamp, now),
				})
			}
		}
	}
	return batch
}

// parseTimestamp reads the provider's unix-seconds string, falling back to the
// receive time when absent or garbled.
func parseTimestamp(raw string, fallback time.Time) time.Time {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Unix(secs, 0).UTC()
}
