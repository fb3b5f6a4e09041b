package cli

import (
	"testing"
	"time"
)

func TestWebhookWriteTimeoutExceedsCallBudgets(t *testing.T) {
	// Defaults: ai 20s, provider send 15s. A stalled pipeline may legitimately
	// take their sum, and the ack still has to go out afterwards.
	if got := webhookWriteTimeout(20*time.Second, 15*time.Second); got <= 35*time.Second {
		t.Fatalf("write deadline %v must exceed the combined ai and provider budget", got)
	}
	if got := webhookWriteTimeout(60*time.Second, 30*time.Second); got <= 90*time.Second {
		t.Fatalf("write deadline %v must scale with the configured timeouts", got)
	}
}
