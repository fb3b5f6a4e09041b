package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"quizbot-gateway/internal/domain"
	"quizbot-gateway/internal/infra/memory"
)

type stubAI struct {
	reply string
	err   error
	calls int
	last  string
}

func (s *stubAI) Complete(_ context.Context, _ domain.TenantChannelConfig, userText string) (string, error) {
	s.calls++
	s.last = userText
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func promoRules() *memory.RuleStore {
	return memory.NewRuleStore(
		domain.AutoReplyRule{ID: "r1", TenantID: "tenant-1", TriggerKeywords: []string{"price", "harga"}, ResponseText: "Our plans start at $5/month.", Priority: 5, IsActive: true},
		domain.AutoReplyRule{ID: "r2", TenantID: "tenant-1", TriggerKeywords: []string{"promo"}, ResponseText: "Use code WELCOME10 for 10% off!", Priority: 10, IsActive: true},
		domain.AutoReplyRule{ID: "r3", TenantID: "tenant-1", TriggerKeywords: []string{"price"}, ResponseText: "never shown", Priority: 1, IsActive: false},
	)
}

func TestResponderPicksHighestPriorityRule(t *testing.T) {
	ai := &stubAI{reply: "ai reply"}
	responder := NewResponder(testLogger(), promoRules(), ai, time.Second)

	// Both r1 and r2 match; r2 outranks r1.
	reply := responder.Respond(context.Background(), testTenantConfig(), "any promo on your price list?")
	if reply != "Use code WELCOME10 for 10% off!" {
		t.Fatalf("expected the priority-10 rule, got %q", reply)
	}
	if ai.calls != 0 {
		t.Fatalf("ai must not be consulted when a rule matches")
	}
}

func TestResponderKeywordMatchingIsCaseInsensitive(t *testing.T) {
	responder := NewResponder(testLogger(), promoRules(), &stubAI{}, time.Second)

	reply := responder.Respond(context.Background(), testTenantConfig(), "HARGA paket bulanan?")
	if reply != "Our plans start at $5/month." {
		t.Fatalf("expected the price rule, got %q", reply)
	}
}

func TestResponderInactiveRulesAreSkipped(t *testing.T) {
	rules := memory.NewRuleStore(
		domain.AutoReplyRule{ID: "r1", TenantID: "tenant-1", TriggerKeywords: []string{"hours"}, ResponseText: "inactive", Priority: 99, IsActive: false},
	)
	ai := &stubAI{reply: "We are open 9 to 5."}
	responder := NewResponder(testLogger(), rules, ai, time.Second)

	reply := responder.Respond(context.Background(), testTenantConfig(), "what are your hours?")
	if reply != "We are open 9 to 5." {
		t.Fatalf("inactive rules must fall through to ai, got %q", reply)
	}
}

func TestResponderFallsBackToAI(t *testing.T) {
	ai := &stubAI{reply: "Great question! We ship worldwide."}
	responder := NewResponder(testLogger(), promoRules(), ai, time.Second)

	reply := responder.Respond(context.Background(), testTenantConfig(), "do you ship to Japan?")
	if reply != "Great question! We ship worldwide." {
		t.Fatalf("expected the ai reply, got %q", reply)
	}
	if ai.last != "do you ship to Japan?" {
		t.Fatalf("ai should receive the raw text, got %q", ai.last)
	}
}

func TestResponderAIFailureUsesCannedReply(t *testing.T) {
	ai := &stubAI{err: errors.New("connection refused")}
	responder := NewResponder(testLogger(), promoRules(), ai, time.Second)

	reply := responder.Respond(context.Background(), testTenantConfig(), "do you ship to Japan?")
	if reply != messagesFor("en").aiFallback {
		t.Fatalf("expected the canned fallback, got %q", reply)
	}
}

func TestResponderWithoutAI(t *testing.T) {
	responder := NewResponder(testLogger(), promoRules(), nil, time.Second)

	cfg := testTenantConfig()
	cfg.Language = "id"
	reply := responder.Respond(context.Background(), cfg, "do you ship to Japan?")
	if reply != messagesFor("id").aiFallback {
		t.Fatalf("expected the Indonesian canned fallback, got %q", reply)
	}
}
