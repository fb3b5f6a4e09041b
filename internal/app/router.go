package app

import (
	"strings"

	"quizbot-gateway/internal/domain"
)

// startTriggers begin or restart a quiz run. Matching is case-insensitive on
// substrings, so "QUIZ please" and "mulai kuis dong" both count.
var startTriggers = []string{"quiz", "kuis", "test", "tes", "game", "mulai", "start"}

// MatchesStartTrigger reports whether the text asks to begin or restart a quiz.
func MatchesStartTrigger(text string) bool {
	lowered := strings.ToLower(text)
	for _, trigger := range startTriggers {
		if strings.Contains(lowered, trigger) {
			return true
		}
	}
	return false
}

// Route decides which pipeline handles a message. It is a pure function of the
// text and the caller's one active-session lookup; every ingress goes through
// it.
func Route(text string, hasActiveSession bool) domain.Classification {
	if MatchesStartTrigger(text) || hasActiveSession {
		return domain.ClassificationQuiz
	}
	return domain.ClassificationFallback
}
