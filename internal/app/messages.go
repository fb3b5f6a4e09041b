package app

import "strings"

// messageSet holds the canned bot copy for one language.
type messageSet struct {
	startHeader     string
	quizUnavailable string
	completionFmt   string // fmt args: score, possible
	aiFallback      string
}

var messagesByLanguage = map[string]messageSet{
	"en": {
		startHeader:     "Let's play! Reply with the number of your answer.",
		quizUnavailable: "Sorry, the quiz is not available right now. Please try again later.",
		completionFmt:   "That's a wrap! You scored %d out of %d points. Send \"quiz\" to play again.",
		aiFallback:      "Sorry, I can't answer that right now. Please try again in a moment.",
	},
	"id": {
		startHeader:     "Ayo main! Balas dengan nomor jawabanmu.",
		quizUnavailable: "Maaf, kuis belum tersedia saat ini. Silakan coba lagi nanti.",
		completionFmt:   "Selesai! Skor kamu %d dari %d poin. Kirim \"kuis\" untuk main lagi.",
		aiFallback:      "Maaf, aku belum bisa menjawab itu sekarang. Coba lagi sebentar ya.",
	},
}

// messagesFor returns the copy for a tenant's language, defaulting to English.
func messagesFor(language string) messageSet {
	if set, ok := messagesByLanguage[strings.ToLower(strings.TrimSpace(language))]; ok {
		return set
	}
	return messagesByLanguage["en"]
}
