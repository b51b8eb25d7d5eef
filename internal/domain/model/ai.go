package model

import "strings"

// Transcription is the text recognized from a voice note.
type Transcription struct {
	Text     string
	Language string
}

// VocabularyItem is a word suggested by the correction model.
type VocabularyItem struct {
	Word       string `json:"word"`
	Definition string `json:"definition"`
}

// ErrorCategoryNone marks a sentence without mistakes.
const ErrorCategoryNone = "None"

// Correction is the structured grammar feedback for one learner sentence.
type Correction struct {
	CorrectedText   string
	Explanation     string
	VocabularyItems []VocabularyItem
	ErrorCategory   string
	MistakeText     string
	TokensUsed      int
}

// HasMistake reports whether the correction carries a real error category.
func (c Correction) HasMistake() bool {
	cat := strings.TrimSpace(c.ErrorCategory)
	return cat != "" && !strings.EqualFold(cat, ErrorCategoryNone)
}

// Reply is the conversational answer of the tutor.
type Reply struct {
	Text       string
	TokensUsed int
}

// Speech is synthesized audio ready to be delivered.
type Speech struct {
	Audio  []byte
	Format string // "wav" | "ogg"
}

// Turn is the tutor's answer to one learner message.
type Turn struct {
	Correction Correction
	// Reply is the conversational part alone; voice replies speak only this.
	Reply string
	// Text is the correction block followed by the reply, ready to send.
	Text string
}
