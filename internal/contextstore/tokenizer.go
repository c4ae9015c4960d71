// Package contextstore manages per-agent working memory: importance
// scoring, HOT/WARM/COLD tiering, and flash-save checkpointing.
package contextstore

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens in text. Token counting is pluggable so callers
// can match the model actually in use.
type Tokenizer interface {
	Count(text string) int
}

// TiktokenTokenizer counts tokens with a tiktoken encoding, falling back to
// cl100k_base when the model has no registered encoding.
type TiktokenTokenizer struct {
	encoder *tiktoken.Tiktoken
	// Approximate is true when no exact encoding for the model was found.
	Approximate bool
}

// NewTiktokenTokenizer creates a tokenizer for the given model ID.
func NewTiktokenTokenizer(modelID string) *TiktokenTokenizer {
	encoder, err := tiktoken.EncodingForModel(modelID)
	if err == nil {
		return &TiktokenTokenizer{encoder: encoder}
	}

	fallback, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &TiktokenTokenizer{Approximate: true}
	}
	return &TiktokenTokenizer{encoder: fallback, Approximate: true}
}

// Count returns the token count for the text.
func (t *TiktokenTokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	if t.encoder != nil {
		return len(t.encoder.Encode(text, nil, nil))
	}
	return heuristicCount(text)
}

// HeuristicTokenizer estimates roughly 4 characters per token. Used in
// tests and as the last-resort fallback.
type HeuristicTokenizer struct{}

// Count returns the estimated token count for the text.
func (HeuristicTokenizer) Count(text string) int {
	return heuristicCount(text)
}

func heuristicCount(text string) int {
	runes := utf8.RuneCountInString(text)
	if runes == 0 {
		return 0
	}
	return (runes + 3) / 4
}
