// Package tokenestimate approximates token counts without a tokenizer.
// Four characters per token tracks the OpenAI-family averages closely
// enough for routing and budgeting decisions.
package tokenestimate

import "unicode/utf8"

const charsPerToken = 4

// Estimate returns the approximate token count of s, rounding up.
func Estimate(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// Budget apportions a model context window between the prompt, woven
// file content, and the reserved response space.
type Budget struct {
	ContextWindow  int
	SystemReserve  int
	ResponseBuffer int
}

// DefaultBudget reserves 500 tokens for system scaffolding and 4000 for
// the model response.
func DefaultBudget(contextWindow int) Budget {
	return Budget{
		ContextWindow:  contextWindow,
		SystemReserve:  500,
		ResponseBuffer: 4000,
	}
}

// FileAllowance returns the tokens left for attached file content after
// the prompt and the reserves are accounted for. Never negative.
func (b Budget) FileAllowance(promptTokens int) int {
	remaining := b.ContextWindow - b.SystemReserve - b.ResponseBuffer - promptTokens
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Truncate cuts s to at most maxTokens worth of characters on a rune
// boundary and reports whether anything was dropped.
func Truncate(s string, maxTokens int) (string, bool) {
	if maxTokens <= 0 {
		return "", s != ""
	}
	maxBytes := maxTokens * charsPerToken
	if len(s) <= maxBytes {
		return s, false
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}
