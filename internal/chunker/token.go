package chunker

import "strings"

// EstimateTokens gives a rough token-equivalent count for flush decisions.
// Word count scaled by ~1.33 tracks English tokenizers closely enough;
// exact tokenization is not required for chunk sizing.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	tokens := int(float64(words) * 1.33)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
