package tokenizer

import "unicode/utf8"

// CharsPerToken is the rough ratio used for English text.
const CharsPerToken = 4

// EstimateTokens returns ceil(chars/4). It is bookkeeping only and must not be
// used to reject input.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}
