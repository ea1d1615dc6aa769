package synthesis

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// historyEncoding is the tokenizer used to budget conversational context.
const historyEncoding = "cl100k_base"

// trimToTokens bounds text to at most maxTokens tokens, dropping from the
// FRONT so the most recent history survives. maxTokens <= 0 disables
// trimming.
func trimToTokens(text string, maxTokens int) (string, error) {
	if maxTokens <= 0 || text == "" {
		return text, nil
	}

	enc, err := tiktoken.GetEncoding(historyEncoding)
	if err != nil {
		return "", fmt.Errorf("load %s encoding: %w", historyEncoding, err)
	}

	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, nil
	}
	return enc.Decode(tokens[len(tokens)-maxTokens:]), nil
}

// truncateToTokens bounds text to at most maxTokens tokens, dropping from the
// BACK. Documents arrive ranked best-first, so the tail is the least relevant
// part. maxTokens <= 0 disables truncation.
func truncateToTokens(text string, maxTokens int) (string, error) {
	if maxTokens <= 0 || text == "" {
		return text, nil
	}

	enc, err := tiktoken.GetEncoding(historyEncoding)
	if err != nil {
		return "", fmt.Errorf("load %s encoding: %w", historyEncoding, err)
	}

	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, nil
	}
	return enc.Decode(tokens[:maxTokens]), nil
}
