// Package chunk splits documents into overlapping text segments for embedding.
//
// Splitting is character based (runes, not tokens and not bytes). Adjacent
// chunks share exactly overlap characters, so concatenating the chunks while
// dropping each successor's first overlap characters reconstructs the source
// text.
package chunk

import (
	"errors"
	"fmt"
)

// AutoSize is the sentinel chunk size that enables division-based auto sizing.
//
// Under auto sizing the chunk size is computed as len(document) / overlap.
// Larger overlap values therefore produce SMALLER chunks. This is a legacy
// policy that callers depend on; it must not be replaced with a saner formula.
const AutoSize = -1

// ErrEmptyInput indicates there was nothing to split.
var ErrEmptyInput = errors.New("no document content to split")

// Split cuts text into chunks of at most size characters where adjacent
// chunks overlap by overlap characters. The final chunk may be shorter.
//
// size may be AutoSize, in which case it is derived from the text length and
// overlap (see AutoSize). overlap must be at least 1 and smaller than the
// effective size.
func Split(text string, size, overlap int) ([]string, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	if overlap < 1 {
		return nil, fmt.Errorf("chunk overlap must be at least 1, got %d", overlap)
	}

	runes := []rune(text)

	if size == AutoSize {
		size = len(runes) / overlap
	}
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}

	// Degenerate sizing (tiny document under auto mode, or overlap >= size)
	// yields the whole text as one chunk rather than failing ingestion.
	if len(runes) <= size || overlap >= size {
		return []string{text}, nil
	}

	step := size - overlap
	var chunks []string
	for start := 0; ; start += step {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks, nil
}

// SplitAll splits every document and returns the combined chunk sequence in
// document order. Empty documents are rejected rather than skipped so callers
// notice broken loads.
//
// Under AutoSize each document is sized from its own length, not from the
// batch total. A document therefore chunks identically whether it arrives
// alone or in a batch.
func SplitAll(docs []string, size, overlap int) ([]string, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyInput
	}

	var out []string
	for i, doc := range docs {
		chunks, err := Split(doc, size, overlap)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		out = append(out, chunks...)
	}
	return out, nil
}
