// Package memory builds the bounded conversational context injected into
// synthesis prompts.
package memory

import (
	"github.com/resourceburglar/localqa/internal/llm"
	"github.com/resourceburglar/localqa/internal/store"
)

// Build converts persisted history into prompt messages.
//
// history arrives most-recent-first, the natural order of the history query.
// The result is bounded to maxTurns turns and reversed to chronological
// order, since prompts are written assuming oldest-first context. Disliked
// and soft-deleted turns must already be excluded by the history source.
//
// maxTurns of zero disables memory entirely.
func Build(history []store.Turn, maxTurns int) []llm.Message {
	if maxTurns <= 0 || len(history) == 0 {
		return nil
	}

	if len(history) > maxTurns {
		history = history[:maxTurns]
	}

	msgs := make([]llm.Message, 0, len(history)*2)
	for i := len(history) - 1; i >= 0; i-- {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: history[i].Question},
			llm.Message{Role: llm.RoleModel, Content: history[i].Answer},
		)
	}
	return msgs
}

// Transcript renders messages as a "Human:" / "AI:" transcript for prompt
// templates that take history as one text block.
func Transcript(msgs []llm.Message) string {
	var b []byte
	for _, m := range msgs {
		if m.Role == llm.RoleModel {
			b = append(b, "AI: "...)
		} else {
			b = append(b, "Human: "...)
		}
		b = append(b, m.Content...)
		b = append(b, '\n')
	}
	return string(b)
}
