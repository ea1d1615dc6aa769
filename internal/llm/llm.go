// Package llm defines the narrow model interfaces the QA pipeline consumes
// and provides the Genkit-backed implementation plus decorators for rate
// limiting and history-stripping retry.
package llm

import "context"

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks a human message.
	RoleUser Role = "user"

	// RoleModel marks a model-generated message.
	RoleModel Role = "model"
)

// Message is one turn of conversational context passed to a completer.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest carries one generation request. History, when present, is
// in chronological order; Prompt is the final user message.
type CompletionRequest struct {
	System  string
	Prompt  string
	History []Message
}

// Completer generates a single text completion.
// Implementations must be safe for concurrent use.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Embedder converts one text into its embedding vector.
// Implementations must be safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
