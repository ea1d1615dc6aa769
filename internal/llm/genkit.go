package llm

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/resourceburglar/localqa/internal/log"
)

// Client is the Genkit-backed Completer and Embedder.
// Model and embedder names are provider-qualified ("googleai/gemini-2.5-flash",
// "ollama/nomic-embed-text").
type Client struct {
	g         *genkit.Genkit
	model     string
	embedder  ai.Embedder
	embedOpts any
	logger    log.Logger
}

// NewClient creates a client bound to one model and one embedder.
func NewClient(g *genkit.Genkit, model string, embedder ai.Embedder, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{g: g, model: model, embedder: embedder, logger: logger}
}

// WithEmbedOptions sets provider-specific options sent with every embed
// request. The Gemini embedder needs its output dimensionality pinned here,
// its model default is wider than the vector schema.
func (c *Client) WithEmbedOptions(opts any) *Client {
	c.embedOpts = opts
	return c
}

// Complete generates one completion. History, when present, is sent as
// alternating user/model messages followed by the prompt.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	opts := []ai.GenerateOption{
		ai.WithModelName(c.model),
	}
	if req.System != "" {
		opts = append(opts, ai.WithSystem(req.System))
	}

	if len(req.History) > 0 {
		msgs := make([]*ai.Message, 0, len(req.History)+1)
		for _, m := range req.History {
			msgs = append(msgs, toGenkitMessage(m))
		}
		msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(req.Prompt)))
		opts = append(opts, ai.WithMessages(msgs...))
	} else {
		opts = append(opts, ai.WithPrompt(req.Prompt))
	}

	response, err := genkit.Generate(ctx, c.g, opts...)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	return response.Text(), nil
}

// Embed returns the embedding vector for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
		Options: c.embedOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return resp.Embeddings[0].Embedding, nil
}

func toGenkitMessage(m Message) *ai.Message {
	part := ai.NewTextPart(m.Content)
	if m.Role == RoleModel {
		return ai.NewModelMessage(part)
	}
	return ai.NewUserMessage(part)
}
