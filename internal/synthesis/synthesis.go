// Package synthesis turns a question plus retrieved documents into a final
// answer through one of two interchangeable strategies.
//
// Stuff concatenates every document into a single prompt and issues one model
// call with the conversational memory injected. Refine walks the documents in
// ranking order, producing an initial answer from the first and revising it
// once per remaining document; it trades latency (N sequential calls) for
// never truncating documents out of the context window.
package synthesis

import (
	"context"
	"strings"

	"github.com/resourceburglar/localqa/internal/llm"
	"github.com/resourceburglar/localqa/internal/log"
	"github.com/resourceburglar/localqa/internal/memory"
)

// Strategy names as stored in bot configuration.
const (
	StrategyStuff  = "stuff"
	StrategyRefine = "refine"
)

// Default prompt templates, used when a bot declares none.
var (
	// DefaultStuffTemplate grounds a single-call answer in the retrieved
	// context. History rides along as structured messages, not template text.
	DefaultStuffTemplate = MustTemplate(
		"Use the following pieces of context to answer the question at the end. "+
			"If you don't know the answer based on the context, say that you don't know; "+
			"do not make up an answer.\n\n{context}\n\nQuestion: {question}\nHelpful Answer:",
		"context,question")

	// DefaultQuestionTemplate produces the refine strategy's initial answer.
	DefaultQuestionTemplate = MustTemplate(
		"Context information is below.\n"+
			"---------------------\n{context}\n---------------------\n"+
			"Given the context information and no prior knowledge, "+
			"answer the question: {question}\n",
		"context,question")

	// DefaultRefineTemplate revises the running answer with one more document.
	DefaultRefineTemplate = MustTemplate(
		"The original question is as follows: {question}\n"+
			"We have provided an existing answer: {existing_answer}\n"+
			"We have the opportunity to refine the existing answer "+
			"(only if needed) with some more context below.\n"+
			"------------\n{context}\n------------\n"+
			"Given the new context, refine the original answer to better "+
			"answer the question. If the context isn't useful, return the "+
			"original answer.",
		"question,existing_answer,context")
)

// HistoryTokenBudget caps the transcript injected into a {history} template
// variable. Oldest turns are dropped first.
const HistoryTokenBudget = 1000

// ContextTokenBudget caps the concatenated documents the stuff strategy puts
// into one prompt. Documents are joined best-first, so truncation cuts the
// weakest matches.
const ContextTokenBudget = 3000

// Request is one synthesis invocation.
type Request struct {
	Question  string
	Documents []string
	History   []llm.Message
	System    string

	// Strategy selects stuff (default) or refine.
	Strategy string

	// Prompt overrides the strategy's main template. For refine this is
	// the initial question template.
	Prompt *Template

	// RefinePrompt overrides the refine revision template.
	RefinePrompt *Template
}

// Engine executes synthesis strategies against a Completer.
type Engine struct {
	completer llm.Completer
	logger    log.Logger
}

// New creates an Engine.
func New(completer llm.Completer, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{completer: completer, logger: logger}
}

// Synthesize produces the final answer for the request.
func (e *Engine) Synthesize(ctx context.Context, req Request) (string, error) {
	if req.Strategy == StrategyRefine && len(req.Documents) > 0 {
		return e.refine(ctx, req)
	}
	return e.stuff(ctx, req)
}

func (e *Engine) stuff(ctx context.Context, req Request) (string, error) {
	tmpl := req.Prompt
	if tmpl == nil {
		tmpl = DefaultStuffTemplate
	}

	vals := map[string]string{}
	if tmpl.Has("context") {
		joined, err := truncateToTokens(strings.Join(req.Documents, "\n\n"), ContextTokenBudget)
		if err != nil {
			return "", err
		}
		vals["context"] = joined
	}
	if tmpl.Has("question") {
		vals["question"] = req.Question
	}

	// Templates that declare {history} receive the transcript inline,
	// token-trimmed; otherwise history travels as structured messages.
	history := req.History
	if tmpl.Has("history") {
		transcript, err := trimToTokens(memory.Transcript(req.History), HistoryTokenBudget)
		if err != nil {
			return "", err
		}
		vals["history"] = transcript
		history = nil
	}

	prompt, err := tmpl.Render(vals)
	if err != nil {
		return "", err
	}

	e.logger.Debug("synthesizing with stuff strategy",
		"documents", len(req.Documents), "history_messages", len(history))

	return e.completer.Complete(ctx, llm.CompletionRequest{
		System:  req.System,
		Prompt:  prompt,
		History: history,
	})
}

func (e *Engine) refine(ctx context.Context, req Request) (string, error) {
	questionTmpl := req.Prompt
	if questionTmpl == nil {
		questionTmpl = DefaultQuestionTemplate
	}
	refineTmpl := req.RefinePrompt
	if refineTmpl == nil {
		refineTmpl = DefaultRefineTemplate
	}

	prompt, err := questionTmpl.Render(map[string]string{
		"context":  req.Documents[0],
		"question": req.Question,
	})
	if err != nil {
		return "", err
	}

	answer, err := e.completer.Complete(ctx, llm.CompletionRequest{
		System: req.System,
		Prompt: prompt,
	})
	if err != nil {
		return "", err
	}

	for _, doc := range req.Documents[1:] {
		prompt, err := refineTmpl.Render(map[string]string{
			"question":        req.Question,
			"existing_answer": answer,
			"context":         doc,
		})
		if err != nil {
			return "", err
		}

		answer, err = e.completer.Complete(ctx, llm.CompletionRequest{
			System: req.System,
			Prompt: prompt,
		})
		if err != nil {
			return "", err
		}
	}

	e.logger.Debug("synthesized with refine strategy", "calls", len(req.Documents))
	return answer, nil
}
