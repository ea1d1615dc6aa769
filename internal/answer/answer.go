// Package answer orchestrates the question-answering pipeline: bot
// resolution, retrieval, synthesis, escalation, post-processing and history
// persistence.
package answer

import (
	"context"
	"strings"

	"github.com/resourceburglar/localqa/internal/config"
	"github.com/resourceburglar/localqa/internal/errcode"
	"github.com/resourceburglar/localqa/internal/llm"
	"github.com/resourceburglar/localqa/internal/log"
	"github.com/resourceburglar/localqa/internal/meeting"
	"github.com/resourceburglar/localqa/internal/memory"
	"github.com/resourceburglar/localqa/internal/store"
	"github.com/resourceburglar/localqa/internal/synthesis"
	"github.com/resourceburglar/localqa/internal/vector"
)

// Bots is the slice of the bot repository the orchestrator needs.
type Bots interface {
	Get(ctx context.Context, id int64) (*store.Bot, error)
}

// Namespaces resolves the namespace a bot is bound to.
type Namespaces interface {
	GetByName(ctx context.Context, name string) (*store.Namespace, error)
}

// History is the slice of the history repository the orchestrator needs.
type History interface {
	Append(ctx context.Context, t *store.Turn) (int64, error)
	Recent(ctx context.Context, conversationID string, botID int64, limit int, sharedHistory bool) ([]store.Turn, error)
	SoftDelete(ctx context.Context, id int64) error
}

// Retriever performs the confidence-filtered similarity search.
type Retriever interface {
	Retrieve(ctx context.Context, question, namespace string, topK int, scoreThreshold float64) ([]vector.Match, error)
}

// Synthesizer turns a question and documents into an answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, req synthesis.Request) (string, error)
}

// MeetingResponder handles meeting-room reservation turns on the public chat
// path.
type MeetingResponder interface {
	Handles(question string) bool
	Respond(ctx context.Context, conversationID, question string) (*meeting.Outcome, error)
}

// Request is one question entering the pipeline.
type Request struct {
	BotID          int64
	Question       string
	ConversationID string
}

// Result is the answered turn.
type Result struct {
	Answer    string
	HistoryID int64
	Scene     string
}

// DefaultPublicSystem frames the unconstrained public chat.
const DefaultPublicSystem = "You are a helpful assistant. Answer the user's question directly and concisely."

// Orchestrator wires the pipeline together. It holds no per-request state and
// is safe for concurrent use.
type Orchestrator struct {
	bots       Bots
	namespaces Namespaces
	history    History
	retriever  Retriever
	engine     Synthesizer
	completer  llm.Completer
	meeting    MeetingResponder
	policy     config.PolicyConfig
	cfg        *config.Config
	logger     log.Logger
}

// WithMeeting enables the meeting-room dialogue on the public chat path.
func (o *Orchestrator) WithMeeting(m MeetingResponder) *Orchestrator {
	o.meeting = m
	return o
}

// New creates the orchestrator.
func New(
	bots Bots,
	namespaces Namespaces,
	history History,
	retriever Retriever,
	engine Synthesizer,
	completer llm.Completer,
	cfg *config.Config,
	logger log.Logger,
) *Orchestrator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Orchestrator{
		bots:       bots,
		namespaces: namespaces,
		history:    history,
		retriever:  retriever,
		engine:     engine,
		completer:  completer,
		policy:     cfg.Policy,
		cfg:        cfg,
		logger:     logger,
	}
}

// Ask answers a question against a private, namespace-bound bot.
func (o *Orchestrator) Ask(ctx context.Context, req Request) (*Result, error) {
	bot, err := o.resolveBot(ctx, req.BotID, store.UseTypePrivate)
	if err != nil {
		return nil, err
	}

	// Master bots route keyword-matched questions to a slave bot.
	if slave := o.dispatchSlave(ctx, bot, req.Question); slave != nil {
		bot = slave
	}

	ns, err := o.namespaces.GetByName(ctx, bot.Namespace)
	if err != nil {
		return nil, errcode.New(errcode.ErrNamespaceNotFound,
			"bot %d references namespace %q: %v", bot.ID, bot.Namespace, err)
	}

	msgs, err := o.loadMemory(ctx, req.ConversationID, bot)
	if err != nil {
		return nil, err
	}

	matches, err := o.retriever.Retrieve(ctx, req.Question, bot.Namespace,
		o.cfg.NormalizeTopK(bot.TopK), o.threshold(bot))
	if err != nil {
		return nil, err
	}

	// Canned-answer short circuit, only for Q&A-prepared namespaces: a
	// confidently matched canonical chunk with a scene answers without any
	// model call. The PreparedAnswer policy additionally short-circuits on a
	// bare answer with no scene.
	if ns.IsQAPrepared() && len(matches) > 0 {
		if canned, scene, ok := cannedAnswer(matches[0]); ok && (scene != "" || o.policy.PreparedAnswer) {
			o.logger.Debug("returning prepared answer", "bot", bot.ID, "scene", scene)
			return o.finish(ctx, req, bot, canned, scene, false)
		}
	}

	// No confident match escalates to public chat when the policy allows.
	if len(matches) == 0 && o.policy.PublicFallback {
		o.logger.Debug("no confident match, escalating to public chat", "bot", bot.ID)
		raw, stripped, err := o.publicComplete(ctx, "", req.Question, msgs)
		if err != nil {
			return nil, err
		}
		return o.finish(ctx, req, bot, raw, "", stripped)
	}

	raw, err := o.synthesize(ctx, bot, req.Question, matches, msgs)
	if err != nil {
		return nil, err
	}
	return o.finish(ctx, req, bot, raw, "", false)
}

// AskPublic answers a question against a public bot: no retrieval, just
// conversation.
func (o *Orchestrator) AskPublic(ctx context.Context, req Request) (*Result, error) {
	bot, err := o.resolveBot(ctx, req.BotID, store.UseTypePublic)
	if err != nil {
		return nil, err
	}

	// Meeting-room questions run the slot-filling dialogue instead of chat.
	// Its replies are already shaped for the user and skip post-processing
	// and history persistence.
	if o.meeting != nil && o.meeting.Handles(req.Question) {
		out, err := o.meeting.Respond(ctx, req.ConversationID, req.Question)
		if err != nil {
			return nil, err
		}
		return &Result{Answer: out.Answer, Scene: out.Scene}, nil
	}

	msgs, err := o.loadMemory(ctx, req.ConversationID, bot)
	if err != nil {
		return nil, err
	}

	// A public bot's own prompt frames the conversation when it has one,
	// with the suffix prompt tacked on after a blank line.
	raw, stripped, err := o.publicComplete(ctx, publicSystem(bot), req.Question, msgs)
	if err != nil {
		return nil, err
	}
	return o.finish(ctx, req, bot, raw, "", stripped)
}

// AskOnce answers a single question without a bot, memory or persistence.
// With a namespace it runs retrieval-augmented synthesis over that
// namespace's documents; without one it is a plain completion.
func (o *Orchestrator) AskOnce(ctx context.Context, question, namespace string) (string, error) {
	if namespace == "" {
		raw, _, err := o.publicComplete(ctx, "", question, nil)
		if err != nil {
			return "", err
		}
		return postprocess(raw, o.policy.ReplaceRules), nil
	}

	if _, err := o.namespaces.GetByName(ctx, namespace); err != nil {
		return "", errcode.New(errcode.ErrNamespaceNotFound, "namespace %q: %v", namespace, err)
	}

	matches, err := o.retriever.Retrieve(ctx, question, namespace,
		o.cfg.NormalizeTopK(0), o.cfg.ScoreThreshold)
	if err != nil {
		return "", err
	}

	docs := make([]string, len(matches))
	for i, m := range matches {
		docs[i] = m.Document.Content
	}
	raw, err := o.engine.Synthesize(ctx, synthesis.Request{
		Question:  question,
		Documents: docs,
	})
	if err != nil {
		return "", err
	}
	return postprocess(raw, o.policy.ReplaceRules), nil
}

// resolveBot loads a bot and checks it is served by the invoked endpoint.
func (o *Orchestrator) resolveBot(ctx context.Context, id int64, useType int16) (*store.Bot, error) {
	bot, err := o.bots.Get(ctx, id)
	if err != nil {
		return nil, errcode.New(errcode.ErrBotNotFound, "bot %d: %v", id, err)
	}
	if bot.UseType != useType {
		return nil, errcode.New(errcode.ErrBotUseType,
			"bot %d has use type %d, endpoint requires %d", id, bot.UseType, useType)
	}
	return bot, nil
}

// dispatchSlave returns the slave bot whose keyword appears in the question,
// or nil when no route matches. A route to a missing or non-private bot is
// skipped, the master answers instead.
func (o *Orchestrator) dispatchSlave(ctx context.Context, master *store.Bot, question string) *store.Bot {
	for _, mark := range master.SlaveMarks() {
		if !strings.Contains(question, mark.Keyword) {
			continue
		}
		slave, err := o.bots.Get(ctx, mark.BotID)
		if err != nil || slave.UseType != store.UseTypePrivate {
			o.logger.Warn("slave route unusable, master answers",
				"master", master.ID, "slave", mark.BotID, "error", err)
			continue
		}
		o.logger.Debug("dispatched to slave bot",
			"master", master.ID, "slave", slave.ID, "keyword", mark.Keyword)
		return slave
	}
	return nil
}

func (o *Orchestrator) loadMemory(ctx context.Context, conversationID string, bot *store.Bot) ([]llm.Message, error) {
	maxTurns := o.cfg.NormalizeMaxTurns(bot.MaxTurns)
	if conversationID == "" || maxTurns == 0 {
		return nil, nil
	}
	turns, err := o.history.Recent(ctx, conversationID, bot.ID, maxTurns, o.policy.SharedHistory)
	if err != nil {
		return nil, err
	}
	return memory.Build(turns, maxTurns), nil
}

func (o *Orchestrator) threshold(bot *store.Bot) float64 {
	if bot.ScoreThreshold > 0 {
		return bot.ScoreThreshold
	}
	return o.cfg.ScoreThreshold
}

func (o *Orchestrator) synthesize(ctx context.Context, bot *store.Bot, question string, matches []vector.Match, msgs []llm.Message) (string, error) {
	var prompt *synthesis.Template
	if bot.PromptTemplate != "" {
		t, err := synthesis.NewTemplate(bot.PromptTemplate, bot.DeclaredVars)
		if err != nil {
			return "", err
		}
		prompt = t
	}

	// The prefix prompt configures how refine revises the running answer.
	var refinePrompt *synthesis.Template
	if bot.PrefixPrompt != "" {
		t, err := synthesis.NewTemplate(bot.PrefixPrompt, bot.PrefixVars)
		if err != nil {
			return "", err
		}
		refinePrompt = t
	}

	docs := make([]string, len(matches))
	for i, m := range matches {
		docs[i] = m.Document.Content
	}

	return o.engine.Synthesize(ctx, synthesis.Request{
		Question:     question,
		Documents:    docs,
		History:      msgs,
		Strategy:     bot.ChainType,
		Prompt:       prompt,
		RefinePrompt: refinePrompt,
	})
}

func publicSystem(bot *store.Bot) string {
	return strings.TrimSpace(bot.PromptTemplate + "\n\n" + bot.SuffixPrompt)
}

// fallbackCompleter is implemented by completers that can retry without
// conversational history and report having done so.
type fallbackCompleter interface {
	CompleteWithFallback(ctx context.Context, req llm.CompletionRequest) (string, bool, error)
}

// publicComplete runs the namespace-free conversational path. stripped
// reports that the answer came from a history-stripped safety retry.
func (o *Orchestrator) publicComplete(ctx context.Context, system, question string, msgs []llm.Message) (text string, stripped bool, err error) {
	if system == "" {
		system = DefaultPublicSystem
	}
	req := llm.CompletionRequest{
		System:  system,
		Prompt:  question,
		History: msgs,
	}
	if fc, ok := o.completer.(fallbackCompleter); ok {
		return fc.CompleteWithFallback(ctx, req)
	}
	text, err = o.completer.Complete(ctx, req)
	return text, false, err
}

// finish post-processes the raw answer and persists the exchange. The clean
// answer is what gets stored; the scene confirmation suffix is added only to
// the reply. An answer matching the exclusion list, or produced by a
// history-stripped safety retry, is still stored but soft-deleted so it never
// replays as memory while remaining auditable.
func (o *Orchestrator) finish(ctx context.Context, req Request, bot *store.Bot, raw, scene string, stripped bool) (*Result, error) {
	if scene == "" {
		scene = bot.Scene
	}
	clean := postprocess(raw, o.policy.ReplaceRules)

	id, err := o.history.Append(ctx, &store.Turn{
		ConversationID: req.ConversationID,
		BotID:          bot.ID,
		Question:       req.Question,
		Answer:         clean,
	})
	if err != nil {
		return nil, err
	}

	if stripped || o.excluded(clean) {
		if err := o.history.SoftDelete(ctx, id); err != nil {
			o.logger.Warn("failed to soft delete excluded answer", "turn", id, "error", err)
		}
	}

	return &Result{Answer: appendSceneSuffix(clean, scene), HistoryID: id, Scene: scene}, nil
}

// excluded reports whether the answer matches the content exclusion list.
func (o *Orchestrator) excluded(answer string) bool {
	for _, frag := range o.policy.HistoryExclude {
		if frag != "" && strings.Contains(answer, frag) {
			return true
		}
	}
	return false
}

// cannedAnswer extracts a usable prepared answer from a match's metadata.
// Placeholder values left by upstream spreadsheet exports ("nan", "None")
// do not count.
func cannedAnswer(m vector.Match) (answer, scene string, ok bool) {
	answer = m.Document.Metadata["answer"]
	scene = m.Document.Metadata["scene"]
	if answer == "" || answer == "nan" || answer == "None" {
		return "", "", false
	}
	if scene == "nan" || scene == "None" {
		scene = ""
	}
	return answer, scene, true
}
