package answer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resourceburglar/localqa/internal/config"
	"github.com/resourceburglar/localqa/internal/errcode"
	"github.com/resourceburglar/localqa/internal/llm"
	"github.com/resourceburglar/localqa/internal/log"
	"github.com/resourceburglar/localqa/internal/meeting"
	"github.com/resourceburglar/localqa/internal/store"
	"github.com/resourceburglar/localqa/internal/synthesis"
	"github.com/resourceburglar/localqa/internal/vector"
)

type fakeBots struct{ bots map[int64]*store.Bot }

func (f *fakeBots) Get(_ context.Context, id int64) (*store.Bot, error) {
	b, ok := f.bots[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

type fakeNamespaces struct{ known map[string]*store.Namespace }

func (f *fakeNamespaces) GetByName(_ context.Context, name string) (*store.Namespace, error) {
	ns, ok := f.known[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return ns, nil
}

type fakeHistory struct {
	turns       []store.Turn
	appended    []*store.Turn
	softDeleted []int64
	nextID      int64
}

func (f *fakeHistory) Append(_ context.Context, t *store.Turn) (int64, error) {
	f.nextID++
	f.appended = append(f.appended, t)
	return f.nextID, nil
}

func (f *fakeHistory) Recent(_ context.Context, _ string, _ int64, limit int, _ bool) ([]store.Turn, error) {
	if len(f.turns) > limit {
		return f.turns[:limit], nil
	}
	return f.turns, nil
}

func (f *fakeHistory) SoftDelete(_ context.Context, id int64) error {
	f.softDeleted = append(f.softDeleted, id)
	return nil
}

type fakeRetriever struct {
	matches []vector.Match
	err     error
}

func (f *fakeRetriever) Retrieve(context.Context, string, string, int, float64) ([]vector.Match, error) {
	return f.matches, f.err
}

type fakeEngine struct {
	calls []synthesis.Request
}

func (f *fakeEngine) Synthesize(_ context.Context, req synthesis.Request) (string, error) {
	f.calls = append(f.calls, req)
	return "synthesized answer", nil
}

type fakeCompleter struct {
	calls []llm.CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	f.calls = append(f.calls, req)
	return "public answer", nil
}

type fixture struct {
	orch       *Orchestrator
	bots       *fakeBots
	namespaces *fakeNamespaces
	history    *fakeHistory
	retriever  *fakeRetriever
	engine     *fakeEngine
	completer  *fakeCompleter
	cfg        *config.Config
}

func newFixture() *fixture {
	cfg := &config.Config{
		TopK:           config.DefaultTopK,
		ScoreThreshold: config.DefaultScoreThreshold,
		MaxTurns:       config.DefaultMaxTurns,
		Policy: config.PolicyConfig{
			PreparedAnswer: true,
			PublicFallback: true,
		},
	}
	f := &fixture{
		bots: &fakeBots{bots: map[int64]*store.Bot{
			1: {ID: 1, Name: "support", UseType: store.UseTypePrivate, Namespace: "docs", MaxTurns: 2},
			2: {ID: 2, Name: "open", UseType: store.UseTypePublic, MaxTurns: 2},
		}},
		namespaces: &fakeNamespaces{known: map[string]*store.Namespace{
			"docs": {Name: "docs", Kind: store.NamespaceQAPrepared},
		}},
		history:   &fakeHistory{},
		retriever: &fakeRetriever{},
		engine:    &fakeEngine{},
		completer: &fakeCompleter{},
		cfg:       cfg,
	}
	f.orch = New(f.bots, f.namespaces,
		f.history, f.retriever, f.engine, f.completer, cfg, log.NewNop())
	return f
}

func ask(t *testing.T, f *fixture) *Result {
	t.Helper()
	res, err := f.orch.Ask(context.Background(), Request{BotID: 1, Question: "how do I reset?", ConversationID: "c1"})
	require.NoError(t, err)
	return res
}

func TestAsk_BotNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture()
	_, err := f.orch.Ask(context.Background(), Request{BotID: 99, Question: "q"})
	assert.ErrorIs(t, err, errcode.ErrBotNotFound)
}

func TestAsk_UseTypeMismatch(t *testing.T) {
	t.Parallel()

	f := newFixture()
	_, err := f.orch.Ask(context.Background(), Request{BotID: 2, Question: "q"})
	assert.ErrorIs(t, err, errcode.ErrBotUseType)

	_, err = f.orch.AskPublic(context.Background(), Request{BotID: 1, Question: "q"})
	assert.ErrorIs(t, err, errcode.ErrBotUseType)
}

func TestAsk_NamespaceNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.bots.bots[1].Namespace = "gone"
	_, err := f.orch.Ask(context.Background(), Request{BotID: 1, Question: "q"})
	assert.ErrorIs(t, err, errcode.ErrNamespaceNotFound)
}

func TestAsk_SynthesizesConfidentMatches(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.retriever.matches = []vector.Match{
		{ID: "a", Document: vector.Document{Content: "passage one"}, Score: 0.1},
		{ID: "b", Document: vector.Document{Content: "passage two"}, Score: 0.2},
	}

	res := ask(t, f)
	assert.Equal(t, "synthesized answer", res.Answer)
	require.Len(t, f.engine.calls, 1)
	assert.Equal(t, []string{"passage one", "passage two"}, f.engine.calls[0].Documents)
	assert.Empty(t, f.completer.calls)

	// Exchange is persisted.
	require.Len(t, f.history.appended, 1)
	assert.Equal(t, "how do I reset?", f.history.appended[0].Question)
}

func TestAsk_CannedAnswerSkipsSynthesis(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.retriever.matches = []vector.Match{{
		ID:    "a",
		Score: 0.0,
		Document: vector.Document{
			Content:  "how do I reset?",
			Metadata: map[string]string{"answer": "press the red button", "scene": "reset_request"},
		},
	}}

	res := ask(t, f)
	assert.Equal(t, "press the red button"+sceneSuffix, res.Answer)
	assert.Equal(t, "reset_request", res.Scene)
	assert.Empty(t, f.engine.calls)
	assert.Empty(t, f.completer.calls)
}

func TestAsk_SceneSuffixNotPersisted(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.retriever.matches = []vector.Match{{
		ID:    "a",
		Score: 0.0,
		Document: vector.Document{
			Content:  "how do I reset?",
			Metadata: map[string]string{"answer": "press the red button", "scene": "reset_request"},
		},
	}}

	res := ask(t, f)
	assert.Equal(t, "press the red button"+sceneSuffix, res.Answer)

	// The stored turn carries the clean answer so the confirmation prompt
	// never replays as conversational memory.
	require.Len(t, f.history.appended, 1)
	assert.Equal(t, "press the red button", f.history.appended[0].Answer)
}

func TestAsk_CannedAnswerPlaceholdersIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.retriever.matches = []vector.Match{{
		ID:    "a",
		Score: 0.0,
		Document: vector.Document{
			Content:  "q",
			Metadata: map[string]string{"answer": "nan", "scene": "None"},
		},
	}}

	ask(t, f)
	assert.Len(t, f.engine.calls, 1, "placeholder canned answer must not short-circuit")
}

func TestAsk_CannedAnswerIgnoresPreparedToggle(t *testing.T) {
	t.Parallel()

	// The scene path is unconditional within a Q&A-prepared namespace; the
	// PreparedAnswer policy only governs the scene-less variant.
	f := newFixture()
	f.cfg.Policy.PreparedAnswer = false
	f.retriever.matches = []vector.Match{{
		ID:    "a",
		Score: 0.0,
		Document: vector.Document{
			Content:  "how do I reset?",
			Metadata: map[string]string{"answer": "press the red button", "scene": "reset_request"},
		},
	}}

	res := ask(t, f)
	assert.Equal(t, "press the red button"+sceneSuffix, res.Answer)
	assert.Equal(t, "reset_request", res.Scene)
	assert.Empty(t, f.engine.calls)
}

func TestAsk_CannedAnswerRequiresQAPreparedNamespace(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.namespaces.known["docs"].Kind = store.NamespacePermanent
	f.retriever.matches = []vector.Match{{
		ID:    "a",
		Score: 0.0,
		Document: vector.Document{
			Content:  "how do I reset?",
			Metadata: map[string]string{"answer": "press the red button", "scene": "reset_request"},
		},
	}}

	res := ask(t, f)
	assert.Equal(t, "synthesized answer", res.Answer)
	assert.Len(t, f.engine.calls, 1, "ordinary namespaces always synthesize")
}

func TestAsk_PreparedToggleGatesSceneLessAnswer(t *testing.T) {
	t.Parallel()

	match := vector.Match{
		ID:    "a",
		Score: 0.0,
		Document: vector.Document{
			Content:  "how do I reset?",
			Metadata: map[string]string{"answer": "press the red button"},
		},
	}

	f := newFixture()
	f.retriever.matches = []vector.Match{match}
	res := ask(t, f)
	assert.Equal(t, "press the red button", res.Answer)
	assert.Empty(t, res.Scene)
	assert.Empty(t, f.engine.calls)

	f = newFixture()
	f.cfg.Policy.PreparedAnswer = false
	f.orch = New(f.bots, f.namespaces,
		f.history, f.retriever, f.engine, f.completer, f.cfg, log.NewNop())
	f.retriever.matches = []vector.Match{match}
	res = ask(t, f)
	assert.Equal(t, "synthesized answer", res.Answer)
	assert.Len(t, f.engine.calls, 1)
}

func TestAsk_PublicFallbackOnNoMatch(t *testing.T) {
	t.Parallel()

	f := newFixture()

	res := ask(t, f)
	assert.Equal(t, "public answer", res.Answer)
	assert.Empty(t, f.engine.calls)
	require.Len(t, f.completer.calls, 1)
	assert.Equal(t, DefaultPublicSystem, f.completer.calls[0].System)
}

func TestAsk_FallbackDisabledSynthesizesEmptyContext(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.cfg.Policy.PublicFallback = false
	f.orch = New(f.bots, f.namespaces,
		f.history, f.retriever, f.engine, f.completer, f.cfg, log.NewNop())

	ask(t, f)
	require.Len(t, f.engine.calls, 1)
	assert.Empty(t, f.engine.calls[0].Documents)
	assert.Empty(t, f.completer.calls)
}

func TestAsk_SlaveDispatch(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.bots.bots[1].SlaveBotMark = "vacation:3"
	f.bots.bots[3] = &store.Bot{ID: 3, UseType: store.UseTypePrivate, Namespace: "docs", ChainType: store.ChainRefine}
	f.retriever.matches = []vector.Match{{Document: vector.Document{Content: "policy doc"}, Score: 0.1}}

	_, err := f.orch.Ask(context.Background(), Request{BotID: 1, Question: "how much vacation do I get?"})
	require.NoError(t, err)

	require.Len(t, f.engine.calls, 1)
	assert.Equal(t, store.ChainRefine, f.engine.calls[0].Strategy)
	require.Len(t, f.history.appended, 1)
	assert.Equal(t, int64(3), f.history.appended[0].BotID, "turn persists under the slave bot")
}

func TestAsk_ExclusionSoftDeletes(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.cfg.Policy.HistoryExclude = []string{"synthesized"}
	f.orch = New(f.bots, f.namespaces,
		f.history, f.retriever, f.engine, f.completer, f.cfg, log.NewNop())
	f.retriever.matches = []vector.Match{{Document: vector.Document{Content: "d"}, Score: 0.1}}

	res := ask(t, f)
	// Stored, then soft-deleted.
	require.Len(t, f.history.appended, 1)
	assert.Equal(t, []int64{res.HistoryID}, f.history.softDeleted)
}

func TestAsk_MemoryFlowsIntoSynthesis(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.history.turns = []store.Turn{
		{Question: "newer q", Answer: "newer a"},
		{Question: "older q", Answer: "older a"},
	}
	f.retriever.matches = []vector.Match{{Document: vector.Document{Content: "d"}, Score: 0.1}}

	ask(t, f)
	require.Len(t, f.engine.calls, 1)
	msgs := f.engine.calls[0].History
	require.Len(t, msgs, 4)
	// Chronological order: older first.
	assert.Equal(t, "older q", msgs[0].Content)
	assert.Equal(t, "newer a", msgs[3].Content)
}

type fakeMeeting struct{ outcome *meeting.Outcome }

func (f *fakeMeeting) Handles(q string) bool { return strings.Contains(q, "会议室") }

func (f *fakeMeeting) Respond(context.Context, string, string) (*meeting.Outcome, error) {
	return f.outcome, nil
}

func TestAskPublic_MeetingDialogue(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.orch.WithMeeting(&fakeMeeting{outcome: &meeting.Outcome{Answer: "请补充预订日期", Scene: "meeting_room"}})

	res, err := f.orch.AskPublic(context.Background(), Request{BotID: 2, Question: "帮我订会议室", ConversationID: "c3"})
	require.NoError(t, err)
	assert.Equal(t, "请补充预订日期", res.Answer)
	assert.Equal(t, "meeting_room", res.Scene)
	assert.Empty(t, f.completer.calls, "meeting turns bypass the chat model")
	assert.Empty(t, f.history.appended, "meeting turns are not chat history")

	// Non-meeting questions still take the normal path.
	_, err = f.orch.AskPublic(context.Background(), Request{BotID: 2, Question: "hello"})
	require.NoError(t, err)
	assert.Len(t, f.completer.calls, 1)
}

type strippingCompleter struct{ fakeCompleter }

func (s *strippingCompleter) CompleteWithFallback(ctx context.Context, req llm.CompletionRequest) (string, bool, error) {
	text, err := s.Complete(ctx, req)
	return text, true, err
}

func TestAskPublic_StrippedRetrySoftDeletes(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.orch.completer = &strippingCompleter{}

	res, err := f.orch.AskPublic(context.Background(), Request{BotID: 2, Question: "hello", ConversationID: "c2"})
	require.NoError(t, err)
	assert.Equal(t, "public answer", res.Answer)
	require.Len(t, f.history.appended, 1)
	assert.Equal(t, []int64{res.HistoryID}, f.history.softDeleted,
		"answers from a history-stripped retry must not replay as memory")
}

func TestAskOnce_WithNamespace(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.retriever.matches = []vector.Match{
		{ID: "a", Document: vector.Document{Content: "passage one"}, Score: 0.1},
	}

	ans, err := f.orch.AskOnce(context.Background(), "what is it?", "docs")
	require.NoError(t, err)
	assert.Equal(t, "synthesized answer", ans)
	require.Len(t, f.engine.calls, 1)
	assert.Equal(t, []string{"passage one"}, f.engine.calls[0].Documents)
	assert.Empty(t, f.history.appended, "one-shot answers are not persisted")

	_, err = f.orch.AskOnce(context.Background(), "q", "gone")
	assert.ErrorIs(t, err, errcode.ErrNamespaceNotFound)
}

func TestAskOnce_WithoutNamespace(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ans, err := f.orch.AskOnce(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "public answer", ans)
	assert.Len(t, f.completer.calls, 1)
	assert.Empty(t, f.engine.calls)
	assert.Empty(t, f.history.appended)
}

func TestAskPublic(t *testing.T) {
	t.Parallel()

	f := newFixture()
	res, err := f.orch.AskPublic(context.Background(), Request{BotID: 2, Question: "hello", ConversationID: "c2"})
	require.NoError(t, err)
	assert.Equal(t, "public answer", res.Answer)
	require.Len(t, f.completer.calls, 1)
	assert.Equal(t, DefaultPublicSystem, f.completer.calls[0].System)
	assert.Len(t, f.history.appended, 1)
}

func TestAskPublic_BotPromptFramesConversation(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.bots.bots[2].PromptTemplate = "You are the company receptionist."

	_, err := f.orch.AskPublic(context.Background(), Request{BotID: 2, Question: "hello"})
	require.NoError(t, err)
	require.Len(t, f.completer.calls, 1)
	assert.Equal(t, "You are the company receptionist.", f.completer.calls[0].System)
}

func TestAskPublic_SuffixPromptAppendedToSystem(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.bots.bots[2].PromptTemplate = "You are the company receptionist."
	f.bots.bots[2].SuffixPrompt = "Always answer in English."

	_, err := f.orch.AskPublic(context.Background(), Request{BotID: 2, Question: "hello"})
	require.NoError(t, err)
	require.Len(t, f.completer.calls, 1)
	assert.Equal(t, "You are the company receptionist.\n\nAlways answer in English.",
		f.completer.calls[0].System)
}

func TestAsk_PrefixPromptDrivesRefine(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.bots.bots[1].ChainType = store.ChainRefine
	f.bots.bots[1].PrefixPrompt = "Revise: {existing_answer} with {context} for {question}"
	f.bots.bots[1].PrefixVars = "existing_answer,context,question"
	f.retriever.matches = []vector.Match{{Document: vector.Document{Content: "d"}, Score: 0.1}}

	ask(t, f)
	require.Len(t, f.engine.calls, 1)
	require.NotNil(t, f.engine.calls[0].RefinePrompt)

	rendered, err := f.engine.calls[0].RefinePrompt.Render(map[string]string{
		"existing_answer": "draft",
		"context":         "doc",
		"question":        "q",
	})
	require.NoError(t, err)
	assert.Equal(t, "Revise: draft with doc for q", rendered)
}

func TestAsk_MalformedPrefixPromptFails(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.bots.bots[1].PrefixPrompt = "Revise {undeclared}"
	f.bots.bots[1].PrefixVars = "question"
	f.retriever.matches = []vector.Match{{Document: vector.Document{Content: "d"}, Score: 0.1}}

	_, err := f.orch.Ask(context.Background(), Request{BotID: 1, Question: "q"})
	assert.Error(t, err)
}
