package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resourceburglar/localqa/internal/llm"
	"github.com/resourceburglar/localqa/internal/store"
)

func turns(names ...string) []store.Turn {
	out := make([]store.Turn, len(names))
	for i, n := range names {
		out[i] = store.Turn{Question: "q-" + n, Answer: "a-" + n}
	}
	return out
}

func TestBuild_ReversesToChronological(t *testing.T) {
	t.Parallel()

	// Fetched most-recent-first: turn3, turn2, turn1.
	history := turns("3", "2", "1")

	msgs := Build(history, 2)
	require.Len(t, msgs, 4)

	// turn1 is dropped; turn2 then turn3 in chronological order.
	assert.Equal(t, "q-2", msgs[0].Content)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.Equal(t, "a-2", msgs[1].Content)
	assert.Equal(t, llm.RoleModel, msgs[1].Role)
	assert.Equal(t, "q-3", msgs[2].Content)
	assert.Equal(t, "a-3", msgs[3].Content)
}

func TestBuild_FewerTurnsThanWindow(t *testing.T) {
	t.Parallel()

	msgs := Build(turns("1"), 5)
	require.Len(t, msgs, 2)
	assert.Equal(t, "q-1", msgs[0].Content)
}

func TestBuild_ZeroWindowDisablesMemory(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Build(turns("1", "2"), 0))
}

func TestBuild_EmptyHistory(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Build(nil, 3))
}

func TestTranscript(t *testing.T) {
	t.Parallel()

	msgs := []llm.Message{
		{Role: llm.RoleUser, Content: "hello"},
		{Role: llm.RoleModel, Content: "hi there"},
	}
	assert.Equal(t, "Human: hello\nAI: hi there\n", Transcript(msgs))
}
