package synthesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resourceburglar/localqa/internal/errcode"
)

func TestNewTemplate_UndeclaredPlaceholder(t *testing.T) {
	t.Parallel()

	_, err := NewTemplate("answer {question} using {context}", "question")
	require.Error(t, err)
	assert.ErrorIs(t, err, errcode.ErrPromptConfig)
}

func TestTemplate_Render(t *testing.T) {
	t.Parallel()

	tmpl, err := NewTemplate("Q: {question}\nC: {context}", "question,context")
	require.NoError(t, err)

	out, err := tmpl.Render(map[string]string{
		"question": "why?",
		"context":  "because",
	})
	require.NoError(t, err)
	assert.Equal(t, "Q: why?\nC: because", out)
}

func TestTemplate_RenderMissingValue(t *testing.T) {
	t.Parallel()

	tmpl := MustTemplate("{question}", "question,context")

	_, err := tmpl.Render(map[string]string{"question": "q"})
	assert.ErrorIs(t, err, errcode.ErrPromptConfig)
}

func TestTemplate_RenderExtraValue(t *testing.T) {
	t.Parallel()

	tmpl := MustTemplate("{question}", "question")

	_, err := tmpl.Render(map[string]string{"question": "q", "context": "c"})
	assert.ErrorIs(t, err, errcode.ErrPromptConfig)
}

func TestTemplate_DeclaredVarsWithSpaces(t *testing.T) {
	t.Parallel()

	tmpl, err := NewTemplate("{a} {b}", " a , b ")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tmpl.Vars())
}

func TestDefaultTemplatesParse(t *testing.T) {
	t.Parallel()

	// The package-level defaults must stay internally consistent.
	assert.True(t, DefaultStuffTemplate.Has("context"))
	assert.True(t, DefaultStuffTemplate.Has("question"))
	assert.True(t, DefaultRefineTemplate.Has("existing_answer"))
}

func TestTrimToTokens(t *testing.T) {
	t.Parallel()

	out, err := trimToTokens("short text", 100)
	require.NoError(t, err)
	assert.Equal(t, "short text", out)

	// Disabled budget returns input unchanged.
	out, err = trimToTokens("anything", 0)
	require.NoError(t, err)
	assert.Equal(t, "anything", out)
}
