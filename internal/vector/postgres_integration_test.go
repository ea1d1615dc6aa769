//go:build integration

package vector_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/resourceburglar/localqa/internal/log"
	"github.com/resourceburglar/localqa/internal/testutil"
	"github.com/resourceburglar/localqa/internal/vector"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func newIndex(t *testing.T) (*vector.PostgresIndex, func()) {
	t.Helper()
	db, cleanup := testutil.SetupTestDB(t)
	return vector.NewPostgresIndex(db.Pool, testutil.HashEmbedder{}, log.NewNop()), cleanup
}

func TestPostgresIndex_InsertAndSearch(t *testing.T) {
	idx, cleanup := newIndex(t)
	defer cleanup()
	ctx := context.Background()

	ids, err := idx.Insert(ctx, "docs", []vector.Document{
		{Content: "how to reset a password", Metadata: map[string]string{"source": "faq.txt"}},
		{Content: "office opening hours"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	for _, id := range ids {
		assert.Len(t, id, 32)
	}

	// Identical text embeds identically, so the match scores 0 distance.
	matches, err := idx.Search(ctx, "docs", "how to reset a password", 2)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "how to reset a password", matches[0].Document.Content)
	assert.InDelta(t, 0.0, matches[0].Score, 1e-6)
	assert.Equal(t, "faq.txt", matches[0].Document.Metadata["source"])
}

func TestPostgresIndex_SearchUnknownNamespace(t *testing.T) {
	idx, cleanup := newIndex(t)
	defer cleanup()

	matches, err := idx.Search(context.Background(), "missing", "anything", 2)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestPostgresIndex_Lookup(t *testing.T) {
	idx, cleanup := newIndex(t)
	defer cleanup()
	ctx := context.Background()

	ids, err := idx.Insert(ctx, "docs", []vector.Document{{Content: "alpha"}, {Content: "beta"}})
	require.NoError(t, err)

	matches, err := idx.Lookup(ctx, "docs", ids[:1])
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "alpha", matches[0].Document.Content)
}

func TestPostgresIndex_DeleteByID(t *testing.T) {
	idx, cleanup := newIndex(t)
	defer cleanup()
	ctx := context.Background()

	ids, err := idx.Insert(ctx, "docs", []vector.Document{{Content: "alpha"}, {Content: "beta"}})
	require.NoError(t, err)

	require.NoError(t, idx.Delete(ctx, "docs", ids[:1]))

	remaining, err := idx.Lookup(ctx, "docs", ids)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "beta", remaining[0].Document.Content)
}

func TestPostgresIndex_DeleteAll(t *testing.T) {
	idx, cleanup := newIndex(t)
	defer cleanup()
	ctx := context.Background()

	ids, err := idx.Insert(ctx, "docs", []vector.Document{{Content: "alpha"}, {Content: "beta"}})
	require.NoError(t, err)

	require.NoError(t, idx.DeleteAll(ctx, "docs"))

	remaining, err := idx.Lookup(ctx, "docs", ids)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
