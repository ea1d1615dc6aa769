package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for range 100 {
		id := newID()
		assert.Len(t, id, 32)
		assert.NotContains(t, id, "-")
		for _, c := range id {
			isHex := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
			assert.True(t, isHex, "unexpected character %q in id %s", c, id)
		}
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

// widthEmbedder returns a zero vector of a fixed width.
type widthEmbedder struct{ width int }

func (e widthEmbedder) Embed(context.Context, string) ([]float32, error) {
	return make([]float32, e.width), nil
}

type scanRow struct{ vals []string }

func (r scanRow) Scan(dest ...any) error {
	for i, d := range dest {
		*(d.(*string)) = r.vals[i]
	}
	return nil
}

// collectionDB answers the ensure-collection query and counts statements.
type collectionDB struct {
	execs int
}

func (db *collectionDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	db.execs++
	return pgconn.CommandTag{}, nil
}

func (db *collectionDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not expected")
}

func (db *collectionDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return scanRow{vals: []string{"3d5c9f4e-0000-0000-0000-000000000000"}}
}

func TestEmbed_RejectsWrongWidth(t *testing.T) {
	t.Parallel()

	p := NewPostgresIndex(&collectionDB{}, widthEmbedder{width: 3072}, nil)
	_, err := p.embed(context.Background(), "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Contains(t, err.Error(), "3072")

	p = NewPostgresIndex(&collectionDB{}, widthEmbedder{width: Dimension}, nil)
	emb, err := p.embed(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, emb, Dimension)
}

func TestInsert_AbortsOnDimensionMismatch(t *testing.T) {
	t.Parallel()

	db := &collectionDB{}
	p := NewPostgresIndex(db, widthEmbedder{width: 1536}, nil)

	ids, err := p.Insert(context.Background(), "docs", []Document{
		{Content: "a"}, {Content: "b"},
	})
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Empty(t, ids, "no chunk may be stored with the wrong width")
	assert.Zero(t, db.execs, "nothing should reach the database")
}
