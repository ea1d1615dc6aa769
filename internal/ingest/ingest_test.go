package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resourceburglar/localqa/internal/errcode"
	"github.com/resourceburglar/localqa/internal/log"
	"github.com/resourceburglar/localqa/internal/store"
	"github.com/resourceburglar/localqa/internal/vector"
)

// fakeQueue is an in-memory FileQueue.
type fakeQueue struct {
	nextID int64
	files  map[int64]*store.NamespaceFile
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{files: map[int64]*store.NamespaceFile{}}
}

func (q *fakeQueue) Create(_ context.Context, f *store.NamespaceFile) (*store.NamespaceFile, error) {
	q.nextID++
	cp := *f
	cp.ID = q.nextID
	cp.State = store.FileStatePending
	q.files[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (q *fakeQueue) Get(_ context.Context, id int64) (*store.NamespaceFile, error) {
	f, ok := q.files[id]
	if !ok || f.Deleted {
		return nil, store.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (q *fakeQueue) ListReconcilable(_ context.Context, retryLimit, limit int) ([]store.NamespaceFile, error) {
	var out []store.NamespaceFile
	for _, f := range q.files {
		if f.State != store.FileStateDone && f.RetryCount < retryLimit && !f.Deleted {
			out = append(out, *f)
		}
	}
	// Newest first; the fake uses descending id as a proxy for created_at.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *fakeQueue) MarkDone(_ context.Context, id int64, vectorIDs []string) error {
	f, ok := q.files[id]
	if !ok {
		return store.ErrNotFound
	}
	f.State = store.FileStateDone
	f.VectorIDs = vectorIDs
	return nil
}

func (q *fakeQueue) MarkFailed(_ context.Context, id int64) error {
	f, ok := q.files[id]
	if !ok {
		return store.ErrNotFound
	}
	f.State = store.FileStateFailed
	f.VectorIDs = nil
	f.RetryCount++
	return nil
}

func (q *fakeQueue) Delete(_ context.Context, id int64) error {
	f, ok := q.files[id]
	if !ok || f.Deleted {
		return store.ErrNotFound
	}
	f.Deleted = true
	f.VectorIDs = nil
	return nil
}

func (q *fakeQueue) RemoveVectorIDs(_ context.Context, namespace string, ids []string) error {
	drop := map[string]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	for _, f := range q.files {
		if f.Namespace != namespace || f.Deleted {
			continue
		}
		var kept []string
		for _, v := range f.VectorIDs {
			if !drop[v] {
				kept = append(kept, v)
			}
		}
		f.VectorIDs = kept
		if f.State == store.FileStateDone && len(kept) == 0 {
			f.Deleted = true
		}
	}
	return nil
}

func (q *fakeQueue) DeleteByNamespace(_ context.Context, namespace string) error {
	for _, f := range q.files {
		if f.Namespace == namespace {
			f.Deleted = true
			f.VectorIDs = nil
		}
	}
	return nil
}

// fakeNamespaces recognizes a fixed set of namespace names.
type fakeNamespaces struct{ known map[string]bool }

func (n *fakeNamespaces) GetByName(_ context.Context, name string) (*store.Namespace, error) {
	if !n.known[name] {
		return nil, store.ErrNotFound
	}
	return &store.Namespace{Name: name}, nil
}

// fakeIndex records inserts and can be scripted to fail.
type fakeIndex struct {
	inserts    map[string][]vector.Document
	nextID     int
	failInsert bool
	deleted    []string
	deletedAll []string
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{inserts: map[string][]vector.Document{}}
}

func (x *fakeIndex) Insert(_ context.Context, namespace string, docs []vector.Document) ([]string, error) {
	if x.failInsert {
		return nil, errors.New("pgvector down")
	}
	x.inserts[namespace] = append(x.inserts[namespace], docs...)
	ids := make([]string, len(docs))
	for i := range docs {
		x.nextID++
		ids[i] = fmt.Sprintf("vec-%d", x.nextID)
	}
	return ids, nil
}

func (x *fakeIndex) Search(context.Context, string, string, int) ([]vector.Match, error) {
	return nil, nil
}

func (x *fakeIndex) Delete(_ context.Context, _ string, ids []string) error {
	x.deleted = append(x.deleted, ids...)
	return nil
}

func (x *fakeIndex) DeleteAll(_ context.Context, namespace string) error {
	x.deletedAll = append(x.deletedAll, namespace)
	return nil
}

func (x *fakeIndex) Lookup(context.Context, string, []string) ([]vector.Match, error) {
	return nil, nil
}

func newTestService() (*Service, *fakeQueue, *fakeIndex) {
	q := newFakeQueue()
	x := newFakeIndex()
	svc := NewService(q, &fakeNamespaces{known: map[string]bool{"docs": true}}, x, log.NewNop())
	return svc, q, x
}

func testFile(content string) *store.NamespaceFile {
	return &store.NamespaceFile{
		Namespace:    "docs",
		FileName:     "guide.txt",
		Content:      content,
		ChunkSize:    4,
		ChunkOverlap: 2,
	}
}

func TestUpload_Success(t *testing.T) {
	t.Parallel()

	svc, q, x := newTestService()

	stored, ids, err := svc.Upload(context.Background(), testFile("abcdefghij"))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotEmpty(t, ids)

	f := q.files[stored.ID]
	assert.Equal(t, store.FileStateDone, f.State)
	assert.Equal(t, ids, f.VectorIDs)
	assert.Len(t, x.inserts["docs"], len(ids))
}

func TestUpload_EmptyContent(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService()

	_, _, err := svc.Upload(context.Background(), testFile("   "))
	assert.ErrorIs(t, err, errcode.ErrIngestInput)
}

func TestUpload_UnknownNamespace(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService()

	f := testFile("content")
	f.Namespace = "missing"
	_, _, err := svc.Upload(context.Background(), f)
	assert.ErrorIs(t, err, errcode.ErrNamespaceNotFound)
}

func TestUpload_InsertFailureMarksFailed(t *testing.T) {
	t.Parallel()

	svc, q, x := newTestService()
	x.failInsert = true

	stored, _, err := svc.Upload(context.Background(), testFile("abcdefghij"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errcode.ErrVectorInsert)

	f := q.files[stored.ID]
	assert.Equal(t, store.FileStateFailed, f.State)
	assert.Equal(t, 1, f.RetryCount)
	assert.Empty(t, f.VectorIDs)
}

func TestVectorize_ChunkMetadata(t *testing.T) {
	t.Parallel()

	svc, _, x := newTestService()

	f := testFile("abcdefghij")
	f.ID = 42
	ids, err := svc.Vectorize(context.Background(), f)
	require.NoError(t, err)
	assert.Len(t, ids, 4) // size 4 overlap 2 over 10 chars

	for _, doc := range x.inserts["docs"] {
		assert.Equal(t, "guide.txt", doc.Metadata["source"])
		assert.Equal(t, "42", doc.Metadata["file_id"])
	}
}

func TestDeleteVectors(t *testing.T) {
	t.Parallel()

	svc, q, x := newTestService()
	q.files[1] = &store.NamespaceFile{ID: 1, Namespace: "docs", State: store.FileStateDone, VectorIDs: []string{"a", "b", "c"}}
	q.nextID = 1

	require.NoError(t, svc.DeleteVectors(context.Background(), "docs", []string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, x.deleted)
	assert.Equal(t, []string{"c"}, q.files[1].VectorIDs, "recorded ids shrink with the deletion")

	require.NoError(t, svc.DeleteVectors(context.Background(), "docs", nil))
	assert.Equal(t, []string{"docs"}, x.deletedAll)
	assert.True(t, q.files[1].Deleted, "dropping the collection retires its files")

	err := svc.DeleteVectors(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, errcode.ErrNamespaceNotFound)
}

func TestDeleteVectors_RetiresEmptiedFiles(t *testing.T) {
	t.Parallel()

	svc, q, _ := newTestService()
	q.files[1] = &store.NamespaceFile{ID: 1, Namespace: "docs", State: store.FileStateDone, VectorIDs: []string{"a", "b"}}
	q.nextID = 1

	require.NoError(t, svc.DeleteVectors(context.Background(), "docs", []string{"a", "b"}))
	assert.True(t, q.files[1].Deleted, "a file with no vectors left is retired")
}

func TestDeleteFile(t *testing.T) {
	t.Parallel()

	svc, q, x := newTestService()

	stored, ids, err := svc.Upload(context.Background(), testFile("abcdefghij"))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteFile(context.Background(), stored.ID))
	assert.Equal(t, ids, x.deleted, "the file's vectors go first")
	assert.True(t, q.files[stored.ID].Deleted)

	err = svc.DeleteFile(context.Background(), stored.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
