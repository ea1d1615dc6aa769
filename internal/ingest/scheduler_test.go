package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resourceburglar/localqa/internal/log"
	"github.com/resourceburglar/localqa/internal/store"
)

const (
	testRetryLimit = 3
	testFetchLimit = 5
)

func newTestScheduler(svc *Service) *Scheduler {
	return NewScheduler(svc, 0, testRetryLimit, testFetchLimit, log.NewNop())
}

func queuePending(t *testing.T, q *fakeQueue, content string) int64 {
	t.Helper()
	f, err := q.Create(context.Background(), testFile(content))
	require.NoError(t, err)
	return f.ID
}

func TestRunOnce_IngestsPendingFile(t *testing.T) {
	t.Parallel()

	svc, q, _ := newTestService()
	id := queuePending(t, q, "abcdefghij")

	newTestScheduler(svc).runOnce(context.Background())

	f := q.files[id]
	assert.Equal(t, store.FileStateDone, f.State)
	assert.NotEmpty(t, f.VectorIDs)
}

func TestRunOnce_FailureIncrementsRetryAndClearsIDs(t *testing.T) {
	t.Parallel()

	svc, q, x := newTestService()
	id := queuePending(t, q, "abcdefghij")
	q.files[id].VectorIDs = []string{"stale"}
	x.failInsert = true

	newTestScheduler(svc).runOnce(context.Background())

	f := q.files[id]
	assert.Equal(t, store.FileStateFailed, f.State)
	assert.Equal(t, 1, f.RetryCount)
	assert.Empty(t, f.VectorIDs)
}

func TestRunOnce_RetryBoundStopsSelection(t *testing.T) {
	t.Parallel()

	svc, q, x := newTestService()
	id := queuePending(t, q, "abcdefghij")
	q.files[id].RetryCount = testRetryLimit - 1
	x.failInsert = true

	sched := newTestScheduler(svc)
	sched.runOnce(context.Background())
	assert.Equal(t, testRetryLimit, q.files[id].RetryCount)

	// At the bound the file no longer matches the fetch predicate; further
	// ticks leave it untouched.
	sched.runOnce(context.Background())
	assert.Equal(t, testRetryLimit, q.files[id].RetryCount)
	assert.Equal(t, store.FileStateFailed, q.files[id].State)
}

func TestRunOnce_SuccessDoesNotResetRetryCount(t *testing.T) {
	t.Parallel()

	svc, q, _ := newTestService()
	id := queuePending(t, q, "abcdefghij")
	q.files[id].RetryCount = 2
	q.files[id].State = store.FileStateFailed

	newTestScheduler(svc).runOnce(context.Background())

	f := q.files[id]
	assert.Equal(t, store.FileStateDone, f.State)
	assert.Equal(t, 2, f.RetryCount, "retry count is a lifetime counter")
	assert.NotEmpty(t, f.VectorIDs)
}

func TestRunOnce_OneBadFileDoesNotStallBatch(t *testing.T) {
	t.Parallel()

	svc, q, _ := newTestService()
	badID := queuePending(t, q, "ab") // chunks fine
	q.files[badID].Content = ""       // but vectorize will reject it
	goodID := queuePending(t, q, "abcdefghij")

	newTestScheduler(svc).runOnce(context.Background())

	assert.Equal(t, store.FileStateFailed, q.files[badID].State)
	assert.Equal(t, store.FileStateDone, q.files[goodID].State)
}

func TestRunOnce_RespectsFetchLimit(t *testing.T) {
	t.Parallel()

	svc, q, _ := newTestService()
	for range testFetchLimit + 2 {
		queuePending(t, q, "abcdefghij")
	}

	newTestScheduler(svc).runOnce(context.Background())

	var done int
	for _, f := range q.files {
		if f.State == store.FileStateDone {
			done++
		}
	}
	assert.Equal(t, testFetchLimit, done)
}
