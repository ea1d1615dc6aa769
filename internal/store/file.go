package store

import (
	"context"
	"fmt"
	"time"
)

// Ingestion states for a queued namespace file.
const (
	// FileStatePending marks a file waiting for ingestion.
	FileStatePending int16 = 1

	// FileStateDone marks a fully ingested file.
	FileStateDone int16 = 2

	// FileStateFailed marks a file whose last ingestion attempt failed.
	// Failed files are retried until the retry bound is reached.
	FileStateFailed int16 = 3
)

// NamespaceFile is a document queued for ingestion into a namespace.
// VectorIDs records the embedding rows produced from this file so they can be
// removed when the file is deleted. Deletion is a soft delete; the row stays
// for audit but drops out of every read path.
type NamespaceFile struct {
	ID           int64
	Namespace    string
	FileName     string
	Content      string
	MediaType    string
	SizeBytes    int64
	State        int16
	RetryCount   int
	VectorIDs    []string
	ChunkSize    int
	ChunkOverlap int
	Deleted      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FileStore persists queued ingestion files.
type FileStore struct {
	db DB
}

// NewFileStore creates a file repository.
func NewFileStore(db DB) *FileStore {
	return &FileStore{db: db}
}

// Create queues a file for ingestion in pending state.
func (s *FileStore) Create(ctx context.Context, f *NamespaceFile) (*NamespaceFile, error) {
	const q = `
		INSERT INTO namespace_files (namespace, file_name, content, media_type, size_bytes, state, chunk_size, chunk_overlap)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	out := *f
	out.State = FileStatePending
	err := s.db.QueryRow(ctx, q,
		f.Namespace, f.FileName, f.Content, f.MediaType, f.SizeBytes,
		FileStatePending, f.ChunkSize, f.ChunkOverlap).
		Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create namespace file %q: %w", f.FileName, err)
	}
	return &out, nil
}

// Get returns a file by id. Returns ErrNotFound when absent or soft-deleted.
func (s *FileStore) Get(ctx context.Context, id int64) (*NamespaceFile, error) {
	const q = `
		SELECT id, namespace, file_name, content, media_type, size_bytes,
		       state, retry_count, vector_ids, chunk_size, chunk_overlap,
		       deleted, created_at, updated_at
		FROM namespace_files
		WHERE id = $1 AND NOT deleted`

	var f NamespaceFile
	err := s.db.QueryRow(ctx, q, id).Scan(
		&f.ID, &f.Namespace, &f.FileName, &f.Content, &f.MediaType, &f.SizeBytes,
		&f.State, &f.RetryCount, &f.VectorIDs, &f.ChunkSize, &f.ChunkOverlap,
		&f.Deleted, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, wrapNoRows(err)
	}
	return &f, nil
}

// ListReconcilable returns files the reconciliation scheduler should pick up:
// not done and still under the retry bound, newest first, capped at limit.
func (s *FileStore) ListReconcilable(ctx context.Context, retryLimit, limit int) ([]NamespaceFile, error) {
	const q = `
		SELECT id, namespace, file_name, content, media_type, size_bytes,
		       state, retry_count, vector_ids, chunk_size, chunk_overlap,
		       deleted, created_at, updated_at
		FROM namespace_files
		WHERE state != $1 AND retry_count < $2 AND NOT deleted
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := s.db.Query(ctx, q, FileStateDone, retryLimit, limit)
	if err != nil {
		return nil, fmt.Errorf("list reconcilable files: %w", err)
	}
	defer rows.Close()

	var out []NamespaceFile
	for rows.Next() {
		var f NamespaceFile
		if err := rows.Scan(
			&f.ID, &f.Namespace, &f.FileName, &f.Content, &f.MediaType, &f.SizeBytes,
			&f.State, &f.RetryCount, &f.VectorIDs, &f.ChunkSize, &f.ChunkOverlap,
			&f.Deleted, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan namespace file: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate namespace files: %w", err)
	}
	return out, nil
}

// MarkDone records a successful ingestion together with the produced vector ids.
// The retry counter is left as-is so operators can see how many attempts it took.
func (s *FileStore) MarkDone(ctx context.Context, id int64, vectorIDs []string) error {
	const q = `
		UPDATE namespace_files
		SET state = $2, vector_ids = $3, updated_at = now()
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, q, id, FileStateDone, vectorIDs)
	if err != nil {
		return fmt.Errorf("mark file %d done: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed records a failed ingestion attempt: state moves to failed, any
// partially recorded vector ids are cleared and the retry counter increments.
func (s *FileStore) MarkFailed(ctx context.Context, id int64) error {
	const q = `
		UPDATE namespace_files
		SET state = $2, vector_ids = '{}', retry_count = retry_count + 1, updated_at = now()
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, q, id, FileStateFailed)
	if err != nil {
		return fmt.Errorf("mark file %d failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete soft-deletes a file row and clears its vector ids. The caller is
// responsible for deleting the file's vectors from the vector store first.
func (s *FileStore) Delete(ctx context.Context, id int64) error {
	const q = `
		UPDATE namespace_files
		SET deleted = TRUE, vector_ids = '{}', updated_at = now()
		WHERE id = $1 AND NOT deleted`

	tag, err := s.db.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("delete file %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveVectorIDs strips the given vector ids from every file in the
// namespace, then soft-deletes ingested files left with no vectors at all.
// Keeps the file queue consistent with the vector store after a vector
// deletion.
func (s *FileStore) RemoveVectorIDs(ctx context.Context, namespace string, ids []string) error {
	const strip = `
		UPDATE namespace_files
		SET vector_ids = COALESCE(
			(SELECT array_agg(v) FROM unnest(vector_ids) AS v WHERE v <> ALL($2)), '{}'),
		    updated_at = now()
		WHERE namespace = $1 AND NOT deleted AND vector_ids && $2`

	if _, err := s.db.Exec(ctx, strip, namespace, ids); err != nil {
		return fmt.Errorf("strip vector ids in %q: %w", namespace, err)
	}

	const sweep = `
		UPDATE namespace_files
		SET deleted = TRUE, updated_at = now()
		WHERE namespace = $1 AND NOT deleted AND state = $2 AND vector_ids = '{}'`

	if _, err := s.db.Exec(ctx, sweep, namespace, FileStateDone); err != nil {
		return fmt.Errorf("sweep emptied files in %q: %w", namespace, err)
	}
	return nil
}

// DeleteByNamespace soft-deletes every file in a namespace. Used when the
// namespace's whole vector collection is dropped.
func (s *FileStore) DeleteByNamespace(ctx context.Context, namespace string) error {
	const q = `
		UPDATE namespace_files
		SET deleted = TRUE, vector_ids = '{}', updated_at = now()
		WHERE namespace = $1 AND NOT deleted`

	if _, err := s.db.Exec(ctx, q, namespace); err != nil {
		return fmt.Errorf("delete files in %q: %w", namespace, err)
	}
	return nil
}
