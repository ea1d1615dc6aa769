// Package ingest turns source documents into vector records. The same path
// serves interactive uploads and the background reconciliation scheduler, so
// a file reconciled later is vectorized exactly like one uploaded directly.
package ingest

import (
	"context"
	"strconv"
	"strings"

	"github.com/resourceburglar/localqa/internal/chunk"
	"github.com/resourceburglar/localqa/internal/errcode"
	"github.com/resourceburglar/localqa/internal/log"
	"github.com/resourceburglar/localqa/internal/store"
	"github.com/resourceburglar/localqa/internal/vector"
)

// FileQueue is the slice of the file repository ingestion needs.
type FileQueue interface {
	Create(ctx context.Context, f *store.NamespaceFile) (*store.NamespaceFile, error)
	Get(ctx context.Context, id int64) (*store.NamespaceFile, error)
	ListReconcilable(ctx context.Context, retryLimit, limit int) ([]store.NamespaceFile, error)
	MarkDone(ctx context.Context, id int64, vectorIDs []string) error
	MarkFailed(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	RemoveVectorIDs(ctx context.Context, namespace string, ids []string) error
	DeleteByNamespace(ctx context.Context, namespace string) error
}

// Namespaces is the slice of the namespace repository ingestion needs.
type Namespaces interface {
	GetByName(ctx context.Context, name string) (*store.Namespace, error)
}

// Service ingests documents into the vector store.
type Service struct {
	files      FileQueue
	namespaces Namespaces
	index      vector.Index
	logger     log.Logger
}

// NewService creates the ingestion service.
func NewService(files FileQueue, namespaces Namespaces, index vector.Index, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Service{files: files, namespaces: namespaces, index: index, logger: logger}
}

// Upload queues a document and ingests it immediately. The file row is
// created first so that a failed ingestion leaves a record the reconciliation
// scheduler will retry. Returns the stored file and the produced vector ids.
func (s *Service) Upload(ctx context.Context, f *store.NamespaceFile) (*store.NamespaceFile, []string, error) {
	if strings.TrimSpace(f.Content) == "" {
		return nil, nil, errcode.New(errcode.ErrIngestInput, "file %q has no content", f.FileName)
	}
	if _, err := s.namespaces.GetByName(ctx, f.Namespace); err != nil {
		return nil, nil, errcode.New(errcode.ErrNamespaceNotFound, "namespace %q: %v", f.Namespace, err)
	}

	stored, err := s.files.Create(ctx, f)
	if err != nil {
		return nil, nil, err
	}

	ids, err := s.Vectorize(ctx, stored)
	if err != nil {
		if markErr := s.files.MarkFailed(ctx, stored.ID); markErr != nil {
			s.logger.Error("failed to record ingestion failure",
				"file_id", stored.ID, "error", markErr)
		}
		return stored, nil, err
	}

	if err := s.files.MarkDone(ctx, stored.ID, ids); err != nil {
		return stored, ids, err
	}
	return stored, ids, nil
}

// Vectorize runs Chunker -> embedding -> vector insert for one file and
// returns the produced vector ids. It does not update the file's state; the
// caller owns the state transition.
func (s *Service) Vectorize(ctx context.Context, f *store.NamespaceFile) ([]string, error) {
	chunks, err := chunk.Split(f.Content, f.ChunkSize, f.ChunkOverlap)
	if err != nil {
		return nil, errcode.New(errcode.ErrIngestInput, "chunk %q: %v", f.FileName, err)
	}

	docs := make([]vector.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = vector.Document{
			Content: c,
			Metadata: map[string]string{
				"source":  f.FileName,
				"file_id": strconv.FormatInt(f.ID, 10),
			},
		}
	}

	ids, err := s.index.Insert(ctx, f.Namespace, docs)
	if err != nil {
		return nil, errcode.New(errcode.ErrVectorInsert, "insert %q into %q: %v", f.FileName, f.Namespace, err)
	}
	if len(ids) == 0 {
		// Every chunk's embedding failed; treat as an ingestion failure so
		// the scheduler retries rather than marking an empty file done.
		return nil, errcode.New(errcode.ErrEmbedding, "no chunk of %q could be embedded", f.FileName)
	}

	s.logger.Info("file vectorized",
		"namespace", f.Namespace, "file", f.FileName,
		"chunks", len(chunks), "vectors", len(ids))
	return ids, nil
}

// DeleteVectors removes specific vector ids from a namespace, or everything
// in the namespace when ids is empty. The file queue is reconciled in the same
// call so a file's recorded vector ids never point at deleted vectors.
func (s *Service) DeleteVectors(ctx context.Context, namespace string, ids []string) error {
	if _, err := s.namespaces.GetByName(ctx, namespace); err != nil {
		return errcode.New(errcode.ErrNamespaceNotFound, "namespace %q: %v", namespace, err)
	}

	if len(ids) == 0 {
		if err := s.index.DeleteAll(ctx, namespace); err != nil {
			return err
		}
		return s.files.DeleteByNamespace(ctx, namespace)
	}

	if err := s.index.Delete(ctx, namespace, ids); err != nil {
		return err
	}
	return s.files.RemoveVectorIDs(ctx, namespace, ids)
}

// DeleteFile removes one queued file: its vectors go first, then the row is
// soft-deleted.
func (s *Service) DeleteFile(ctx context.Context, id int64) error {
	f, err := s.files.Get(ctx, id)
	if err != nil {
		return err
	}
	if len(f.VectorIDs) > 0 {
		if err := s.index.Delete(ctx, f.Namespace, f.VectorIDs); err != nil {
			return errcode.New(errcode.ErrVectorDelete, "delete vectors of file %d: %v", id, err)
		}
	}
	return s.files.Delete(ctx, id)
}
