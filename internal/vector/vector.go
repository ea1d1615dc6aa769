// Package vector provides namespace-scoped storage and similarity search for
// embedded text chunks, backed by PostgreSQL with the pgvector extension.
package vector

import "context"

// Dimension is the embedding width of the qa_embedding schema.
const Dimension = 768

// Document is one chunk of text plus its free-form metadata. Q&A-type
// namespaces carry a canned "answer" and "scene" pair in the metadata.
type Document struct {
	Content  string
	Metadata map[string]string
}

// Match is one search or lookup result. Score is the cosine distance to the
// query: 0 means an identical vector, larger means less similar. Lookup
// results carry a zero Score.
type Match struct {
	ID       string
	Document Document
	Score    float64
}

// Index is the namespace-scoped vector store consumed by retrieval and
// ingestion. Implementations must be safe for concurrent use; operations on
// one namespace must never affect another.
type Index interface {
	// Insert embeds and stores the documents, returning one newly assigned
	// id per stored document, in input order. Documents whose embedding
	// fails are skipped, not fatal; their ids are simply absent.
	Insert(ctx context.Context, namespace string, docs []Document) ([]string, error)

	// Search returns at most topK matches ranked by ascending distance.
	Search(ctx context.Context, namespace, query string, topK int) ([]Match, error)

	// Delete removes the given ids. Missing ids are ignored.
	Delete(ctx context.Context, namespace string, ids []string) error

	// DeleteAll removes every record in the namespace.
	DeleteAll(ctx context.Context, namespace string) error

	// Lookup returns the records that still exist among ids. Missing ids
	// are silently omitted; callers must not assume set equality.
	Lookup(ctx context.Context, namespace string, ids []string) ([]Match, error)
}
