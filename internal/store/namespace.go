package store

import (
	"context"
	"fmt"
	"time"
)

// Namespace kinds. Q&A-prepared namespaces hold canonical question chunks
// whose metadata carries the canned answer and scene.
const (
	NamespacePermanent  int16 = 0
	NamespaceTemporary  int16 = 1
	NamespaceQAPrepared int16 = 2
)

// Namespace partitions the knowledge base. Bots read from one namespace and
// ingestion writes into one.
type Namespace struct {
	ID        int64
	Name      string
	Title     string
	Kind      int16
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsQAPrepared reports whether the namespace holds canned Q&A documents.
func (n *Namespace) IsQAPrepared() bool {
	return n.Kind == NamespaceQAPrepared
}

// NamespaceStore persists namespaces.
type NamespaceStore struct {
	db DB
}

// NewNamespaceStore creates a namespace repository.
func NewNamespaceStore(db DB) *NamespaceStore {
	return &NamespaceStore{db: db}
}

// Create inserts a namespace. Name must be unique.
func (s *NamespaceStore) Create(ctx context.Context, name, title string, kind int16) (*Namespace, error) {
	const q = `
		INSERT INTO namespaces (name, title, kind)
		VALUES ($1, $2, $3)
		RETURNING id, name, title, kind, created_at, updated_at`

	var ns Namespace
	err := s.db.QueryRow(ctx, q, name, title, kind).
		Scan(&ns.ID, &ns.Name, &ns.Title, &ns.Kind, &ns.CreatedAt, &ns.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create namespace %q: %w", name, err)
	}
	return &ns, nil
}

// GetByName looks up a namespace by its unique name.
// Returns ErrNotFound when the namespace does not exist.
func (s *NamespaceStore) GetByName(ctx context.Context, name string) (*Namespace, error) {
	const q = `
		SELECT id, name, title, kind, created_at, updated_at
		FROM namespaces
		WHERE name = $1`

	var ns Namespace
	err := s.db.QueryRow(ctx, q, name).
		Scan(&ns.ID, &ns.Name, &ns.Title, &ns.Kind, &ns.CreatedAt, &ns.UpdatedAt)
	if err != nil {
		return nil, wrapNoRows(err)
	}
	return &ns, nil
}

// List returns all namespaces ordered by creation time.
func (s *NamespaceStore) List(ctx context.Context) ([]Namespace, error) {
	const q = `
		SELECT id, name, title, kind, created_at, updated_at
		FROM namespaces
		ORDER BY created_at`

	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	defer rows.Close()

	var out []Namespace
	for rows.Next() {
		var ns Namespace
		if err := rows.Scan(&ns.ID, &ns.Name, &ns.Title, &ns.Kind, &ns.CreatedAt, &ns.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan namespace: %w", err)
		}
		out = append(out, ns)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate namespaces: %w", err)
	}
	return out, nil
}
