package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/resourceburglar/localqa/internal/llm"
	"github.com/resourceburglar/localqa/internal/log"
)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresIndex implements Index over the qa_collection / qa_embedding schema.
// One collection row exists per namespace; embeddings reference it by uuid.
//
// Safe for concurrent use.
type PostgresIndex struct {
	db       DB
	embedder llm.Embedder
	logger   log.Logger
}

// NewPostgresIndex creates the pgvector-backed index.
func NewPostgresIndex(db DB, embedder llm.Embedder, logger log.Logger) *PostgresIndex {
	if logger == nil {
		logger = log.NewNop()
	}
	return &PostgresIndex{db: db, embedder: embedder, logger: logger}
}

// newID returns a fresh 32-char hex vector id (a UUIDv4 without dashes).
func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ErrDimensionMismatch indicates the embedder's output width does not match
// the qa_embedding schema. This is a configuration problem, not a bad input.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// embed runs the embedder and validates the vector width before it reaches
// pgvector, which would otherwise fail on every statement.
func (p *PostgresIndex) embed(ctx context.Context, text string) ([]float32, error) {
	emb, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(emb) != Dimension {
		return nil, fmt.Errorf("%w: embedder returned %d dimensions, schema expects %d; pin the embedder output dimensionality",
			ErrDimensionMismatch, len(emb), Dimension)
	}
	return emb, nil
}

// ensureCollection returns the collection uuid for a namespace, creating the
// collection row on first use.
func (p *PostgresIndex) ensureCollection(ctx context.Context, namespace string) (string, error) {
	const q = `
		INSERT INTO qa_collection (name)
		VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING uuid`

	var id string
	if err := p.db.QueryRow(ctx, q, namespace).Scan(&id); err != nil {
		return "", fmt.Errorf("ensure collection %q: %w", namespace, err)
	}
	return id, nil
}

// collectionID resolves an existing collection without creating one.
// Returns ("", nil) when the namespace has no collection yet.
func (p *PostgresIndex) collectionID(ctx context.Context, namespace string) (string, error) {
	var id string
	err := p.db.QueryRow(ctx, `SELECT uuid FROM qa_collection WHERE name = $1`, namespace).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("resolve collection %q: %w", namespace, err)
	}
	return id, nil
}

// Insert embeds each document and stores it. An embedding failure skips that
// document and continues; a storage failure aborts, since it indicates the
// database rather than one input is unhealthy.
func (p *PostgresIndex) Insert(ctx context.Context, namespace string, docs []Document) ([]string, error) {
	collection, err := p.ensureCollection(ctx, namespace)
	if err != nil {
		return nil, err
	}

	const q = `
		INSERT INTO qa_embedding (id, collection_uuid, embedding, document, cmetadata)
		VALUES ($1, $2, $3, $4, $5)`

	ids := make([]string, 0, len(docs))
	for i, doc := range docs {
		emb, err := p.embed(ctx, doc.Content)
		if err != nil {
			if ctx.Err() != nil {
				return ids, ctx.Err()
			}
			// A width mismatch fails every chunk the same way; abort
			// instead of silently skipping the whole batch.
			if errors.Is(err, ErrDimensionMismatch) {
				return ids, err
			}
			p.logger.Warn("skipping chunk, embedding failed",
				"namespace", namespace, "chunk", i, "error", err)
			continue
		}

		meta := doc.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		rawMeta, err := json.Marshal(meta)
		if err != nil {
			return ids, fmt.Errorf("encode metadata for chunk %d: %w", i, err)
		}

		id := newID()
		if _, err := p.db.Exec(ctx, q, id, collection, pgvector.NewVector(emb), doc.Content, rawMeta); err != nil {
			return ids, fmt.Errorf("insert chunk %d into %q: %w", i, namespace, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Search embeds the query and returns the topK nearest records by cosine
// distance. A namespace without a collection yields no matches.
func (p *PostgresIndex) Search(ctx context.Context, namespace, query string, topK int) ([]Match, error) {
	collection, err := p.collectionID(ctx, namespace)
	if err != nil {
		return nil, err
	}
	if collection == "" {
		return nil, nil
	}

	emb, err := p.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	const q = `
		SELECT id, document, cmetadata, embedding <=> $1 AS score
		FROM qa_embedding
		WHERE collection_uuid = $2
		ORDER BY score
		LIMIT $3`

	rows, err := p.db.Query(ctx, q, pgvector.NewVector(emb), collection, topK)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", namespace, err)
	}
	defer rows.Close()

	return scanMatches(rows, true)
}

// Delete removes the given ids from the namespace. Missing ids are a no-op.
func (p *PostgresIndex) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	collection, err := p.collectionID(ctx, namespace)
	if err != nil {
		return err
	}
	if collection == "" {
		return nil
	}

	const q = `DELETE FROM qa_embedding WHERE collection_uuid = $1 AND id = ANY($2)`
	if _, err := p.db.Exec(ctx, q, collection, ids); err != nil {
		return fmt.Errorf("delete from %q: %w", namespace, err)
	}
	return nil
}

// DeleteAll removes every record in the namespace.
func (p *PostgresIndex) DeleteAll(ctx context.Context, namespace string) error {
	collection, err := p.collectionID(ctx, namespace)
	if err != nil {
		return err
	}
	if collection == "" {
		return nil
	}

	if _, err := p.db.Exec(ctx, `DELETE FROM qa_embedding WHERE collection_uuid = $1`, collection); err != nil {
		return fmt.Errorf("delete all from %q: %w", namespace, err)
	}
	return nil
}

// Lookup returns the surviving records among ids, omitting missing ones.
func (p *PostgresIndex) Lookup(ctx context.Context, namespace string, ids []string) ([]Match, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	collection, err := p.collectionID(ctx, namespace)
	if err != nil {
		return nil, err
	}
	if collection == "" {
		return nil, nil
	}

	const q = `
		SELECT id, document, cmetadata
		FROM qa_embedding
		WHERE collection_uuid = $1 AND id = ANY($2)`

	rows, err := p.db.Query(ctx, q, collection, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup in %q: %w", namespace, err)
	}
	defer rows.Close()

	return scanMatches(rows, false)
}

func scanMatches(rows pgx.Rows, withScore bool) ([]Match, error) {
	var out []Match
	for rows.Next() {
		var (
			m       Match
			rawMeta []byte
		)
		dest := []any{&m.ID, &m.Document.Content, &rawMeta}
		if withScore {
			dest = append(dest, &m.Score)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &m.Document.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", m.ID, err)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return out, nil
}
