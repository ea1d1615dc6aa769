// Package retrieval wraps the vector index with the two-tier confidence
// filter that decides which matches are trustworthy enough to answer from.
package retrieval

import (
	"context"

	"github.com/resourceburglar/localqa/internal/errcode"
	"github.com/resourceburglar/localqa/internal/log"
	"github.com/resourceburglar/localqa/internal/vector"
)

// Retriever performs namespace-scoped similarity retrieval.
//
// The two-tier filter works as follows. Tier 1 keeps only matches at distance
// exactly 0.0: a canonical Q&A chunk inserted verbatim beats every
// merely-similar passage regardless of the threshold. Only when no exact
// match exists does Tier 2 apply, keeping matches at or under the threshold.
// An empty result is a normal outcome meaning "no confident match", not an
// error.
type Retriever struct {
	index  vector.Index
	logger log.Logger
}

// New creates a Retriever over the given index.
func New(index vector.Index, logger log.Logger) *Retriever {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Retriever{index: index, logger: logger}
}

// Retrieve searches the namespace and applies the confidence filter.
func (r *Retriever) Retrieve(ctx context.Context, question, namespace string, topK int, scoreThreshold float64) ([]vector.Match, error) {
	matches, err := r.index.Search(ctx, namespace, question, topK)
	if err != nil {
		return nil, errcode.New(errcode.ErrVectorSearch, "search namespace %q: %v", namespace, err)
	}

	var exact []vector.Match
	for _, m := range matches {
		if m.Score == 0.0 {
			exact = append(exact, m)
		}
	}
	if len(exact) > 0 {
		r.logger.Debug("retrieval hit exact tier",
			"namespace", namespace, "matches", len(exact))
		return exact, nil
	}

	var confident []vector.Match
	for _, m := range matches {
		if m.Score <= scoreThreshold {
			confident = append(confident, m)
		}
	}
	r.logger.Debug("retrieval threshold tier",
		"namespace", namespace, "candidates", len(matches), "matches", len(confident))
	return confident, nil
}
