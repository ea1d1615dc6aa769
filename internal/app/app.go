// Package app initializes the application: database pool, model provider,
// repositories, the answering pipeline and the HTTP server, with ordered
// teardown.
package app

import (
	"context"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resourceburglar/localqa/internal/answer"
	"github.com/resourceburglar/localqa/internal/api"
	"github.com/resourceburglar/localqa/internal/config"
	"github.com/resourceburglar/localqa/internal/ingest"
	"github.com/resourceburglar/localqa/internal/log"
	"github.com/resourceburglar/localqa/internal/store"
	"github.com/resourceburglar/localqa/internal/vector"
)

// App is the application container. Setup populates it; Close releases its
// resources in reverse order.
type App struct {
	Config *config.Config
	Logger log.Logger

	Pool     *pgxpool.Pool
	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	Namespaces *store.NamespaceStore
	Files      *store.FileStore
	Bots       *store.BotStore
	History    *store.HistoryStore

	Index        *vector.PostgresIndex
	Ingest       *ingest.Service
	Scheduler    *ingest.Scheduler
	Orchestrator *answer.Orchestrator
	Server       *api.Server

	cancel context.CancelFunc
}

// Close shuts the application down. Safe to call on a partially initialized
// App, including more than once.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.cancel != nil {
		a.cancel()
	}
	if a.Pool != nil {
		a.Pool.Close()
		a.Pool = nil
		a.Logger.Info("database pool closed")
	}
	return nil
}
