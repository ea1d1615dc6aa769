package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/genai"

	"github.com/resourceburglar/localqa/db"
	"github.com/resourceburglar/localqa/internal/answer"
	httpapi "github.com/resourceburglar/localqa/internal/api"
	"github.com/resourceburglar/localqa/internal/config"
	"github.com/resourceburglar/localqa/internal/ingest"
	"github.com/resourceburglar/localqa/internal/llm"
	"github.com/resourceburglar/localqa/internal/log"
	"github.com/resourceburglar/localqa/internal/meeting"
	"github.com/resourceburglar/localqa/internal/retrieval"
	"github.com/resourceburglar/localqa/internal/store"
	"github.com/resourceburglar/localqa/internal/synthesis"
	"github.com/resourceburglar/localqa/internal/vector"
)

// Setup creates and initializes the application. The returned App owns its
// resources; call Close to release them.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	a.Namespaces = store.NewNamespaceStore(pool)
	a.Files = store.NewFileStore(pool)
	a.Bots = store.NewBotStore(pool)
	a.History = store.NewHistoryStore(pool)

	// One shared rate limit covers chat completions and embeddings so
	// ingestion bursts cannot starve interactive questions.
	base := llm.NewClient(g, cfg.FullModelName(), embedder, logger)
	if opts := embedOptions(cfg); opts != nil {
		base.WithEmbedOptions(opts)
	}
	limited := llm.NewLimitedClient(base, base, cfg.LLMRateLimit, cfg.LLMRateBurst)
	completer := llm.NewFallbackCompleter(limited, logger)

	a.Index = vector.NewPostgresIndex(pool, limited, logger)
	a.Ingest = ingest.NewService(a.Files, a.Namespaces, a.Index, logger)
	a.Scheduler = ingest.NewScheduler(a.Ingest,
		cfg.SchedulerInterval, cfg.SchedulerRetryLimit, cfg.SchedulerFetchLimit, logger)

	a.Orchestrator = answer.New(
		a.Bots,
		a.Namespaces,
		a.History,
		retrieval.New(a.Index, logger),
		synthesis.New(completer, logger),
		completer,
		cfg,
		logger,
	)

	if cfg.Meeting.Enabled() {
		sessions := store.NewMeetingSessionStore(pool)
		client := meeting.NewClient(cfg.Meeting.BaseURL, cfg.Meeting.AppID, cfg.Meeting.AppSecret)
		a.Orchestrator.WithMeeting(meeting.NewService(completer, sessions, client, logger))
		logger.Info("meeting-room dialogue enabled", "base_url", cfg.Meeting.BaseURL)
	}

	server, err := httpapi.NewServer(httpapi.ServerConfig{
		Logger:     logger,
		Config:     cfg,
		Asker:      a.Orchestrator,
		Ingest:     a.Ingest,
		Namespaces: a.Namespaces,
		History:    a.History,
		Pool:       pool,
	})
	if err != nil {
		return nil, err
	}
	a.Server = server

	_, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	return a, nil
}

// provideDBPool runs migrations and creates the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// provideGenkit initializes Genkit with the configured model provider.
// Supports gemini (default), ollama and openai.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	var g *genkit.Genkit

	switch provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit registration, there is no auto-discovery.
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized genkit with openai provider", "model", cfg.ModelName)

	default:
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		// Keyed by server address, registered in provideGenkit.
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// embedOptions returns the provider-specific embed request options. Gemini
// embedding models default to a wider output than the qa_embedding schema,
// so the dimensionality is pinned to the schema width. Ollama and OpenAI
// embedders emit their model's fixed width; the index rejects a mismatch
// with a configuration error instead.
func embedOptions(cfg *config.Config) any {
	switch cfg.Provider {
	case config.ProviderOllama, config.ProviderOpenAI:
		return nil
	default:
		dim := int32(vector.Dimension)
		return &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}
}
