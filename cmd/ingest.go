package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/resourceburglar/localqa/internal/app"
	"github.com/resourceburglar/localqa/internal/config"
	"github.com/resourceburglar/localqa/internal/document"
	"github.com/resourceburglar/localqa/internal/store"
)

// runIngest bulk-loads every text file matching a glob into one namespace.
// Each file becomes its own queued entry so a partial failure is retried by
// the reconciler instead of aborting the whole batch.
func runIngest() error {
	if len(os.Args) < 4 {
		return fmt.Errorf("usage: localqa ingest <namespace> <glob>")
	}
	namespace, pathGlob := os.Args[2], os.Args[3]

	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	docs, err := document.Load(pathGlob)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	var failed int
	for _, doc := range docs {
		f := &store.NamespaceFile{
			Namespace:    namespace,
			FileName:     doc.Name,
			Content:      doc.Content,
			ChunkSize:    cfg.ChunkSize,
			ChunkOverlap: cfg.ChunkOverlap,
		}
		_, ids, err := a.Ingest.Upload(ctx, f)
		if err != nil {
			failed++
			logger.Error("ingest failed", "file", doc.Name, "error", err)
			continue
		}
		logger.Info("ingested", "file", doc.Name, "namespace", namespace, "vectors", len(ids))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(docs))
	}
	logger.Info("ingest complete", "files", len(docs), "namespace", namespace)
	return nil
}
