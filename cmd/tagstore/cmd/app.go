package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/blob"
	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/config"
	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/enrich"
	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/index"
	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/ingest"
	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/logging"
	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/provider"
	"github.com/Mariyan2/AI-Powered-Clothing-Tagging-Marketplace/internal/store"
)

// app holds the wired service components and their teardown.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	posts   *store.PostStore
	idx     *index.PostIndex
	svc     *store.Service
	orch    *ingest.Orchestrator
	cleanup []func()
}

func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

// newCatalog opens the record store and search index, enough for search
// and maintenance commands that never touch storage or providers.
func newCatalog() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if debugMode {
		level = "debug"
	}
	logger, logCleanup, err := logging.Setup(logging.Config{
		Level:         level,
		FilePath:      cfg.Logging.File,
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	a.cleanup = append(a.cleanup, logCleanup)

	posts, err := store.OpenStore(cfg.Database.Path, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.posts = posts
	a.cleanup = append(a.cleanup, func() { _ = posts.Close() })

	idx, err := index.Open(cfg.Index.Path, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.idx = idx
	a.cleanup = append(a.cleanup, func() { _ = idx.Close() })

	a.svc = store.NewService(posts, idx, logger)
	return a, nil
}

// newApp additionally wires blob storage, the enrichment providers and
// the ingestion orchestrator.
func newApp(ctx context.Context) (*app, error) {
	a, err := newCatalog()
	if err != nil {
		return nil, err
	}

	s3Store, err := blob.NewS3Store(ctx, blob.S3Options{
		Bucket:        a.cfg.Storage.Bucket,
		Prefix:        a.cfg.Storage.Prefix,
		Region:        a.cfg.Storage.Region,
		PublicBaseURL: a.cfg.Storage.PublicBaseURL,
	}, a.logger)
	if err != nil {
		a.close()
		return nil, err
	}

	var openAIOpts []provider.OpenAIOption
	if a.cfg.Providers.OpenAIBaseURL != "" {
		openAIOpts = append(openAIOpts, provider.WithOpenAIBaseURL(a.cfg.Providers.OpenAIBaseURL))
	}
	if a.cfg.Providers.OpenAIModel != "" {
		openAIOpts = append(openAIOpts, provider.WithOpenAIModel(a.cfg.Providers.OpenAIModel))
	}

	router := &provider.Router{
		LLM:     provider.NewOpenAI(a.cfg.Providers.OpenAIKey, a.logger, openAIOpts...),
		Caption: provider.NewAzureVision(a.cfg.Providers.AzureEndpoint, a.cfg.Providers.AzureKey, a.logger),
	}

	a.orch = &ingest.Orchestrator{
		Blob:           s3Store,
		Posts:          a.svc,
		Enricher:       enrich.New(router, a.logger),
		Dir:            a.cfg.Ingest.Dir,
		SignedURLTTL:   a.cfg.Ingest.SignedURLTTL,
		PacingEnriched: a.cfg.Ingest.PacingEnriched,
		PacingPlain:    a.cfg.Ingest.PacingPlain,
		Logger:         a.logger,
	}
	return a, nil
}
