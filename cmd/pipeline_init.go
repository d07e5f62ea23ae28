package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gravi-labs/retail-verify/internal/evidence"
	"github.com/gravi-labs/retail-verify/internal/geo"
	"github.com/gravi-labs/retail-verify/internal/llm"
	"github.com/gravi-labs/retail-verify/internal/pipeline"
	"github.com/gravi-labs/retail-verify/internal/reviews"
	"github.com/gravi-labs/retail-verify/internal/scorer"
	"github.com/gravi-labs/retail-verify/internal/store"
	"github.com/gravi-labs/retail-verify/internal/vision"
	anthropicpkg "github.com/gravi-labs/retail-verify/pkg/anthropic"
	"github.com/gravi-labs/retail-verify/pkg/places"
)

// pipelineEnv holds the initialized store, clients and orchestrator needed
// by the verify/bulk/serve commands.
type pipelineEnv struct {
	Store        store.Store
	Orchestrator *pipeline.Orchestrator
	BulkRunner   *pipeline.BulkRunner
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up the store, the place-search and model clients, and
// builds the orchestrator. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if cfg.Places.Key == "" {
		return nil, eris.New("places api key not configured")
	}
	if err := scorer.ValidateConfig(cfg.Scoring); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	placesClient := places.NewClient(cfg.Places.Key,
		places.WithBaseURL(cfg.Places.BaseURL),
		places.WithTimeout(time.Duration(cfg.Places.TimeoutSecs)*time.Second),
		places.WithRateLimit(cfg.Places.RateLimitRPS),
	)

	provider, err := initProvider()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	classifier := vision.NewClassifier(provider, cfg.LLM.MaxTokens, cfg.LLM.Temperature)
	summarizer := reviews.NewSummarizer(provider, cfg.LLM.MaxTokens, cfg.LLM.Temperature)
	resolver := geo.NewResolver(placesClient, cfg.Places.BiasRadiusMetres)
	collector := evidence.NewCollector(placesClient,
		cfg.Evidence.MaxImages, cfg.Evidence.MaxReviews, cfg.Evidence.PhotoMaxWidth)

	orch := pipeline.New(cfg, resolver, collector, classifier, summarizer, st)
	bulk := pipeline.NewBulkRunner(classifier, st, cfg.Bulk.BatchSize, cfg.Bulk.BatchDelay)

	return &pipelineEnv{
		Store:        st,
		Orchestrator: orch,
		BulkRunner:   bulk,
	}, nil
}

// initProvider selects the model provider from configuration.
func initProvider() (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "anthropic":
		if cfg.LLM.AnthropicKey == "" {
			return nil, eris.New("anthropic api key not configured")
		}
		client := anthropicpkg.NewClient(cfg.LLM.AnthropicKey)
		return llm.NewAnthropicProvider(client, cfg.LLM.AnthropicModel), nil
	case "openai":
		if cfg.LLM.OpenAIKey == "" {
			return nil, eris.New("openai api key not configured")
		}
		return llm.NewOpenAIProvider(cfg.LLM.OpenAIKey, cfg.LLM.OpenAIBaseURL, cfg.LLM.OpenAIModel), nil
	}
	return nil, eris.Errorf("unknown llm provider %q", cfg.LLM.Provider)
}

// initStore opens the configured persistence backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store driver is postgres but database_url is empty")
		}
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		zap.L().Info("using postgres store")
		return st, nil
	case "sqlite":
		st, err := store.NewSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		zap.L().Info("using sqlite store", zap.String("path", cfg.Store.SQLitePath))
		return st, nil
	}
	return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
}
