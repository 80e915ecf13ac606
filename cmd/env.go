package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contract-intel/internal/extract"
	"github.com/sells-group/contract-intel/internal/pdftext"
	"github.com/sells-group/contract-intel/internal/pipeline"
	"github.com/sells-group/contract-intel/internal/resilience"
	"github.com/sells-group/contract-intel/internal/score"
	"github.com/sells-group/contract-intel/internal/store"
	anthropicpkg "github.com/sells-group/contract-intel/pkg/anthropic"
)

// pipelineEnv holds the initialized store and orchestrator shared by the
// ingest/batch/serve commands.
type pipelineEnv struct {
	Store        store.Store
	Orchestrator *pipeline.Orchestrator
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.Path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initPipeline sets up the store and builds the orchestrator. The model
// extractor is wired only when an Anthropic key is configured; otherwise
// every contract takes the pattern path. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
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

	opts := []pipeline.Option{
		pipeline.WithRetryConfig(resilience.RetryConfig{
			MaxAttempts: cfg.Anthropic.MaxAttempts,
		}),
	}
	if cfg.Anthropic.Key != "" {
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		llm := extract.NewLLMExtractor(client, cfg.Anthropic.Model,
			time.Duration(cfg.Anthropic.TimeoutSecs)*time.Second)
		opts = append(opts, pipeline.WithModelExtractor(llm))
		if cfg.Anthropic.PatternFallback {
			opts = append(opts, pipeline.WithPatternFallback())
		}
		zap.L().Info("model-assisted extraction enabled", zap.String("model", cfg.Anthropic.Model))
	} else {
		zap.L().Debug("CONTRACT_ANTHROPIC_KEY not set, pattern extraction only")
	}

	orch := pipeline.New(
		pdftext.NewPdfToText(cfg.PDF.PdfToTextPath),
		extract.NewPatternExtractor(),
		score.New(cfg.Score),
		opts...,
	)

	return &pipelineEnv{Store: st, Orchestrator: orch}, nil
}
