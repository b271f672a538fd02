package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillkom/property-docs/internal/config"
	"github.com/kirillkom/property-docs/internal/core/dedup"
	"github.com/kirillkom/property-docs/internal/core/ports"
	"github.com/kirillkom/property-docs/internal/core/usecase"
	"github.com/kirillkom/property-docs/internal/infrastructure/extractor"
	"github.com/kirillkom/property-docs/internal/infrastructure/metadata"
	"github.com/kirillkom/property-docs/internal/infrastructure/queue/nats"
	"github.com/kirillkom/property-docs/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/property-docs/internal/infrastructure/resilience"
	"github.com/kirillkom/property-docs/internal/infrastructure/storage/localfs"
)

type App struct {
	Config config.Config

	Queue      ports.MessageQueue
	Repo       ports.DocumentRepository
	Engine     *dedup.Engine
	Resilience *resilience.Executor
	IngestUC   ports.DocumentIngestor
	ProcessUC  ports.DocumentProcessor

	closeFn func()
}

// New wires the application. observer may be nil; when set it receives retry and breaker events.
func New(ctx context.Context, cfg config.Config, observer resilience.Observer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}

	executor := resilience.NewExecutor(ResilienceConfig(cfg))
	if observer != nil {
		executor.WithObserver(observer)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepositoryWithOptions(db, postgres.Options{ResilienceExecutor: executor})
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath, cfg.StoragePublicBaseURL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		DecisionSubject:    cfg.NATSDecisionSubject,
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	textExtractor := extractor.NewRouter()
	analyzer := metadata.NewAnalyzer(nil)

	ingestUC := usecase.NewIngestDocumentUseCase(
		repo,
		repo,
		storage,
		queue,
		textExtractor,
		analyzer,
		engine,
		usecase.IngestOptions{
			MaxUploadBytes:  cfg.UploadMaxBytes,
			CandidateWindow: cfg.CandidateWindow(),
			MaxCandidates:   cfg.DedupMaxCandidates,
		},
	)
	processUC := usecase.NewProcessDocumentUseCase(repo, storage, textExtractor, analyzer)

	return &App{
		Config:     cfg,
		Queue:      queue,
		Repo:       repo,
		Engine:     engine,
		Resilience: executor,
		IngestUC:   ingestUC,
		ProcessUC:  processUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

// NewEngine builds the duplicate classifier from the DEDUP_* settings.
func NewEngine(cfg config.Config) (*dedup.Engine, error) {
	mode, err := dedup.ParsePeriodMatchMode(cfg.DedupPeriodMode)
	if err != nil {
		return nil, fmt.Errorf("dedup period mode: %w", err)
	}
	lexicon, err := dedup.LoadLexicon(cfg.DedupLexiconPath)
	if err != nil {
		return nil, fmt.Errorf("dedup lexicon: %w", err)
	}

	engine, err := dedup.NewEngine(dedup.Config{
		Thresholds: dedup.Thresholds{
			ExactText: cfg.DedupExactTextThreshold,
			Probable:  cfg.DedupProbableThreshold,
		},
		PeriodMode:      mode,
		QualityEpsilon:  cfg.DedupQualityEpsilon,
		MaxCompareRunes: cfg.DedupMaxCompareRunes,
		Lexicon:         &lexicon,
	})
	if err != nil {
		return nil, fmt.Errorf("init dedup engine: %w", err)
	}
	return engine, nil
}

// ResilienceConfig maps the RESILIENCE_* settings. Candidate lookups get the short upload-path
// budget because an HTTP upload blocks on them.
func ResilienceConfig(cfg config.Config) resilience.Config {
	uploadPath := resilience.UploadPathRetry()
	uploadPath.Jitter = cfg.ResilienceRetryJitter
	return resilience.Config{
		Retry: resilience.Retry{
			MaxAttempts:    cfg.ResilienceRetryMaxAttempts,
			InitialBackoff: time.Duration(cfg.ResilienceRetryInitialBackoffMS) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.ResilienceRetryMaxBackoffMS) * time.Millisecond,
			Multiplier:     2,
			Jitter:         cfg.ResilienceRetryJitter,
		},
		RetryOverrides: map[string]resilience.Retry{
			"postgres.find_candidates": uploadPath,
		},
		Breaker: resilience.Breaker{
			Enabled:          cfg.ResilienceBreakerEnabled,
			MinRequests:      uint32(max(cfg.ResilienceBreakerMinRequests, 0)),
			FailureRatio:     cfg.ResilienceBreakerFailureRatio,
			OpenTimeout:      time.Duration(cfg.ResilienceBreakerOpenTimeoutMS) * time.Millisecond,
			HalfOpenMaxCalls: 2,
		},
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
