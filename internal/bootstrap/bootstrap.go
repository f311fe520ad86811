package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/medical-doc-assistant/internal/config"
	"github.com/kirillkom/medical-doc-assistant/internal/core/catalog"
	"github.com/kirillkom/medical-doc-assistant/internal/core/ports"
	"github.com/kirillkom/medical-doc-assistant/internal/core/usecase"
	"github.com/kirillkom/medical-doc-assistant/internal/infrastructure/cache/lru"
	"github.com/kirillkom/medical-doc-assistant/internal/infrastructure/crypto/fieldcrypt"
	"github.com/kirillkom/medical-doc-assistant/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/medical-doc-assistant/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/medical-doc-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/medical-doc-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/medical-doc-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/medical-doc-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/medical-doc-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/medical-doc-assistant/internal/infrastructure/storage/s3"
)

const pdfMaxPages = 50

// Telemetry is implemented by both the api and worker metrics.
type Telemetry interface {
	ports.PipelineObserver
	ObserveBreakerState(operation string, from, to gobreaker.State)
}

type App struct {
	Config  config.Config
	Catalog *catalog.Catalog

	Queue     ports.MessageQueue
	Pipeline  *usecase.AnalysisPipeline
	JobsUC    *usecase.SubmitAnalysisJobUseCase
	ProcessUC *usecase.ProcessAnalysisJobUseCase
	Archive   *usecase.AnalysisArchive
	Sessions  *usecase.SessionService
	Chat      *usecase.ChatService
	Exporter  *xlsx.AnalysisExporter

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, telemetry Telemetry) (*App, error) {
	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	cipher, err := fieldcrypt.New(cfg.EncryptionKey, cfg.EncryptionRequired)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init field encryption: %w", err)
	}
	if cipher.UsesDevelopmentKey() {
		slog.Warn("encryption_development_key", "hint", "set ENCRYPTION_KEY outside development")
	}

	storage, err := newObjectStorage(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(cfg.NATSResilience).WithStateObserver(telemetry.ObserveBreakerState),
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	inference := ollama.NewWithOptions(cfg.OllamaURL, ollama.Options{
		RequestTimeout:     cfg.OllamaTimeout,
		ResilienceExecutor: resilience.NewExecutor(cfg.OllamaResilience).WithStateObserver(telemetry.ObserveBreakerState),
	})

	analysisCache := lru.NewAnalysisCache(postgres.NewAnalysisRepository(db), cfg.CacheSize, cfg.CacheTTL)
	sessionRepo := postgres.NewSessionRepository(db)
	sessionStore := lru.NewSessionInvalidator(sessionRepo, analysisCache)
	jobRepo := postgres.NewJobRepository(db)

	cat := catalog.Default()
	archive := usecase.NewAnalysisArchive(analysisCache, cipher)
	pipeline := usecase.NewAnalysisPipeline(
		pdftext.NewExtractor(pdfMaxPages),
		usecase.NewClassifier(inference, cat),
		usecase.NewStreamingAggregator(inference, cat, cfg.AnalysisTokenBudget),
		usecase.NewSummarizer(inference, cat, telemetry),
		archive,
		cat,
		telemetry,
		usecase.PipelineConfig{DefaultModel: cfg.OllamaModel, MaxUploadBytes: cfg.MaxUploadBytes},
	)

	history := usecase.NewChatHistory(sessionRepo, cipher)
	assembler := usecase.NewContextAssembler(archive, cat, cfg.ContextRecentAnalyses)

	return &App{
		Config:  cfg,
		Catalog: cat,

		Queue:     queue,
		Pipeline:  pipeline,
		JobsUC:    usecase.NewSubmitAnalysisJobUseCase(jobRepo, storage, queue, cipher, pipeline),
		ProcessUC: usecase.NewProcessAnalysisJobUseCase(jobRepo, storage, cipher, pipeline),
		Archive:   archive,
		Sessions:  usecase.NewSessionService(sessionStore, analysisCache, history, cfg.FreeSessionQuota),
		Chat: usecase.NewChatService(sessionStore, history, assembler, inference, usecase.ChatConfig{
			DefaultModel:    cfg.OllamaModel,
			HistoryTurns:    cfg.ChatHistoryTurns,
			MaxMessageRunes: cfg.ChatMaxMessageChars,
		}),
		Exporter: xlsx.NewAnalysisExporter(cat),

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func newObjectStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case config.StorageS3:
		return s3.New(ctx, s3.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
	case config.StorageLocalFS, "":
		return localfs.New(cfg.StoragePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
