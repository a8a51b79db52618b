package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/dispute-retrieval/internal/config"
	"github.com/kirillkom/dispute-retrieval/internal/core/ports"
	"github.com/kirillkom/dispute-retrieval/internal/core/usecase"
	"github.com/kirillkom/dispute-retrieval/internal/infrastructure/embedding/cache"
	openaiembed "github.com/kirillkom/dispute-retrieval/internal/infrastructure/embedding/openai"
	"github.com/kirillkom/dispute-retrieval/internal/infrastructure/embedding/remote"
	"github.com/kirillkom/dispute-retrieval/internal/infrastructure/llm/ollama"
	openaillm "github.com/kirillkom/dispute-retrieval/internal/infrastructure/llm/openai"
	"github.com/kirillkom/dispute-retrieval/internal/infrastructure/queue/nats"
	"github.com/kirillkom/dispute-retrieval/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/dispute-retrieval/internal/infrastructure/resilience"
	"github.com/kirillkom/dispute-retrieval/internal/observability/metrics"
)

// App holds the query-path services shared by the API, MCP and CLI binaries.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Retrieval *usecase.RetrievalUseCase
	Chat      *usecase.ChatUseCase
	Documents *usecase.DocumentChunksUseCase
	Health    *postgres.ChunkRepository

	HTTPMetrics      *metrics.HTTPServerMetrics
	RetrievalMetrics *metrics.RetrievalMetrics

	closers []func()
}

// New wires the retrieval pipeline against Postgres, the configured embedder
// and answer generator. NATS publishing is enabled only when NATS_URL is set.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, service string) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, func() { _ = db.Close() })

	app.HTTPMetrics = metrics.NewHTTPServerMetrics(service)
	app.RetrievalMetrics = metrics.NewRetrievalMetrics(service, app.HTTPMetrics.Registry())

	embeddingExecutor := resilience.NewExecutor(resilience.QueryPathConfig(), logger)
	embeddingExecutor.OnStateChange(app.RetrievalMetrics.ObserveBreaker)
	embedder, err := app.newEmbedder(ctx, embeddingExecutor)
	if err != nil {
		app.Close()
		return nil, err
	}

	var publisher ports.RetrievalLogPublisher
	if cfg.NATSURL != "" {
		natsExecutor := resilience.NewExecutor(resilience.DefaultConfig(), logger)
		natsExecutor.OnStateChange(app.RetrievalMetrics.ObserveBreaker)
		queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			QueueGroup:         cfg.NATSQueueGroup,
			ResilienceExecutor: natsExecutor,
			Logger:             logger,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init retrieval log publisher: %w", err)
		}
		app.closers = append(app.closers, queue.Close)
		publisher = queue
	} else {
		logger.Info("retrieval_log_publishing_disabled", "reason", "NATS_URL is empty")
	}

	backends := make([]ports.CorpusBackend, 0, 4)
	for _, repo := range postgres.NewCorpusRepositories(db) {
		backends = append(backends, repo)
	}

	options := cfg.RetrievalOptions()
	retriever, err := usecase.NewMultiStageRetriever(backends, embedder, app.RetrievalMetrics, logger, options)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init multi-stage retriever: %w", err)
	}
	recommender, err := usecase.NewAgencyRecommender(options.RuleWeight, options.StatWeight)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init agency recommender: %w", err)
	}
	if len(cfg.AgencyKeywords) > 0 {
		if recommender, err = recommender.WithKeywords(cfg.AgencyKeywords); err != nil {
			app.Close()
			return nil, fmt.Errorf("apply agency keywords: %w", err)
		}
	}

	app.Retrieval, err = usecase.NewRetrievalUseCase(retriever, recommender, embedder, publisher, app.RetrievalMetrics, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init retrieval use case: %w", err)
	}

	llmExecutor := resilience.NewExecutor(resilience.DefaultConfig(), logger)
	llmExecutor.OnStateChange(app.RetrievalMetrics.ObserveBreaker)
	app.Chat = usecase.NewChatUseCase(app.Retrieval, app.newGenerator(llmExecutor), cfg.CitationLimit, logger)

	chunks := postgres.NewChunkRepository(db)
	app.Documents = usecase.NewDocumentChunksUseCase(chunks)
	app.Health = chunks

	return app, nil
}

// Worker holds the retrieval log consumer side.
type Worker struct {
	Config   config.Config
	Queue    ports.RetrievalLogSubscriber
	Recorder *usecase.RetrievalLogUseCase
	Metrics  *metrics.WorkerMetrics

	closers []func()
}

func NewWorker(ctx context.Context, cfg config.Config, logger *slog.Logger, service string) (*Worker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.NATSURL == "" {
		return nil, fmt.Errorf("worker requires NATS_URL")
	}

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		QueueGroup:         cfg.NATSQueueGroup,
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig(), logger),
		Logger:             logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init retrieval log subscriber: %w", err)
	}

	return &Worker{
		Config:   cfg,
		Queue:    queue,
		Recorder: usecase.NewRetrievalLogUseCase(postgres.NewRetrievalLogRepository(db)),
		Metrics:  metrics.NewWorkerMetrics(service),
		closers: []func(){
			queue.Close,
			func() { _ = db.Close() },
		},
	}, nil
}

func (w *Worker) Close() {
	for _, closeFn := range w.closers {
		closeFn()
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func openDatabase(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sql.DB, error) {
	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN, postgres.PoolConfig{MaxOpenConns: cfg.PostgresMaxConns})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.EnsureSchema {
		if err := postgres.EnsureSchema(ctx, db, cfg.EmbeddingDimension); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		logger.Info("schema_ensured", "dimension", cfg.EmbeddingDimension)
	}
	return db, nil
}

func (a *App) newEmbedder(ctx context.Context, executor *resilience.Executor) (ports.Embedder, error) {
	cfg := a.Config
	var next ports.Embedder
	switch cfg.EmbeddingProvider {
	case config.EmbeddingNone:
		a.Logger.Warn("dense_retrieval_disabled", "reason", "EMBEDDING_PROVIDER is none")
		return nil, nil
	case config.EmbeddingOpenAI:
		next = openaiembed.NewEmbedder(openaiembed.Config{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.EmbeddingModel,
			Dimension: cfg.EmbeddingDimension,
			Executor:  executor,
		})
	case config.EmbeddingOllama:
		next = ollama.NewEmbedder(ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.EmbeddingModel, executor))
	default:
		next = remote.New(cfg.EmbeddingURL, remote.Options{
			Timeout:   cfg.EmbeddingTimeout,
			Dimension: cfg.EmbeddingDimension,
			Executor:  executor,
		})
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			a.Logger.Warn("embedding_cache_redis_unreachable", "error", err)
		}
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
	}

	return cache.New(next, cache.Options{
		Namespace: cfg.EmbeddingProvider + ":" + cfg.EmbeddingModel + ":" + strconv.Itoa(cfg.EmbeddingDimension),
		Size:      cfg.EmbeddingCacheSize,
		TTL:       cfg.EmbeddingCacheTTL,
		Redis:     redisClient,
		Logger:    a.Logger,
	}), nil
}

func (a *App) newGenerator(executor *resilience.Executor) ports.AnswerGenerator {
	cfg := a.Config
	switch cfg.LLMProvider {
	case config.LLMOllama:
		return ollama.NewGenerator(ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.EmbeddingModel, executor))
	case config.LLMStub:
		return openaillm.NewGenerator(openaillm.Config{Executor: executor})
	default:
		generator := openaillm.NewGenerator(openaillm.Config{
			APIKey:   cfg.OpenAIAPIKey,
			BaseURL:  cfg.OpenAIBaseURL,
			Model:    cfg.OpenAIModel,
			Executor: executor,
		})
		if generator.StubMode() {
			a.Logger.Warn("answer_generation_stubbed", "reason", "OPENAI_API_KEY is empty")
		}
		return generator
	}
}
