package admin

import (
	"context"
	"errors"
	"fmt"
	"log"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/cloo-solutions/helpdesk-learning/internal/cache"
	"github.com/cloo-solutions/helpdesk-learning/internal/config"
	"github.com/cloo-solutions/helpdesk-learning/internal/database"
	"github.com/cloo-solutions/helpdesk-learning/internal/governor"
	"github.com/cloo-solutions/helpdesk-learning/internal/jobs"
	"github.com/cloo-solutions/helpdesk-learning/internal/openai"
	"github.com/cloo-solutions/helpdesk-learning/internal/repository"
	"github.com/cloo-solutions/helpdesk-learning/internal/service"
	"github.com/cloo-solutions/helpdesk-learning/internal/storage"
)

// ErrNoProvider is returned when a command needs the AI provider but no key is set
var ErrNoProvider = errors.New("HELPDESK_OPENAI_API_KEY is required to run the learning pipeline")

// engine is the wired learning and decision core shared by serve and the
// learn commands
type engine struct {
	settings    *service.SettingsService
	governor    *governor.Governor
	governorSvc *service.GovernorService
	learning    *service.LearningService
	confidence  *service.ConfidenceEngine
	feedback    *service.FeedbackService
	articles    *service.ArticleService
	archiver    *service.ArticleArchiver
	sweep       *jobs.LearningSweep

	redis *redis.Client
}

// buildEngine wires repositories, the governor, the provider gateway and the
// services over pool. The archiver is nil unless S3 is configured.
func buildEngine(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (*engine, error) {
	if !cfg.HasOpenAI() {
		return nil, ErrNoProvider
	}

	e := &engine{}

	gov, settings, err := buildGovernor(ctx, cfg, pool)
	if err != nil {
		return nil, err
	}
	e.governor = gov
	e.settings = settings
	e.governorSvc = service.NewGovernorService(gov, settings)

	provider := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		EmbeddingModel:      openaisdk.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		CompletionModel:     cfg.CompletionModel,
		Timeout:             cfg.ProviderTimeout,
	})

	var embedder service.EmbeddingClient = service.NewGovernedEmbeddingClient(provider, gov)
	if cfg.HasRedis() {
		client, err := cache.NewClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		embeddings := cache.NewEmbeddingCache(client, cfg.EmbeddingModel, cfg.EmbeddingCacheTTL)
		if err := embeddings.Ping(ctx); err != nil {
			log.Printf("redis unavailable, embedding cache disabled: %v", err)
			_ = client.Close()
		} else {
			embedder = service.NewCachedEmbeddingClient(embedder, embeddings)
			e.redis = client
			log.Println("embedding cache enabled")
		}
	}
	completer := service.NewGovernedCompletionClient(provider, gov)

	tickets := repository.NewTicketRepository(pool)
	queue := repository.NewLearningQueueRepository(pool)
	articles := repository.NewArticleRepository(pool)
	index := repository.NewArticleIndex(pool)
	feedback := repository.NewFeedbackRepository(pool)
	tx := repository.NewTxRunner(pool)

	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		e.archiver = service.NewArticleArchiver(s3Client, articles)
	}

	extractor := service.NewPatternExtractor(completer)
	generator := service.NewArticleGenerator(completer, embedder, articles, index, tx, e.archiver)

	e.learning = service.NewLearningService(tickets, queue, extractor, generator, embedder, tx).WithSeedDays(cfg.SeedDays)
	e.confidence = service.NewConfidenceEngine(embedder, index, articles)
	e.feedback = service.NewFeedbackService(feedback, articles)
	e.articles = service.NewArticleService(tx, e.archiver)
	e.sweep = jobs.NewLearningSweep(queue, e.learning, settings, gov, jobs.SweepConfig{
		BatchSize:   cfg.SweepBatchSize,
		Concurrency: cfg.SweepConcurrency,
		StaleAfter:  cfg.StaleAfter,
	})

	return e, nil
}

// Close releases the engine's connections other than the database pool
func (e *engine) Close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
}

// buildGovernor starts the governor from the stored workflow settings, or
// from the environment defaults when none were saved. HELPDESK_FREE_TIER pins
// the free tier on in every settings snapshot.
func buildGovernor(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (*governor.Governor, *service.SettingsService, error) {
	defaults, err := cfg.WorkflowDefaults()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid workflow defaults: %w", err)
	}
	settings := service.NewSettingsService(repository.NewSettingsRepository(pool), defaults).WithFreeTier(cfg.FreeTier)

	snapshot, err := settings.Snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}

	gov, err := governor.New(snapshot.RateLimit, governor.WithPrices(cfg.Prices()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create governor: %w", err)
	}
	log.Printf("governor: %s", gov)

	return gov, settings, nil
}

// queueService returns a LearningService that only reads the queue. The
// pipeline parts are left unwired, so it must not learn or seed.
func queueService(pool *pgxpool.Pool) *service.LearningService {
	return service.NewLearningService(
		repository.NewTicketRepository(pool),
		repository.NewLearningQueueRepository(pool),
		nil, nil, nil,
		repository.NewTxRunner(pool),
	)
}

func getDBPool(ctx context.Context) (*pgxpool.Pool, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := database.NewPool(ctx, database.Config{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DatabaseMaxConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return pool, cfg, nil
}
