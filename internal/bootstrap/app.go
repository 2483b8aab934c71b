package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"ragpool/internal/ai"
	"ragpool/internal/app"
	"ragpool/internal/cache"
	"ragpool/internal/config"
	"ragpool/internal/index"
	"ragpool/internal/model"
	mysqlClient "ragpool/internal/platform/mysql"
	rabbitmqClient "ragpool/internal/platform/rabbitmq"
	redisClient "ragpool/internal/platform/redis"
	"ragpool/internal/quota"
	"ragpool/internal/repository"
	"ragpool/internal/worker"
)

type App struct {
	Config *config.Config
	MySQL  *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection

	SessionRepo *repository.SessionRepository
	Pool        *app.PoolService
	Retrieval   *app.RetrievalService
	Context     *app.ContextService
	Deletion    *app.DeletionService

	EmbedWorker *worker.EmbedWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(
		&model.Session{},
		&model.Document{},
		&model.DocumentActivation{},
		&model.Chunk{},
		&model.Embedding{},
		&model.DerivedFact{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	docRepo := repository.NewDocumentRepository(mysqlDB)
	chunkRepo := repository.NewChunkRepository(mysqlDB)
	embRepo := repository.NewEmbeddingRepository(mysqlDB)
	sessionRepo := repository.NewSessionRepository(mysqlDB)
	factRepo := repository.NewFactRepository(mysqlDB)

	idx := index.NewManager()
	sectionCache := cache.NewSectionCache(redisCli, time.Duration(cfg.Redis.SectionTTLSeconds)*time.Second)
	engine := newEmbeddingEngine(cfg.Embedding)
	publisher := rabbitmqClient.NewEmbedPublisher(mqConn, cfg.RabbitMQ.EmbedQueue)

	limits := quota.Limits{
		MaxDocumentBytes: cfg.Pool.MaxDocumentBytes,
		MaxPoolDocuments: cfg.Pool.MaxPoolDocuments,
		MaxPoolBytes:     cfg.Pool.MaxPoolBytes,
		SessionDocLimits: map[model.Tier]int64{
			model.TierFree:  cfg.Pool.SessionDocLimitFree,
			model.TierJive:  cfg.Pool.SessionDocLimitJive,
			model.TierJigga: cfg.Pool.SessionDocLimitJigg,
		},
		AllowedMimeTypes: mimeTypeSet(cfg.Pool.AllowedMimeTypes),
	}

	poolService := app.NewPoolService(docRepo, chunkRepo, sessionRepo, idx, limits, publisher, sectionCache)
	retrievalService := app.NewRetrievalService(
		docRepo, chunkRepo, embRepo, idx, engine,
		time.Duration(cfg.Retrieval.TimeoutMillis)*time.Millisecond,
	)
	contextService := app.NewContextService(sessionRepo, retrievalService, sectionCache, cfg.Retrieval.TopK)
	deletionService := app.NewDeletionService(docRepo, sessionRepo, factRepo, idx, sectionCache)

	embedWorker := worker.NewEmbedWorker(mqConn, retrievalService, cfg.RabbitMQ.EmbedQueue)
	if err := embedWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start embed worker failed: %w", err)
	}

	return &App{
		Config:      cfg,
		MySQL:       mysqlDB,
		Redis:       redisCli,
		MQConn:      mqConn,
		SessionRepo: sessionRepo,
		Pool:        poolService,
		Retrieval:   retrievalService,
		Context:     contextService,
		Deletion:    deletionService,
		EmbedWorker: embedWorker,
		StartedAt:   time.Now(),
	}, nil
}

// newEmbeddingEngine picks the configured backend; nil means keyword-only
// retrieval for everyone.
func newEmbeddingEngine(cfg config.EmbeddingConfig) ai.EmbeddingEngine {
	switch cfg.Provider {
	case "openai":
		return ai.NewRemoteEmbedder(ai.RemoteConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
		})
	case "onnx":
		return ai.NewLocalEmbedder(cfg.ModelPath, cfg.VocabPath, cfg.ONNXSharedLibPath)
	default:
		return nil
	}
}

func mimeTypeSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

func (a *App) Close() error {
	var closeErr error
	if a.EmbedWorker != nil {
		a.EmbedWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
