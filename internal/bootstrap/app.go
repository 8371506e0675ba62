package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"docchat/internal/ai"
	"docchat/internal/app"
	"docchat/internal/cache"
	"docchat/internal/config"
	"docchat/internal/model"
	"docchat/internal/pkg/secretbox"
	"docchat/internal/platform/logger"
	mysqlClient "docchat/internal/platform/mysql"
	"docchat/internal/platform/qdrant"
	rabbitmqClient "docchat/internal/platform/rabbitmq"
	redisClient "docchat/internal/platform/redis"
	"docchat/internal/realtime"
	"docchat/internal/repository"
)

// App owns every infrastructure client and the services wired on top of
// them. Each process picks the parts it needs.
type App struct {
	Config *config.Config
	Log    *logger.Logger
	MySQL  *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection
	Vector *qdrant.VectorStore

	Topology    rabbitmqClient.Topology
	Publisher   *rabbitmqClient.AwaitingPublisher
	Deliverer   *realtime.RedisDeliverer
	Chats       *app.ChatService
	Credentials *app.CredentialService
	Connections *app.ConnectionRegistry
	Documents   *app.DocumentService
	Ingest      *app.IngestService
	QueryEngine *app.QueryEngine

	Orchestrator *app.Orchestrator

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Log: log, StartedAt: time.Now()}
	if err := a.connect(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.wire(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	if err := mysqlDB.AutoMigrate(model.All()...); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, a.Log, redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	a.Redis = redisCli

	mqConn, err := rabbitmqClient.New(ctx, a.Log, cfg.RabbitMQ.URL, cfg.App.Name)
	if err != nil {
		return err
	}
	a.MQConn = mqConn

	vector, err := qdrant.New(a.Log, qdrant.Config{
		URL:        cfg.Qdrant.URL,
		APIKey:     cfg.Qdrant.APIKey,
		Collection: cfg.Qdrant.Collection,
		VectorDim:  cfg.Qdrant.VectorDim,
	})
	if err != nil {
		return err
	}
	if err := vector.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure qdrant collection failed: %w", err)
	}
	a.Vector = vector
	return nil
}

func (a *App) wire() error {
	cfg := a.Config

	box, err := secretbox.New(cfg.Crypto.CredentialKey)
	if err != nil {
		return err
	}

	chatRepo := repository.NewChatRepository(a.MySQL)
	documentRepo := repository.NewDocumentRepository(a.MySQL)
	fileRepo := repository.NewFileRepository(a.MySQL)
	connectionRepo := repository.NewConnectionRepository(a.MySQL)
	organizationRepo := repository.NewOrganizationRepository(a.MySQL)

	a.Topology = rabbitmqClient.NewTopology(cfg.RabbitMQ.AwaitingQueue, cfg.RabbitMQ.RetryDelayMS)
	a.Publisher = rabbitmqClient.NewAwaitingPublisher(a.MQConn, a.Topology,
		time.Duration(cfg.RabbitMQ.PublishTimeoutMS)*time.Millisecond)
	a.Deliverer = realtime.NewRedisDeliverer(a.Redis, cfg.Redis.ConnectionChannelPrefix)

	provider := ai.NewProvider(
		ai.NewOpenAICompatibleClient(),
		ai.ChatConfig{BaseURL: cfg.LLM.BaseURL, Model: cfg.LLM.Model, Temperature: cfg.LLM.Temperature},
		ai.ChatConfig{BaseURL: cfg.LLM.BaseURL, Model: cfg.LLM.SummaryModel, Temperature: cfg.LLM.Temperature},
		ai.EmbeddingConfig{BaseURL: cfg.LLM.BaseURL, Model: cfg.LLM.EmbeddingModel},
	)
	summaryCache := cache.NewSummaryCache(a.Redis, time.Duration(cfg.Redis.SummaryTTLSeconds)*time.Second)

	a.Chats = app.NewChatService(a.Log, chatRepo, documentRepo, a.Publisher)
	a.Credentials = app.NewCredentialService(a.Log, organizationRepo, box)
	a.Connections = app.NewConnectionRegistry(a.Log, connectionRepo, a.Deliverer)
	a.Documents = app.NewDocumentService(a.Log, documentRepo, fileRepo, summaryCache)
	a.Ingest = app.NewIngestService(a.Log, fileRepo, a.Documents, a.Credentials, provider, a.Vector,
		app.NewSummarizer(a.Log, app.SummaryOptions{
			ThresholdChars:   cfg.Summary.ThresholdChars,
			MaxClusters:      cfg.Summary.MaxClusters,
			RechunkChars:     cfg.Summary.RechunkChars,
			Seed:             cfg.Summary.Seed,
			KMeansIterations: cfg.Summary.KMeansIterations,
		}),
		cfg.Storage.Root,
	)
	a.QueryEngine = app.NewQueryEngine(a.Log, app.NewVectorRetriever(a.Vector, provider), a.Documents, provider)
	a.Orchestrator = app.NewOrchestrator(a.Log, a.Credentials, a.Chats, a.Connections, a.QueryEngine, app.OrchestratorOptions{
		MaxAttempts:       cfg.Worker.MaxAttempts,
		RetryBackoff:      cfg.Worker.RetryBackoff(),
		InvocationTimeout: cfg.Worker.InvocationTimeout(),
	})
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
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
	if a.Log != nil {
		a.Log.Sync()
	}
	return closeErr
}
