package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	app_service "address-intelligence/internal/application/service"
	"address-intelligence/internal/domain/entity"
	"address-intelligence/internal/domain/repository"
	domain_service "address-intelligence/internal/domain/service"
	"address-intelligence/internal/infrastructure/api"
	"address-intelligence/internal/infrastructure/blockchain"
	"address-intelligence/internal/infrastructure/config"
	"address-intelligence/internal/infrastructure/database"
	"address-intelligence/internal/infrastructure/directory"
	"address-intelligence/internal/infrastructure/llm"
	"address-intelligence/internal/infrastructure/logger"
	"address-intelligence/internal/infrastructure/messaging"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const (
	storageNeo4J   = "neo4j"
	directoryRedis = "redis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.NewLogger(cfg.App.LogLevel)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	app := fx.New(
		fx.Supply(cfg),
		fx.Supply(log),
		fx.Supply(&cfg.NATS),
		fx.Supply(&cfg.Neo4J),
		fx.Supply(&cfg.HTTP),

		// Infrastructure providers
		fx.Provide(
			database.NewNeo4JClient,
			provideProfileRepository,
			provideContactDirectory,
			provideActivityLogger,
			provideLLMService,
			provideFilterTemplates,
			func() domain_service.AddressClassifier { return blockchain.NewAddressCodec() },
			api.NewHub,
			provideKafkaPublisher,
			provideResponseHooks,
			messaging.NewNATSConsumer,
		),

		// Domain services
		fx.Provide(
			func(cfg *config.Config) *domain_service.ScoringEngine {
				return domain_service.NewScoringEngine(cfg.Intelligence.ViralNetworkCap)
			},
			func(cfg *config.Config, classifier domain_service.AddressClassifier, dir domain_service.ContactDirectory, log *logger.Logger) *domain_service.AddressExtractor {
				return domain_service.NewAddressExtractor(classifier, dir, nil, cfg.Intelligence.LookupTimeout, log)
			},
		),

		// Application providers
		fx.Provide(
			app_service.NewIntelligenceService,
			func(cfg *config.Config, x *domain_service.AddressExtractor, intel *app_service.IntelligenceService, activity domain_service.ActivityLogger, hooks []domain_service.ResponseHook, log *logger.Logger) *app_service.BridgeService {
				return app_service.NewBridgeService(x, intel, activity, hooks, cfg.Intelligence.IngestConcurrency, log)
			},
			func(cfg *config.Config, repo repository.ProfileRepository, svc domain_service.LLMService, templates []entity.FilterTemplate, log *logger.Logger) *app_service.GroupAnalysisService {
				return app_service.NewGroupAnalysisService(repo, svc, cfg.Intelligence.LLMTimeout, templates, log)
			},
			api.NewRouter,
		),

		// Lifecycle hooks
		fx.Invoke(startStorage),
		fx.Invoke(startBridge),
		fx.Invoke(startHTTPServer),

		fx.WithLogger(func() fxevent.Logger {
			return fxevent.NopLogger
		}),
	)

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		log.Error("Failed to start application", zap.Error(err))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down application...")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Stop(stopCtx); err != nil {
		log.Error("Failed to stop application gracefully", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Application stopped successfully")
}

func provideProfileRepository(cfg *config.Config, client *database.Neo4JClient, log *logger.Logger) repository.ProfileRepository {
	if cfg.Intelligence.Storage == storageNeo4J {
		return database.NewNeo4JProfileRepository(client, log)
	}
	return database.NewMemoryProfileRepository()
}

// directoryResult lets the redis client reach the lifecycle when selected
type directoryResult struct {
	fx.Out

	Directory domain_service.ContactDirectory
	Redis     *directory.RedisContactDirectory
}

func provideContactDirectory(cfg *config.Config) directoryResult {
	if cfg.Intelligence.Directory == directoryRedis {
		r := directory.NewRedisContactDirectory(&cfg.Redis)
		return directoryResult{Directory: r, Redis: r}
	}
	return directoryResult{Directory: directory.NewMemoryContactDirectory()}
}

type activityResult struct {
	fx.Out

	Activity domain_service.ActivityLogger
	Postgres *database.PostgresActivityLogger
}

func provideActivityLogger(cfg *config.Config, log *logger.Logger) activityResult {
	if cfg.Postgres.Enabled {
		p := database.NewPostgresActivityLogger(&cfg.Postgres, log)
		return activityResult{Activity: p, Postgres: p}
	}
	return activityResult{Activity: logger.NewActivityLog(log)}
}

func provideLLMService(cfg *config.Config, log *logger.Logger) domain_service.LLMService {
	return llm.NewOpenAIService(&cfg.LLM, cfg.Intelligence.LLMTimeout, log)
}

func provideFilterTemplates(cfg *config.Config) ([]entity.FilterTemplate, error) {
	return config.LoadFilterTemplates(cfg.Intelligence.TemplatesFile)
}

func provideKafkaPublisher(cfg *config.Config, log *logger.Logger) (*messaging.KafkaHookPublisher, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	return messaging.NewKafkaHookPublisher(&cfg.Kafka, log)
}

func provideResponseHooks(hub *api.Hub, kafka *messaging.KafkaHookPublisher) []domain_service.ResponseHook {
	hooks := []domain_service.ResponseHook{hub}
	if kafka != nil {
		hooks = append(hooks, kafka)
	}
	return hooks
}

type storageParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Log       *logger.Logger
	Neo4J     *database.Neo4JClient
	Redis     *directory.RedisContactDirectory `optional:"true"`
	Postgres  *database.PostgresActivityLogger `optional:"true"`
	Kafka     *messaging.KafkaHookPublisher    `optional:"true"`
}

// startStorage connects the selected backends before anything serves traffic
func startStorage(p storageParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if p.Config.Intelligence.Storage == storageNeo4J {
				if err := p.Neo4J.Connect(ctx); err != nil {
					return fmt.Errorf("failed to connect to Neo4J: %w", err)
				}
			}
			if p.Redis != nil {
				if err := p.Redis.Ping(ctx); err != nil {
					return fmt.Errorf("failed to connect to Redis: %w", err)
				}
			}
			if p.Postgres != nil {
				if err := p.Postgres.Connect(ctx); err != nil {
					return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
				}
			}
			p.Log.Info("Storage ready",
				zap.String("profiles", p.Config.Intelligence.Storage),
				zap.String("directory", p.Config.Intelligence.Directory),
				zap.Bool("postgres", p.Postgres != nil),
				zap.Bool("kafka", p.Kafka != nil))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if p.Kafka != nil {
				if err := p.Kafka.Close(); err != nil {
					p.Log.Error("Failed to close Kafka producer", zap.Error(err))
				}
			}
			if p.Postgres != nil {
				p.Postgres.Close()
			}
			if p.Redis != nil {
				if err := p.Redis.Close(); err != nil {
					p.Log.Error("Failed to close Redis client", zap.Error(err))
				}
			}
			if err := p.Neo4J.Close(ctx); err != nil {
				p.Log.Error("Failed to close Neo4J connection", zap.Error(err))
			}
			return nil
		},
	})
}

// startBridge feeds consumed messages through the bridge and runs the hub
func startBridge(
	lifecycle fx.Lifecycle,
	consumer *messaging.NATSConsumer,
	bridge *app_service.BridgeService,
	hub *api.Hub,
	cfg *config.Config,
	log *logger.Logger,
) {
	runCtx, cancel := context.WithCancel(context.Background())
	hubCtx, stopHub := context.WithCancel(context.Background())
	var wg, hubWG sync.WaitGroup

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("NATS Configuration",
				zap.String("url", cfg.NATS.URL),
				zap.String("stream_name", cfg.NATS.StreamName),
				zap.String("subject_prefix", cfg.NATS.SubjectPrefix),
				zap.Bool("enabled", cfg.NATS.Enabled))

			if err := consumer.Connect(ctx); err != nil {
				cancel()
				stopHub()
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}

			hubWG.Add(1)
			go func() {
				defer hubWG.Done()
				hub.Run(hubCtx)
			}()

			wg.Add(1)
			go func() {
				defer wg.Done()
				processMessages(runCtx, consumer, bridge, cfg.App.WorkerPoolSize, log)
			}()

			log.Info("Bridge started", zap.Int("workers", cfg.App.WorkerPoolSize))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Stopping bridge...")
			if err := consumer.Disconnect(); err != nil {
				log.Error("Failed to disconnect from NATS", zap.Error(err))
			}
			cancel()
			wg.Wait()
			// Pending hooks still need the hub
			bridge.Drain()
			stopHub()
			hubWG.Wait()
			return nil
		},
	})
}

// processMessages fans consumed messages out to a fixed worker pool
func processMessages(
	ctx context.Context,
	consumer *messaging.NATSConsumer,
	bridge *app_service.BridgeService,
	workers int,
	log *logger.Logger,
) {
	if workers <= 0 {
		workers = 1
	}
	msgChan := consumer.Messages()
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log.Debug("Starting message worker", zap.Int("worker_id", workerID))
			for {
				select {
				case <-ctx.Done():
					return
				case msg := <-msgChan:
					if msg == nil {
						continue
					}
					bridge.HandleMessage(ctx, msg)
				}
			}
		}(i)
	}

	wg.Wait()
}

// startHTTPServer serves the REST API and the trigger stream
func startHTTPServer(
	lifecycle fx.Lifecycle,
	router *gin.Engine,
	cfg *config.Config,
	log *logger.Logger,
) {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting HTTP server...", zap.Int("port", cfg.HTTP.Port))
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("HTTP server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Stopping HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	})
}
