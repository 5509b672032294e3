package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/Ruanpiscitelli/midiaapiv1/internal/api/handler"
	"github.com/Ruanpiscitelli/midiaapiv1/internal/api/router"
	"github.com/Ruanpiscitelli/midiaapiv1/internal/composer"
	"github.com/Ruanpiscitelli/midiaapiv1/internal/config"
	"github.com/Ruanpiscitelli/midiaapiv1/internal/jobstore"
	"github.com/Ruanpiscitelli/midiaapiv1/internal/orchestrator"
	"github.com/Ruanpiscitelli/midiaapiv1/shared/logger"
	"github.com/Ruanpiscitelli/midiaapiv1/shared/objectstore"
	"github.com/Ruanpiscitelli/midiaapiv1/shared/postgresql"
	"github.com/Ruanpiscitelli/midiaapiv1/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	storeCtx, storeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	objStore, err := objectstore.NewClient(storeCtx, &objectstore.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		UseSSL:    cfg.Storage.UseSSL,
	}, appLogger.Logger)
	storeCancel()
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	store := jobstore.New(dbClient.GetDB(), appLogger.Logger)
	dispatcher := orchestrator.NewAMQPDispatcher(rabbitClient, appLogger.Logger)

	// The API process never finalizes jobs itself (that happens in the
	// worker that resolves the last segment), but the orchestrator wiring
	// is identical in both services.
	comp := composer.New(objStore, composer.Config{
		WorkDir: cfg.Pipeline.WorkDir,
		Width:   cfg.Synthesis.Image.Width,
		Height:  cfg.Synthesis.Image.Height,
		FPS:     30,
	}, appLogger.Logger)

	orch := orchestrator.New(store, dispatcher, comp, orchestrator.Config{
		MinSuccessRatio: cfg.Pipeline.MinSuccessRatio,
		Voices:          cfg.Synthesis.Voice.AvailableVoices,
	}, appLogger.Logger)

	r := initRouter(cfg, appLogger.Logger, orch, objStore, dbClient, rabbitClient)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	cleanup := func() {
		cancel()
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	defer cleanup()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(
	cfg *config.Config,
	logger *slog.Logger,
	orch handler.VideoOrchestrator,
	objStore *objectstore.Client,
	dbClient *postgresql.Client,
	rabbitClient *rabbitmq.Client,
) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	handlerDeps := &handler.Dependencies{
		Logger:        logger,
		Orchestrator:  orch,
		Signer:        objStore,
		Voices:        cfg.Synthesis.Voice.AvailableVoices,
		PresignExpiry: cfg.Storage.PresignExpiry,
		APIKey:        cfg.App.APIKey,
		HealthChecks: map[string]func(context.Context) error{
			"database": dbClient.HealthCheck,
			"storage":  objStore.HealthCheck,
			"rabbitmq": func(context.Context) error {
				if !rabbitClient.IsConnected() {
					return fmt.Errorf("rabbitmq connection lost")
				}
				return nil
			},
		},
	}

	return router.SetupRouter(handlerDeps)
}
