package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/panjf2000/ants/v2"

	"github.com/Ruanpiscitelli/midiaapiv1/internal/composer"
	"github.com/Ruanpiscitelli/midiaapiv1/internal/config"
	"github.com/Ruanpiscitelli/midiaapiv1/internal/jobstore"
	"github.com/Ruanpiscitelli/midiaapiv1/internal/orchestrator"
	"github.com/Ruanpiscitelli/midiaapiv1/internal/synthesis"
	"github.com/Ruanpiscitelli/midiaapiv1/internal/worker"
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

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
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

	// One pool caps concurrent model calls across every in-flight segment;
	// the synthesis backends share a single GPU.
	gpuPool, err := ants.NewPool(cfg.Pipeline.GPUSlots)
	if err != nil {
		return fmt.Errorf("failed to create GPU pool: %w", err)
	}

	store := jobstore.New(dbClient.GetDB(), appLogger.Logger)
	dispatcher := orchestrator.NewAMQPDispatcher(rabbitClient, appLogger.Logger)

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

	imageBackend := synthesis.NewHTTPImageBackend(synthesis.ImageBackendConfig{
		APIURL: cfg.Synthesis.Image.APIURL,
		APIKey: cfg.Synthesis.Image.APIKey,
		Width:  cfg.Synthesis.Image.Width,
		Height: cfg.Synthesis.Image.Height,
		Steps:  cfg.Synthesis.Image.Steps,
	}, appLogger.Logger)

	voiceBackend := synthesis.NewHTTPVoiceBackend(synthesis.VoiceBackendConfig{
		APIURL:   cfg.Synthesis.Voice.APIURL,
		APIKey:   cfg.Synthesis.Voice.APIKey,
		Language: cfg.Synthesis.Voice.Language,
		Speed:    cfg.Synthesis.Voice.Speed,
	}, appLogger.Logger)

	mediaProcessor := worker.NewMediaProcessor(
		imageBackend,
		voiceBackend,
		objStore,
		gpuPool,
		synthesis.RetryPolicy{
			MaxAttempts:       cfg.Synthesis.Retry.MaxAttempts,
			InitialDelay:      cfg.Synthesis.Retry.InitialDelay,
			BackoffMultiplier: cfg.Synthesis.Retry.BackoffMultiplier,
		},
		appLogger.Logger,
	)

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:             appLogger.Logger,
		RabbitClient:       rabbitClient,
		Store:              store,
		Completer:          orch,
		Processor:          mediaProcessor,
		Concurrency:        cfg.Worker.Concurrency,
		PrefetchCount:      cfg.Worker.PrefetchCount,
		SegmentTimeout:     cfg.Worker.SegmentTimeout,
		HeartbeatInterval:  cfg.Worker.HeartbeatInterval,
		MaxSegmentAttempts: cfg.Worker.MaxSegmentAttempts,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	gpuPool.Release()

	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	cleanup()

	appLogger.Info("Worker service shutdown complete")
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
