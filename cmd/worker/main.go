package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/propcrm/realty-agent/internal/config"
	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/logger"
	"github.com/propcrm/realty-agent/internal/queue"
	"github.com/propcrm/realty-agent/internal/services/ai"
	"github.com/propcrm/realty-agent/internal/services/embedding"
	"github.com/propcrm/realty-agent/internal/services/semantic"
	"github.com/propcrm/realty-agent/internal/services/vectorstore"
	"github.com/propcrm/realty-agent/internal/workers"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging of embedding calls")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger("realty-worker", debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.String("embedding_model", cfg.EmbeddingModel),
		zap.String("backfill_schedule", cfg.BackfillSchedule),
	)

	if cfg.OpenAIKey == "" {
		zapLogger.Fatal("openai_api_key_not_configured")
	}
	if err := cfg.RequireQueue(); err != nil {
		zapLogger.Fatal("job_queue_not_configured", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	jobQueue, err := queue.ConnectWithRetry(ctx, cfg.RabbitMQURL, 10, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq", zap.Int("prefetch", cfg.RabbitMQPrefetch))

	contactRepo := database.NewContactRepository(db)
	provider := ai.NewOpenAIProvider(ai.OpenAIOptions{
		APIKey:         cfg.OpenAIKey,
		BaseURL:        cfg.AIBaseURL,
		EmbeddingModel: cfg.EmbeddingModel,
		Logger:         zapLogger,
		DebugMode:      debugMode,
	})
	embedder := embedding.NewService(provider, embedding.Options{
		QueryPrefix:    cfg.EmbeddingQueryPrefix,
		DocumentPrefix: cfg.EmbeddingDocumentPrefix,
	}, zapLogger)

	// A nil *LeadStore must not end up inside the interface
	var leadIndex semantic.LeadIndex
	if cfg.QdrantURL != "" {
		store, err := vectorstore.NewLeadStore(vectorstore.Options{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dimension:  embedding.Dimensions,
		}, contactRepo, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_qdrant", zap.Error(err))
		}
		defer func() { _ = store.Close() }()
		leadIndex = store
	}

	indexer := semantic.NewIndexer(
		database.NewPropertyRepository(db),
		database.NewDevelopmentRepository(db),
		contactRepo,
		embedder,
		leadIndex,
		zapLogger,
	)
	worker := workers.NewEmbeddingWorker(indexer, jobQueue, zapLogger)

	sweeper := workers.NewSweeper(queue.NewScheduler(jobQueue), zapLogger)
	if err := sweeper.Start(ctx, cfg.BackfillSchedule); err != nil {
		zapLogger.Fatal("invalid_backfill_schedule", zap.Error(err))
	}
	defer sweeper.Stop()

	collector := queue.NewGarbageCollector(jobQueue, time.Hour, 24*time.Hour, zapLogger)
	go func() {
		if err := collector.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	msgChan, errChan, err := jobQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("failed_to_start_consuming", zap.Error(err))
	}
	zapLogger.Info("worker_started")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range msgChan {
			if err := worker.ProcessJob(ctx, msg); err != nil {
				zapLogger.Error("failed_to_process_job",
					zap.String("job_id", msg.GetJob().ID.String()),
					zap.String("job_type", string(msg.GetJob().Type)),
					zap.Bool("redelivered", msg.Redelivered()),
					zap.Error(err),
				)
			}
		}
	}()

	go func() {
		for err := range errChan {
			zapLogger.Error("queue_error", zap.Error(err))
			// The consumer is gone; let the orchestrator restart the process
			sigChan <- syscall.SIGTERM
		}
	}()

	<-sigChan
	zapLogger.Info("worker_shutting_down")
	cancel()
	<-done

	zapLogger.Info("worker_stopped")
}
