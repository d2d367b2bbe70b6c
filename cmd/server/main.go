package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/propcrm/realty-agent/internal/config"
	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/handlers"
	"github.com/propcrm/realty-agent/internal/logger"
	"github.com/propcrm/realty-agent/internal/middleware"
	"github.com/propcrm/realty-agent/internal/queue"
	"github.com/propcrm/realty-agent/internal/services/agent"
	"github.com/propcrm/realty-agent/internal/services/ai"
	"github.com/propcrm/realty-agent/internal/services/auth"
	"github.com/propcrm/realty-agent/internal/services/availability"
	"github.com/propcrm/realty-agent/internal/services/calendarsync"
	"github.com/propcrm/realty-agent/internal/services/embedding"
	"github.com/propcrm/realty-agent/internal/services/locks"
	"github.com/propcrm/realty-agent/internal/services/messaging"
	"github.com/propcrm/realty-agent/internal/services/semantic"
	"github.com/propcrm/realty-agent/internal/services/tools"
	"github.com/propcrm/realty-agent/internal/services/vectorstore"
	"github.com/propcrm/realty-agent/internal/telemetry"
)

const (
	serviceName     = "realty-agent"
	maxBodyBytes    = 1 << 20
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 30 * time.Second
	queueAttempts   = 10
	lockTTL         = 2 * time.Minute
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging of model calls")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(serviceName, debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("ai_model", cfg.AIModel),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	if cfg.OpenAIKey == "" {
		zapLogger.Fatal("openai_api_key_not_configured")
	}
	if err := cfg.RequireQueue(); err != nil {
		zapLogger.Fatal("job_queue_not_configured", zap.Error(err))
	}

	// Turns and the DLQ collector stop when this is cancelled
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	tracing := false
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else if tp, err := telemetry.InitTracer(baseCtx, serviceName, cfg.OTELEndpoint); err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracing = true
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(ctx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

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

	// Redis is optional: without it locks and rate limits are per process
	var redisClient *redis.Client
	var locker locks.Locker = locks.NewLocalLocker()
	if cfg.RedisURL != "" {
		redisClient, err = locks.Connect(baseCtx, cfg.RedisURL)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
		locker = locks.NewRedisLocker(redisClient, lockTTL)
		zapLogger.Info("connected_to_redis")
	} else {
		zapLogger.Warn("redis_not_configured_using_local_locks")
	}

	jobQueue, err := queue.ConnectWithRetry(baseCtx, cfg.RabbitMQURL, queueAttempts, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq")
	jobs := queue.NewScheduler(jobQueue)

	botRepo := database.NewBotRepository(db)
	contactRepo := database.NewContactRepository(db)
	propertyRepo := database.NewPropertyRepository(db)
	developmentRepo := database.NewDevelopmentRepository(db)
	messageRepo := database.NewMessageRepository(db)
	eventRepo := database.NewCalendarEventRepository(db)
	dealRepo := database.NewDealRepository(db)
	activityRepo := database.NewActivityLogRepository(db)
	credentialRepo := database.NewCredentialRepository(db)
	userRepo := database.NewUserRepository(db)

	provider := ai.NewOpenAIProvider(ai.OpenAIOptions{
		APIKey:         cfg.OpenAIKey,
		BaseURL:        cfg.AIBaseURL,
		Model:          cfg.AIModel,
		EmbeddingModel: cfg.EmbeddingModel,
		Logger:         zapLogger,
		DebugMode:      debugMode,
	})
	embedder := embedding.NewService(provider, embedding.Options{
		QueryPrefix:    cfg.EmbeddingQueryPrefix,
		DocumentPrefix: cfg.EmbeddingDocumentPrefix,
	}, zapLogger)

	var leads semantic.LeadRanker = semantic.NewPostgresLeadRanker(contactRepo)
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
		leads = store
		zapLogger.Info("connected_to_qdrant", zap.String("collection", cfg.QdrantCollection))
	}
	search := semantic.NewService(propertyRepo, developmentRepo, embedder, leads, zapLogger)

	loc := cfg.Location()
	engine := availability.NewEngine(propertyRepo, eventRepo, loc, zapLogger)
	calendar := calendarsync.NewSyncer(calendarsync.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		TokenURL:     cfg.GoogleTokenURL,
		CalendarURL:  cfg.GoogleCalendarBaseURL,
		Location:     loc,
	}, credentialRepo, userRepo, zapLogger)

	registry := tools.NewRegistry(tools.Deps{
		Search:       search,
		Availability: engine,
		Properties:   propertyRepo,
		Contacts:     contactRepo,
		Events:       eventRepo,
		Deals:        dealRepo,
		Activity:     activityRepo,
		Calendar:     calendar,
		Embeds:       jobs,
	}, tools.Options{Timeout: cfg.ToolTimeout}, zapLogger)

	orchestrator := agent.NewOrchestrator(botRepo, messageRepo, provider, registry, locker, agent.Options{
		HistoryWindow: cfg.HistoryWindow,
		ModelTimeout:  cfg.ModelTimeout,
		TurnTimeout:   cfg.TurnTimeout,
		Location:      loc,
	}, zapLogger)

	evolution := messaging.NewClient(cfg.EvolutionAPIURL, cfg.EvolutionAPIKey, nil, zapLogger)
	dispatcher := agent.NewDispatcher(baseCtx, orchestrator, evolution, botRepo, cfg.MaxConcurrentTurns, cfg.TurnTimeout, zapLogger)

	tokens, err := auth.NewTokenService(cfg.ServiceTokenSecret)
	if err != nil {
		zapLogger.Fatal("failed_to_initialize_token_service", zap.Error(err))
	}

	webhookLimit, err := middleware.RateLimit(redisClient, cfg.WebhookRateLimit, "realty:ratelimit:webhook", middleware.ClientIPKey)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}

	healthChecker := handlers.NewHealthChecker().
		Register("database", db.PingContext).
		Register("rabbitmq", jobQueue.HealthCheck)
	if redisClient != nil {
		healthChecker.Register("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	webhookHandler := handlers.NewWebhookHandler(botRepo, contactRepo, activityRepo, dispatcher, cfg.WebhookSecret, zapLogger)
	adminHandler := handlers.NewAdminHandler(botRepo, engine, messageRepo, search, jobs, zapLogger)

	// gorilla/mux runs middleware in registration order, outermost first
	r := mux.NewRouter()
	if tracing {
		r.Use(otelmux.Middleware(serviceName))
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.CORS(cfg.FrontendURL))
	r.Use(middleware.JSONBody(maxBodyBytes))
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Audit(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	handlers.NewOpenAPIHandler().RegisterRoutes(r)

	api := r.PathPrefix("/api/v1").Subrouter()

	whatsapp := api.PathPrefix("/whatsapp").Subrouter()
	whatsapp.Use(webhookLimit)
	webhookHandler.RegisterRoutes(whatsapp)

	admin := api.PathPrefix("").Subrouter()
	admin.Use(middleware.Auth(tokens, zapLogger))
	adminHandler.RegisterRoutes(admin)

	// Preflight requests are answered by the CORS middleware
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	collector := queue.NewGarbageCollector(jobQueue, time.Hour, 24*time.Hour, zapLogger)
	go func() {
		if err := collector.Start(baseCtx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	// Let in-flight turns answer before the connections close
	turnsDone := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(turnsDone)
	}()
	select {
	case <-turnsDone:
	case <-ctx.Done():
		zapLogger.Warn("abandoning_in_flight_turns")
	}
	cancelBase()

	zapLogger.Info("server_exited")
}
