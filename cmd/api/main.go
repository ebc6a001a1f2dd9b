// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/capitalize-ai/renovation-planner/internal/action"
	"github.com/capitalize-ai/renovation-planner/internal/config"
	"github.com/capitalize-ai/renovation-planner/internal/email"
	"github.com/capitalize-ai/renovation-planner/internal/handler"
	"github.com/capitalize-ai/renovation-planner/internal/llm"
	"github.com/capitalize-ai/renovation-planner/internal/lock"
	natsclient "github.com/capitalize-ai/renovation-planner/internal/nats"
	"github.com/capitalize-ai/renovation-planner/internal/prompt"
	"github.com/capitalize-ai/renovation-planner/internal/service"
	"github.com/capitalize-ai/renovation-planner/internal/store"
	"github.com/capitalize-ai/renovation-planner/internal/store/sqlite"
	"github.com/capitalize-ai/renovation-planner/pkg/logger"
	"github.com/capitalize-ai/renovation-planner/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(logger.Options{Level: cfg.LogLevel, Development: cfg.IsDevelopment()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server",
		zap.String("env", cfg.Environment),
		zap.String("llm_provider", cfg.DefaultLLM),
		zap.String("store_driver", cfg.StoreDriver),
		logger.Secret("llm_api_key", apiKeyFor(cfg)),
		logger.Secret("jwt_secret", cfg.JWTSecret),
	)

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "renovation-planner", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	checks := map[string]handler.Checker{}

	// Persistence
	st, err := openStore(cfg)
	if err != nil {
		log.Fatal("failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer st.Close()
	checks["store"] = st.Ping

	// Event journal
	var journal service.Journal = service.NopJournal{}
	if cfg.NATSEnabled {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		j := natsclient.NewJournal(natsClient)
		if err := j.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure journal stream", zap.Error(err))
		}
		journal = j
		checks["nats"] = natsClient.Ready
	}

	// Conversation locks
	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		// Locks must outlive the longest turn: model call plus action execution.
		locker = lock.NewRedis(rdb, cfg.LLMTimeout+cfg.ActionTimeout+time.Minute)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// Language model
	llmClient, err := llm.NewClient(llm.Provider(cfg.DefaultLLM), apiKeyFor(cfg), cfg.LLMModel)
	if err != nil {
		log.Fatal("failed to create LLM client", zap.String("provider", cfg.DefaultLLM), zap.Error(err))
	}
	client := llm.WithMetrics(llmClient)

	// Email transport
	var transport email.Transport = email.Disabled{}
	if cfg.EmailConfigured() {
		transport = email.New(
			email.NewSMTPSender(email.SMTPConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUsername,
				Password: cfg.SMTPPassword,
				From:     cfg.SMTPFrom,
			}),
			email.NewIMAPFetcher(email.IMAPConfig{
				Host:     cfg.IMAPHost,
				Port:     cfg.IMAPPort,
				Username: cfg.IMAPUsername,
				Password: cfg.IMAPPassword,
				Mailbox:  cfg.IMAPMailbox,
			}),
		)
	} else {
		log.Warn("email transport not configured, send_email and fetch_email will fail")
	}

	// Initialize services
	builder := prompt.NewBuilder(st,
		prompt.WithTranscriptLimit(cfg.TranscriptLimit),
		prompt.WithHistoryBudget(cfg.HistoryTokenBudget),
		prompt.WithTokenCounter(prompt.NewTokenCounter(cfg.LLMModel)),
	)
	executor := action.NewExecutor(st, transport, client, builder, action.ExecutorConfig{
		Timeout:       cfg.ActionTimeout,
		MaxConcurrent: int64(cfg.MaxConcurrentActions),
		Model:         cfg.LLMModel,
		Mailbox:       cfg.IMAPMailbox,
		From:          cfg.SMTPFrom,
	}, log)
	conversationSvc := service.NewConversationService(st, journal, log)
	engine := service.NewEngine(st, conversationSvc, builder, client, executor, locker, journal, service.EngineConfig{
		Model:      cfg.LLMModel,
		LLMTimeout: cfg.LLMTimeout,
	}, log)
	analysisSvc := service.NewAnalysisService(st)

	router := handler.NewRouter(handler.RouterConfig{
		JWTSecret:         cfg.JWTSecret,
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		Logger:            log,
		Health:            handler.NewHealthHandler(checks),
		Conversations:     handler.NewConversationHandler(conversationSvc, engine, log),
		Actions:           handler.NewActionHandler(engine, log),
		Analyses:          handler.NewAnalysisHandler(analysisSvc, log),
		Events:            handler.NewEventHandler(conversationSvc, log),
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown lets in-flight executions settle their actions.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ActionTimeout+10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		return sqlite.OpenAndMigrate(cfg.SQLitePath)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func apiKeyFor(cfg *config.Config) string {
	if llm.Provider(cfg.DefaultLLM) == llm.ProviderOpenAI {
		return cfg.OpenAIAPIKey
	}
	return cfg.AnthropicAPIKey
}
