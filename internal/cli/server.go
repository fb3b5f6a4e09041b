package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quizbot-gateway/internal/ai"
	"quizbot-gateway/internal/app"
	"quizbot-gateway/internal/config"
	"quizbot-gateway/internal/domain"
	"quizbot-gateway/internal/infra/memory"
	"quizbot-gateway/internal/infra/postgres"
	rediscache "quizbot-gateway/internal/infra/redis"
	"quizbot-gateway/internal/provider"
	transport "quizbot-gateway/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the gateway.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the webhook gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var (
		tenants       app.TenantStore
		sessions      app.SessionStore
		conversations app.ConversationStore
		rules         app.RuleStore
		loader        memory.CatalogLoader
	)
	if cfg.Postgres.URL != "" {
		db := postgres.Connect(cfg.Postgres.URL)
		defer db.Close()
		store := postgres.NewStore(db)

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		tenants = postgres.NewTenantLoader(pool)
		sessions = store
		conversations = store
		rules = store
		loader = store
	} else {
		logger.Warn("postgres url not configured, using in-memory stores with demo fixtures")
		tenants = memory.NewTenantStore(demoTenantConfig())
		sessions = memory.NewSessionStore()
		conversations = memory.NewConversationStore()
		rules = memory.NewRuleStore(demoRules()...)
		loader = memory.NewStaticCatalogLoader(map[string][]domain.QuizQuestion{
			demoTenantID: demoQuestions(),
		})
	}

	catalogTTL := config.TTLDuration(cfg.Quiz.CatalogTTL, 10*time.Minute)
	var catalog app.QuestionCatalog
	if redisClient != nil {
		catalog = rediscache.NewCatalogRepository(redisClient, loader, catalogTTL)
	} else {
		catalog = memory.NewCatalogRepository(loader, catalogTTL)
	}

	dedupTTL := config.TTLDuration(cfg.Redis.DedupTTL, time.Hour)
	var dedup app.DedupStore
	if redisClient != nil {
		dedup = rediscache.NewDedupStore(redisClient, dedupTTL)
	} else {
		dedup = memory.NewDedupStore(dedupTTL)
	}

	providerTimeout := config.TTLDuration(cfg.Provider.Timeout, 15*time.Second)
	providerClient := provider.NewClient(logger, cfg.Provider.BaseURL, providerTimeout)

	aiTimeout := config.TTLDuration(cfg.AI.Timeout, 20*time.Second)
	var completions app.CompletionClient
	if cfg.AI.BaseURL != "" {
		completions = ai.NewClient(logger, cfg.AI.BaseURL, aiTimeout)
	}

	engine := app.NewQuizEngine(logger, sessions, catalog)
	responder := app.NewResponder(logger, rules, completions, aiTimeout)
	processor := app.NewProcessor(logger, tenants, sessions, conversations, dedup, engine, responder)
	statuses := app.NewStatusSync(logger, conversations)

	webhook := transport.NewWebhookHandler(logger, processor, statuses, providerClient)
	wsHandler := transport.NewWSHandler(logger, processor)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", transport.Healthz)
	mux.Handle("/webhook", webhook)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: webhookWriteTimeout(aiTimeout, providerTimeout),
	}

	go func() {
		logger.Info("starting quizbot gateway", slog.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", slog.Any("error", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// webhookWriteTimeout sizes the server's write deadline so a delivery that
// waits on the AI call and the provider send in sequence can still write its
// acknowledgment before the connection is closed.
func webhookWriteTimeout(aiTimeout, providerTimeout time.Duration) time.Duration {
	return aiTimeout + providerTimeout + 5*time.Second
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
