// Package cli is the board-hub binary's command surface: a cobra root
// with a serve subcommand (the real-time hub, its pipelines, and the HTTP
// front door) and a migrate subcommand, mirroring the way the rest of the
// corpus composes its services at startup.
package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/arc-self/board-hub/internal/aclclient"
	"github.com/arc-self/board-hub/internal/agent"
	"github.com/arc-self/board-hub/internal/board"
	"github.com/arc-self/board-hub/internal/config"
	"github.com/arc-self/board-hub/internal/dbstore"
	"github.com/arc-self/board-hub/internal/dispatch"
	"github.com/arc-self/board-hub/internal/httpapi"
	"github.com/arc-self/board-hub/internal/hub"
	"github.com/arc-self/board-hub/internal/llm"
	"github.com/arc-self/board-hub/internal/persist"
	"github.com/arc-self/board-hub/internal/ticket"
	coreconfig "github.com/arc-self/board-hub/pkg/config"
	"github.com/arc-self/board-hub/pkg/fn"
	"github.com/arc-self/board-hub/pkg/natsclient"
	"github.com/arc-self/board-hub/pkg/resilience"
	"github.com/arc-self/board-hub/pkg/telemetry"
)

// Serve runs the board-hub process: the real-time hub, both persistence
// pipelines, the ticket sweeper, and the HTTP front door. migrateOnly
// applies the schema and returns without binding the transport, for use in
// a migration init-container ahead of the real rollout.
func Serve(migrateOnly bool) error {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()
	logger.Info("starting board-hub", zap.String("config", cfg.String()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTelEndpoint != "" {
		tp, err := telemetry.InitTracer(ctx, "board-hub", cfg.OTelEndpoint)
		if err != nil {
			logger.Error("failed to init OTel tracer", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
		}
		mp, err := telemetry.InitMeterProvider(ctx, "board-hub", cfg.OTelEndpoint)
		if err != nil {
			logger.Error("failed to init OTel meter provider", zap.Error(err))
		} else {
			defer mp.Shutdown(context.Background())
		}
	}
	metrics, err := telemetry.NewHubMetrics("board-hub")
	if err != nil {
		logger.Fatal("failed to construct hub metrics", zap.Error(err))
	}

	vaultManager, err := coreconfig.NewSecretManager(cfg.VaultAddr, cfg.VaultToken)
	if err != nil {
		logger.Fatal("vault connection failed", zap.Error(err))
	}
	secrets, err := vaultManager.GetKV2(cfg.SecretPath)
	if err != nil {
		logger.Fatal("failed to load secrets from vault", zap.Error(err))
	}
	pgURL, _ := secrets["PG_URL"].(string)
	natsURL, _ := secrets["NATS_URL"].(string)
	redisAddr, _ := secrets["REDIS_ADDR"].(string)
	llmAPIKey, _ := secrets["LLM_API_KEY"].(string)

	if err := runMigrations(ctx, pgURL, logger); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}
	if migrateOnly {
		logger.Info("--migrate-only set, exiting after migrations")
		return nil
	}

	poolCfg, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		logger.Fatal("failed to parse PG_URL", zap.Error(err))
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("connected to database (OTel-instrumented)")

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	natsClient, err := natsclient.NewClient(natsURL, logger)
	if err != nil {
		logger.Fatal("nats initialization failed", zap.Error(err))
	}
	defer natsClient.Close()
	if err := natsClient.ProvisionStreams(); err != nil {
		logger.Fatal("nats stream provisioning failed", zap.Error(err))
	}

	boardDB := dbstore.NewPgBoardStore(pool)
	objectDB := dbstore.NewPgObjectStore(pool)
	chatDB := dbstore.NewPgChatStore(pool)
	frameDB := dbstore.NewPgFrameLog(pool)

	aclClient, err := aclclient.NewClient(cfg.ACLGRPCAddr, rdb, logger, aclclient.Opts{
		CacheTTL:       30 * time.Second,
		RequestTimeout: 2 * time.Second,
		Breaker:        resilience.DefaultBreakerOpts,
	})
	if err != nil {
		logger.Fatal("acl client initialization failed", zap.Error(err))
	}
	defer aclClient.Close()

	ticketStore := ticket.NewStore(rdb, logger, cfg.TicketTTL)
	sweeper := ticket.NewSweeper(ticketStore, logger)
	if err := sweeper.Start(); err != nil {
		logger.Fatal("ticket sweeper failed to start", zap.Error(err))
	}
	defer sweeper.Stop()

	boards := board.NewRegistry()
	flusher := persist.NewFlusher(boards, objectDB, cfg.FlushInterval, logger, metrics)
	go flusher.Run(ctx)

	frameLog := persist.NewFrameLog(frameDB, natsClient, cfg.FrameQueueCapacity, cfg.FrameBatchMax, cfg.FrameBatchInterval, logger)
	go frameLog.Run(ctx)

	d := &dispatch.Dispatcher{
		Boards:   boards,
		BoardDB:  boardDB,
		ObjectDB: objectDB,
		ChatDB:   chatDB,
		ACL:      aclClient,
		FrameLog: frameLog,
		Metrics:  metrics,
		Log:      logger,
	}

	var llmClient llm.Client
	switch config.LLMProvider() {
	case "openai-compatible", "openai":
		llmClient = llm.NewOpenAICompatibleClient("", llmAPIKey, nil)
	default:
		llmClient = llm.NewAnthropicClient("", llmAPIKey, nil)
	}
	llmClient = llm.NewResilientClient(llmClient, resilience.NewBreaker(resilience.DefaultBreakerOpts), fn.DefaultRetry)
	d.Agent = agent.NewLoop(d, llmClient, logger, cfg.AI)

	h := hub.NewHub(d, ticketStore, sessionResolver{}, logger, metrics)
	h.OutboundQueueCapacity = cfg.OutboundQueueCapacity

	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware("board-hub"))
	e.Use(httpapi.InternalContextMiddleware())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("http request", zap.String("uri", v.URI), zap.Int("status", v.Status))
			return nil
		},
	}))
	e.Use(middleware.Recover())

	ticketHandler := &httpapi.TicketHandler{Tickets: ticketStore, Log: logger}
	ticketHandler.Register(e)
	e.GET("/api/ws", h.ServeUpgrade)

	go func() {
		logger.Info("board-hub http server listening", zap.String("addr", cfg.ListenAddr))
		if err := e.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failure", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo shutdown error", zap.Error(err))
	}

	// natsClient, pool, rdb, and aclClient are closed by the defers
	// registered at startup. Do not close them again here: pgxpool.Close
	// is not idempotent and panics on a second call.
	logger.Info("board-hub shut down cleanly")
	return nil
}

// sessionResolver resolves display identity for presence. It is a thin
// adapter until a dedicated user directory exists; resolution failure
// degrades to an unnamed participant, which internal/hub already handles.
type sessionResolver struct{}

func (sessionResolver) Resolve(ctx context.Context, userID string) (hub.Session, error) {
	return hub.Session{DisplayName: userID}, nil
}
