package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"agentsdr/internal/audit"
	"agentsdr/internal/auth"
	"agentsdr/internal/calls"
	"agentsdr/internal/callsched"
	"agentsdr/internal/config"
	"agentsdr/internal/crm"
	"agentsdr/internal/digest"
	"agentsdr/internal/httpapi"
	"agentsdr/internal/orgs"
	"agentsdr/internal/pipeline"
	"agentsdr/internal/reporting"
	"agentsdr/internal/summarizer"
	"agentsdr/internal/telephony"
	"agentsdr/pkg/logger"
	"agentsdr/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// External clients
	vendor := telephony.NewVoicebotClient(cfg.Voicebot)
	summ := summarizer.New(cfg.OpenAI)
	crmClient := crm.NewHubSpotClient(cfg.HubSpot)
	contactCache := crm.NewContactCache(rdb)

	// Domain services
	orgService := orgs.NewService(db)
	callStore := calls.NewStore(db)
	auditService := audit.NewService(audit.NewPostgresRepo(db))
	pipelineService := pipeline.NewService(vendor, summ, crmClient, callStore, contactCache, log)
	scheduleService := callsched.NewService(
		callsched.NewPostgresRepo(db),
		vendor,
		crmClient,
		callsched.NewRedisLimiter(rdb, cfg.Scheduler.OrgCallConcurrency),
		cfg.Voicebot.FromNumber,
		log,
	)
	digestService := digest.NewService(
		digest.NewPostgresRepo(db),
		callStore,
		digest.NewSendGridSender(cfg.SendGrid, log),
		cfg.Scheduler.DuplicateWindow,
		log,
	)
	reportingService := reporting.NewService(reporting.NewPostgresRepo(db))

	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, auth.RequireToken(verifier), httpapi.Handlers{
		Orgs:          orgService,
		Calls:         callStore,
		Pipeline:      pipelineService,
		Schedules:     scheduleService,
		Digests:       digestService,
		Reporting:     reportingService,
		Audit:         auditService,
		WebhookSecret: cfg.Voicebot.WebhookSecret,
	}, orgService)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
