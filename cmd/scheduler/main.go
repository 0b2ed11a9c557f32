package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"agentsdr/internal/audit"
	"agentsdr/internal/calls"
	"agentsdr/internal/callsched"
	"agentsdr/internal/config"
	"agentsdr/internal/crm"
	"agentsdr/internal/digest"
	"agentsdr/internal/orgs"
	"agentsdr/internal/scheduler"
	"agentsdr/internal/telephony"
	"agentsdr/pkg/logger"
	"agentsdr/pkg/utils"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

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

	vendor := telephony.NewVoicebotClient(cfg.Voicebot)
	crmClient := crm.NewHubSpotClient(cfg.HubSpot)

	orgService := orgs.NewService(db)
	callStore := calls.NewStore(db)
	auditService := audit.NewService(audit.NewPostgresRepo(db))
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

	runner := scheduler.New(
		orgService,
		scheduleService,
		digestService,
		auditService,
		cfg.Scheduler.CallInterval,
		cfg.Scheduler.DigestInterval,
		log,
	)

	if err := runner.Start(rootCtx); err != nil {
		log.Error("scheduler start failed", "err", err)
		os.Exit(1)
	}
	log.Info("scheduler running",
		"call_interval", cfg.Scheduler.CallInterval,
		"digest_interval", cfg.Scheduler.DigestInterval)

	<-rootCtx.Done()
	log.Info("shutdown initiated")
	runner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
