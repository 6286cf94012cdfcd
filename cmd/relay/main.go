package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/pra-approval-relay/internal/audit"
	"github.com/xela07ax/pra-approval-relay/internal/bot"
	"github.com/xela07ax/pra-approval-relay/internal/directory"
	"github.com/xela07ax/pra-approval-relay/internal/epm"
	"github.com/xela07ax/pra-approval-relay/internal/fanout"
	"github.com/xela07ax/pra-approval-relay/internal/infra"
	"github.com/xela07ax/pra-approval-relay/internal/relay"
	"github.com/xela07ax/pra-approval-relay/internal/render"
	"github.com/xela07ax/pra-approval-relay/internal/repository/postgres"
	"github.com/xela07ax/pra-approval-relay/internal/server"
	"github.com/xela07ax/pra-approval-relay/internal/teams"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Контекст жизни сервиса: SIGTERM/SIGINT запускают плавную остановку
	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Метрики
	reg := prometheus.NewRegistry()
	metrics := infra.NewMetrics(reg)

	// 3. Справочник бесед (Redis)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(appCtx).Err(); err != nil {
		logger.Fatal("redis is unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	defer rdb.Close()

	dir := directory.New(rdb, logger)

	// 4. Audit trail: Postgres при наличии URL, иначе только лог
	var auditStorage audit.StorageInterface = audit.NopStorage{Logger: logger}
	if cfg.Database.URL != "" {
		repo, err := postgres.NewAuditRepo(cfg.Database.URL)
		if err != nil {
			logger.Fatal("failed to init audit storage", zap.Error(err))
		}
		if err := repo.Ping(appCtx); err != nil {
			logger.Fatal("database is unreachable", zap.Error(err))
		}
		defer repo.Close()
		auditStorage = repo
	} else {
		logger.Warn("database.url is empty, audit trail goes to log only")
	}

	trail := audit.NewTrail(auditStorage, cfg.Audit, metrics, logger)
	trail.Start()
	defer trail.Stop()

	// 5. Чат-транспорт: токены Bot Framework + коннектор + транспортная политика
	botTokens := teams.NewTokenProvider(
		cfg.Bot.TokenURL, cfg.Bot.AppID, cfg.Bot.AppPassword, cfg.Bot.TokenScope, cfg.Bot.SendTimeout,
	)
	connector := teams.NewConnector(botTokens, cfg.Bot.SendTimeout, logger)
	safeSender := teams.NewReliabilityWrapper(connector)

	fan := fanout.New(dir, safeSender, metrics, logger)

	// 6. Downstream авторизации (EPM) и проведение решений
	epmTokens := epm.NewTokenProvider(
		cfg.EPM.BaseURL, cfg.EPM.ClientID, cfg.EPM.ClientSecret, cfg.EPM.Timeout, logger,
	)
	epmClient := epm.NewClient(cfg.EPM.BaseURL, epmTokens, cfg.EPM.Timeout, logger)
	decisions := relay.New(epmClient, cfg.EPM.BaseURL, cfg.EPM.Timeout, metrics, logger)

	// 7. Бот: регистрация бесед и обработка нажатий
	approvalBot := bot.New(dir, decisions, connector, logger)

	// 8. HTTP-фасад; проверка токенов активностей включается вместе с App ID
	var validator server.TokenValidator
	if cfg.Bot.AppID != "" {
		validator = server.NewBotTokenValidator(cfg.Bot.AppID)
	} else {
		logger.Warn("bot.app_id is empty, incoming activities are not authenticated")
	}

	srv := server.NewServer(cfg, logger, render.NewRenderer(), fan, approvalBot, trail, metrics, validator, reg)

	if err := srv.Run(appCtx); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
