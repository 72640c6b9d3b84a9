package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/venturelink/pitchcall/internal/application/config"
	"github.com/venturelink/pitchcall/internal/application/constant"
	"github.com/venturelink/pitchcall/internal/application/metric"
	"github.com/venturelink/pitchcall/internal/infra/adapters/memory"
	"github.com/venturelink/pitchcall/internal/infra/adapters/postgres"
	"github.com/venturelink/pitchcall/internal/infra/adapters/postgres/repository"
	"github.com/venturelink/pitchcall/internal/infra/ports/http/handlers"
	"github.com/venturelink/pitchcall/internal/infra/ports/http/server"
	"github.com/venturelink/pitchcall/internal/usecase"
)

func runApp() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stdout,
				&slog.HandlerOptions{Level: slog.LevelInfo},
			),
		),
	)

	cfg, err := config.New()
	if err != nil {
		slog.Error("parse config", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	dbConn, err := postgres.NewPostgres(ctx, cfg.Postgres.DSN())
	if err != nil {
		slog.Error("connect to postgres", slog.Any(constant.Error, err))
		os.Exit(1)
	}
	defer dbConn.Close()

	userRepo := repository.NewUserRepo(dbConn)
	callRepo := repository.NewCallRepo(dbConn)
	messageRepo := repository.NewMessageRepo(dbConn)
	registry := memory.NewConnectionRegistry()

	userUsecase := usecase.NewUserUsecase([]byte(cfg.JWTSecret), userRepo, registry)
	callUsecase := usecase.NewCallUsecase(callRepo, userRepo)
	messageUsecase := usecase.NewMessageUsecase(messageRepo, userRepo)
	signalingUsecase := usecase.NewSignalingUsecase(registry, userRepo, messageRepo)

	authHandler := handlers.NewAuthHandler(cfg, userUsecase)
	callHandler := handlers.NewCallHandler(callUsecase)
	messageHandler := handlers.NewMessageHandler(messageUsecase, signalingUsecase)
	iceHandler := handlers.NewIceHandler(cfg)
	wsHandler := handlers.NewWebSocketHandler(cfg, signalingUsecase)

	echoSrv := server.New(cfg, authHandler, callHandler, messageHandler, iceHandler, wsHandler)

	metricsSrv := metric.NewServer()

	echoSrvCh := make(chan error, 1)
	metricsSrvCh := make(chan error, 1)

	// Запускаем HTTP сервер
	go func() {
		echoSrvCh <- echoSrv.Start(":" + cfg.Port)
	}()

	// Запускаем сервер метрик
	go func() {
		metricsSrvCh <- metricsSrv.Start(":" + cfg.MetricPort)
	}()

	// Ожидаем сигнал завершения или ошибку сервера
	select {
	case <-ctx.Done():
		slog.Info("Shutting down servers due to context cancel")
	case err := <-echoSrvCh:
		slog.Error(
			"HTTP server failed",
			slog.Any(constant.Error, err),
		)
		os.Exit(1)
	case err := <-metricsSrvCh:
		slog.Error(
			"Metrics server failed",
			slog.Any(constant.Error, err),
		)
		os.Exit(1)
	}

	// Graceful shutdown
	timeoutCtx, timeoutCancel := context.WithTimeout(ctx, 5*time.Second)
	defer timeoutCancel()

	if err := echoSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown HTTP server", slog.Any(constant.Error, err))
	}

	if err := metricsSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown metric server", slog.Any(constant.Error, err))
	}
}
