package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vivarium/config"
	"vivarium/log"
	"vivarium/services"

	"go.uber.org/zap"
)

func main() {
	// Initialize structured logger
	logger := log.GetInstance()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Vivarium dashboard client starting",
		zap.String("server_url", cfg.ServerURL),
		zap.String("api_url", cfg.APIBaseURL),
		zap.Bool("telegram_enabled", cfg.TelegramBotToken != ""))

	// Initialize the optional Telegram notifier
	var telegramService *services.TelegramService
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		telegramService, err = services.NewTelegramService(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram service", zap.Error(err))
		}
		if err := telegramService.SendStartupMessage(); err != nil {
			logger.Warn("Failed to send startup message", zap.Error(err))
		}
	}

	// Initialize services: HTTP API, series cache, dashboard state, router,
	// watchdog and the websocket connection manager.
	apiService := services.NewAPIService(cfg, logger)
	cacheService := services.NewSeriesCacheService(apiService, logger)
	defer cacheService.Close()

	state := services.NewDashboardState(cacheService, telegramService, logger)
	routerService := services.NewRouterService(state, logger)
	watchdogService := services.NewWatchdogService(logger, state.HandleConnectivity)
	connectionService := services.NewConnectionService(cfg, watchdogService, routerService, logger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Seed notifications for door activity that happened while no dashboard
	// was watching.
	seedCtx, seedCancel := context.WithTimeout(ctx, 15*time.Second)
	if doors, err := apiService.FetchDoorHistory(seedCtx); err != nil {
		logger.Warn("Failed to fetch door history", zap.Error(err))
	} else {
		state.SeedDoorHistory(doors)
	}
	seedCancel()

	// Open the live session; the connection manager retries forever on its own.
	connectionService.Start(ctx)

	logger.Info("Dashboard client started, waiting for telemetry")

	// Set up graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received, stopping services")
	cancel()

	if err := connectionService.Close(); err != nil {
		logger.Error("Error closing connection", zap.Error(err))
	}
	watchdogService.Stop()
	cacheService.Close()

	logger.Info("Vivarium dashboard client stopped")
}
