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

	"remna-bot/internal/app"
	"remna-bot/internal/config"
	"remna-bot/internal/health"
	"remna-bot/internal/logging"
	"remna-bot/internal/paneltest"
	"remna-bot/internal/telegram"
)

func main() {
	// Загружаем конфигурацию
	cfg := config.Load()

	// Настраиваем структурированное логирование
	if closer := logging.Setup(cfg.LogLevel, cfg.LogFile); closer != nil {
		defer closer.Close()
	}

	slog.Info("Starting bot-service", "version", "1.0.0", "pid", os.Getpid())
	slog.Info("Configuration loaded",
		"db_driver", cfg.DBDriver,
		"remnawave_url", cfg.RemnawaveURL,
		"health_addr", cfg.HealthAddr,
		"has_super_admin", cfg.SuperAdminID != "",
		"has_bot_token", cfg.BotToken != "",
		"has_panel", cfg.HasPanel(),
	)

	if cfg.BotToken == "" {
		slog.Error("Bot token is not configured")
		os.Exit(1)
	}

	// База, клиент панели и движок синхронизации
	a, err := app.New(cfg)
	if err != nil {
		slog.Error("Failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer a.Close()
	slog.Info("Database and sync engine initialized successfully")

	// Создаем Telegram сервис
	telegramService, err := telegram.New(cfg, a.Repo, a.Engine, a.Migrator)
	if err != nil {
		slog.Error("Failed to create Telegram service", "error", err)
		os.Exit(1)
	}
	slog.Info("Telegram service created successfully")

	// Настраиваем graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Создаем планировщик, отчёты идут администраторам через бота
	sched := a.NewScheduler(telegramService)
	if err := sched.Start(ctx); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
		slog.Warn("Continuing without scheduler - auto sync will not work")
	} else {
		telegramService.SetScheduler(sched)
		slog.Info("Scheduler started successfully")
		defer func() {
			slog.Info("Stopping scheduler")
			sched.Stop()
		}()
	}

	// Проверяем панель в фоне, чтобы не задерживать запуск бота
	if cfg.HasPanel() {
		probe := paneltest.NewStartupProbe(a.Panel, cfg.RemnawaveURL, telegramService.Notify)
		go func() {
			probeCtx, probeCancel := context.WithTimeout(ctx, time.Minute)
			defer probeCancel()
			if err := probe.Run(probeCtx); err != nil {
				slog.Warn("RemnaWave startup probe failed", "error", err)
			}
		}()
	} else {
		slog.Warn("RemnaWave panel is not configured, sync commands will fail")
	}

	// Создаем health сервер
	healthServer := health.NewServer(cfg.HealthAddr, sched, a.Repo)
	slog.Info("Health server created", "addr", cfg.HealthAddr)

	// Запускаем health сервер в горутине
	go func() {
		slog.Info("Starting health server")
		if err := healthServer.Start(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Health server failed", "error", err)
			} else {
				slog.Info("Health server stopped")
			}
		}
	}()
	defer func() {
		slog.Info("Stopping health server")
		if err := healthServer.Stop(); err != nil {
			slog.Error("Failed to stop health server", "error", err)
		}
	}()

	// Запускаем Telegram бота
	slog.Info("Starting Telegram bot...")
	if err := telegramService.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Info("Telegram bot stopped by signal")
		} else {
			slog.Error("Telegram bot failed", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Bot service shutdown completed")
}
