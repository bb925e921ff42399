// Package app собирает зависимости, общие для bot-service и syncctl
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"remna-bot/internal/batch"
	"remna-bot/internal/config"
	"remna-bot/internal/db"
	"remna-bot/internal/gates/remnawave"
	"remna-bot/internal/lock"
	"remna-bot/internal/migration"
	"remna-bot/internal/reconcile"
	"remna-bot/internal/scheduler"
)

const (
	syncLockKey = "remnawave:sync:lock"
	syncLockTTL = 2 * time.Minute
)

type App struct {
	Config   *config.Config
	Repo     *db.Repository
	Panel    *remnawave.Client
	Engine   *reconcile.Engine
	Migrator *migration.Migrator

	closers []func() error
}

// New открывает базу, выполняет миграции и создаёт движок синхронизации
func New(cfg *config.Config) (*App, error) {
	repo, err := db.NewRepository(cfg.DBDriver, cfg.DBDsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &App{Config: cfg, Repo: repo}
	a.closers = append(a.closers, repo.Close)

	if err := repo.AutoMigrate(); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	panel, err := remnawave.NewClient(remnawave.Config{
		BaseURL: cfg.RemnawaveURL,
		Token:   cfg.RemnawaveToken,
		Mode:    cfg.RemnawaveMode,
		RPS:     cfg.RemnawaveRPS,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Panel = panel
	a.closers = append(a.closers, panel.Close)

	locker, closeLocker := NewLocker(cfg)
	if closeLocker != nil {
		a.closers = append(a.closers, closeLocker)
	}

	opts := BatchOptions(cfg)
	a.Engine = reconcile.NewEngine(repo, panel, reconcile.Options{Batch: opts, Locker: locker})
	a.Migrator = migration.NewMigrator(repo, panel, opts)
	return a, nil
}

func BatchOptions(cfg *config.Config) batch.Options {
	return batch.Options{
		Concurrency: cfg.SyncConcurrency,
		Size:        cfg.SyncBatchSize,
		Pause:       cfg.SyncBatchPause,
	}
}

// NewLocker выбирает межпроцессную блокировку: redis, файл или только внутрипроцессную
func NewLocker(cfg *config.Config) (lock.Locker, func() error) {
	switch {
	case cfg.RedisAddr != "":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		slog.Info("Using redis sync lock", "addr", cfg.RedisAddr)
		return lock.NewRedis(client, syncLockKey, syncLockTTL), client.Close
	case cfg.SyncLockFile != "":
		slog.Info("Using file sync lock", "path", cfg.SyncLockFile)
		return lock.NewFile(cfg.SyncLockFile), nil
	}
	return lock.Noop{}, nil
}

func (a *App) NewScheduler(notifier scheduler.Notifier) *scheduler.Scheduler {
	return scheduler.NewScheduler(a.Engine, a.Repo, notifier, a.Panel, scheduler.Config{
		Enabled:  a.Config.SyncAutoEnabled,
		Times:    a.Config.SyncTimes,
		Location: a.Config.Location(),
	})
}

// Close закрывает ресурсы в обратном порядке
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
