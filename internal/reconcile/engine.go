// Package reconcile приводит локальную базу аккаунтов в соответствие со списком пользователей панели RemnaWave.
//
// Панель главная для существования аккаунта и его сквадов, локальная база главная для баланса и истории.
// Одновременно выполняется не больше одного прогона: повторный вызов сразу получает ErrRunInProgress.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"remna-bot/internal/batch"
	"remna-bot/internal/db"
	"remna-bot/internal/gates/remnawave"
	"remna-bot/internal/lock"
)

var ErrRunInProgress = errors.New("sync run already in progress")

// Store - локальное хранилище аккаунтов и каталога сквадов
type Store interface {
	ListAccounts(ctx context.Context, filter db.AccountFilter) ([]db.Account, error)
	CreateAccount(ctx context.Context, acc *db.Account) (bool, error)
	UpdateAccount(ctx context.Context, id uint, patch db.AccountPatch) error
	DeactivateAccount(ctx context.Context, id uint) error
	PurgeAccountData(ctx context.Context, id uint) error

	ListSquads(ctx context.Context) ([]db.Squad, error)
	UpsertSquad(ctx context.Context, squad db.Squad) (created, changed bool, err error)
	DeleteSquad(ctx context.Context, id string) error
}

// Panel - операции панели, нужные синхронизации
type Panel interface {
	ListUsers(ctx context.Context) ([]remnawave.User, error)
	CreateUser(ctx context.Context, req *remnawave.CreateUserRequest) (*remnawave.User, error)
	UpdateUserSquads(ctx context.Context, userUUID string, squads []string) error
	ListSquads(ctx context.Context) ([]remnawave.Squad, error)
}

type Options struct {
	Batch  batch.Options
	Locker lock.Locker
}

type Engine struct {
	store  Store
	panel  Panel
	batch  batch.Options
	locker lock.Locker

	running atomic.Bool
	now     func() time.Time
}

func NewEngine(store Store, panel Panel, opts Options) *Engine {
	locker := opts.Locker
	if locker == nil {
		locker = lock.Noop{}
	}
	return &Engine{
		store:  store,
		panel:  panel,
		batch:  opts.Batch,
		locker: locker,
		now:    time.Now,
	}
}

// IsRunning сообщает, идёт ли сейчас какая-либо операция движка
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

func (e *Engine) acquire(ctx context.Context) (func(), error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	unlock, ok, err := e.locker.TryLock(ctx)
	if err != nil {
		e.running.Store(false)
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !ok {
		e.running.Store(false)
		return nil, ErrRunInProgress
	}
	return func() {
		unlock()
		e.running.Store(false)
	}, nil
}

// RunReconciliation выполняет один прогон синхронизации панель -> база.
// Ошибка возвращается только если не удалось получить полные списки; ошибки отдельных записей
// считаются в статистике.
func (e *Engine) RunReconciliation(ctx context.Context, mode Mode) (*RunStatistics, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("unknown sync mode %q", mode)
	}

	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	stats := newStats(mode, e.now())
	slog.Info("Starting remnawave sync", "mode", mode)

	remote, err := e.panel.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch remote users: %w", err)
	}

	linked := true
	local, err := e.store.ListAccounts(ctx, db.AccountFilter{Linked: &linked})
	if err != nil {
		return nil, fmt.Errorf("fetch local accounts: %w", err)
	}

	var unlinked []db.Account
	if mode.creates() {
		notLinked := false
		unlinked, err = e.store.ListAccounts(ctx, db.AccountFilter{Linked: &notLinked})
		if err != nil {
			return nil, fmt.Errorf("fetch unlinked accounts: %w", err)
		}
	}

	stats.RemoteTotal = len(remote)
	stats.LocalTotal = len(local) + len(unlinked)

	p := buildPlan(remote, local, unlinked, stats)

	if mode.creates() {
		e.applyCreates(ctx, p.create, stats)
	}
	if mode.updates() {
		e.applyUpdates(ctx, p.update, stats)
	}
	if mode.deactivates() {
		e.applyDeactivations(ctx, p.deactivate, stats)
	}
	if mode == ModeFull {
		e.syncSquads(ctx, stats)
	}

	stats.FinishedAt = e.now()
	slog.Info("Remnawave sync completed",
		"mode", mode,
		"created", stats.Created,
		"updated", stats.Updated,
		"deactivated", stats.Deactivated,
		"errors", stats.Errors,
		"duration", stats.FinishedAt.Sub(stats.StartedAt))
	return stats, nil
}

// normalizeUUID приводит UUID к каноническому виду. Второе значение false для некорректного UUID,
// тогда возвращается исходная строка в нижнем регистре.
func normalizeUUID(s string) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s)), false
	}
	return id.String(), true
}
