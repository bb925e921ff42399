// Package lock даёт межпроцессную блокировку "одного прогона": bot-service и syncctl
// не должны синхронизировать одну базу одновременно.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/gofrs/flock"
	"github.com/redis/go-redis/v9"
)

// Locker пытается взять блокировку без ожидания.
// ok == false без ошибки означает, что блокировку держит кто-то другой.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(), ok bool, err error)
}

// Noop - блокировка только внутри процесса, межпроцессной нет
type Noop struct{}

func (Noop) TryLock(context.Context) (func(), bool, error) {
	return func() {}, true, nil
}

// Redis держит ключ в redis с TTL и продлевает его, пока прогон идёт
type Redis struct {
	locker *redislock.Client
	key    string
	ttl    time.Duration
}

func NewRedis(client redis.UniversalClient, key string, ttl time.Duration) *Redis {
	return &Redis{locker: redislock.New(client), key: key, ttl: ttl}
}

func (r *Redis) TryLock(ctx context.Context) (func(), bool, error) {
	lk, err := r.locker.Obtain(ctx, r.key, r.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("obtain redis lock %s: %w", r.key, err)
	}

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(r.ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := lk.Refresh(context.Background(), r.ttl, nil); err != nil {
					slog.Warn("Failed to refresh sync lock", "key", r.key, "error", err)
					return
				}
			}
		}
	}()

	unlock := func() {
		close(stop)
		if err := lk.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			slog.Warn("Failed to release sync lock", "key", r.key, "error", err)
		}
	}
	return unlock, true, nil
}

// File - flock на файле рядом с базой, для запуска на одном хосте
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) TryLock(context.Context) (func(), bool, error) {
	fl := flock.New(f.path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("lock file %s: %w", f.path, err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			slog.Warn("Failed to unlock sync lock file", "path", f.path, "error", err)
		}
	}, true, nil
}
