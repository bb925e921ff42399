package lock

import (
	"context"
	"path/filepath"
	"testing"
)

func TestFileLockExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.lock")
	ctx := context.Background()

	first := NewFile(path)
	unlock, ok, err := first.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("first TryLock = %v, %v", ok, err)
	}

	second := NewFile(path)
	if _, ok, err := second.TryLock(ctx); err != nil || ok {
		t.Fatalf("second TryLock while held = %v, %v; want false, nil", ok, err)
	}

	unlock()

	unlock2, ok, err := second.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("TryLock after release = %v, %v", ok, err)
	}
	unlock2()
}

func TestNoopAlwaysGranted(t *testing.T) {
	var l Locker = Noop{}
	for i := 0; i < 2; i++ {
		unlock, ok, err := l.TryLock(context.Background())
		if !ok || err != nil {
			t.Fatalf("Noop.TryLock = %v, %v", ok, err)
		}
		unlock()
	}
}
