package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLocalLocker_Exclusive(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	first, err := l.Obtain(ctx, "appointment:a1", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := l.Obtain(ctx, "appointment:a1", time.Minute); !errors.Is(err, ErrNotObtained) {
		t.Fatalf("expected ErrNotObtained, got %v", err)
	}
	if _, err := l.Obtain(ctx, "appointment:a2", time.Minute); err != nil {
		t.Fatalf("expected other key to be free, got %v", err)
	}

	_ = first.Release(ctx)
	if _, err := l.Obtain(ctx, "appointment:a1", time.Minute); err != nil {
		t.Fatalf("expected key free after release, got %v", err)
	}
}

func TestLocalLocker_Expiry(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()
	now := time.Now()
	l.nowFunc = func() time.Time { return now }

	stale, _ := l.Obtain(ctx, "k", time.Second)

	l.nowFunc = func() time.Time { return now.Add(2 * time.Second) }
	fresh, err := l.Obtain(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("expected expired lock to be reclaimable, got %v", err)
	}

	// The stale holder releasing must not free the new holder's lock.
	_ = stale.Release(ctx)
	if _, err := l.Obtain(ctx, "k", time.Second); !errors.Is(err, ErrNotObtained) {
		t.Fatalf("expected fresh lock to survive stale release, got %v", err)
	}
	_ = fresh.Release(ctx)
}

func TestLocalLocker_Concurrent(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Obtain(ctx, "same", time.Minute); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
}
