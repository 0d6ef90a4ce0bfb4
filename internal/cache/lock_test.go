package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryLockerSerializesSameKey(t *testing.T) {
	locker := NewMemoryLocker()
	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "paid:A1")
			if err != nil {
				t.Errorf("lock failed: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected exclusive access, saw %d holders", maxSeen)
	}
	if locker.size() != 0 {
		t.Fatalf("expected slots to be released, got %d", locker.size())
	}
}

func TestMemoryLockerIndependentKeys(t *testing.T) {
	locker := NewMemoryLocker()
	unlockA, err := locker.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("lock a failed: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	unlockB, err := locker.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("lock b should not wait on a: %v", err)
	}
	unlockB()
}

func TestMemoryLockerHonoursContext(t *testing.T) {
	locker := NewMemoryLocker()
	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	unlock()
	unlock()
	if locker.size() != 0 {
		t.Fatalf("expected no live slots, got %d", locker.size())
	}
}

func TestNewLockerFallsBackToMemory(t *testing.T) {
	if _, ok := NewLocker(0, 0).(*MemoryLocker); !ok {
		t.Fatalf("expected memory locker when redis is disabled")
	}
}

func TestBuildKey(t *testing.T) {
	if got := BuildKey("lock:paid:A1"); got != redisPrefix+":lock:paid:A1" {
		t.Fatalf("unexpected key: %s", got)
	}
	if got := BuildKey("  "); got != redisPrefix {
		t.Fatalf("empty key should be prefix, got %s", got)
	}
}
