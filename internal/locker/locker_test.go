package locker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestKeyedMutexSerializesSameSession(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
	)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := km.Lock(ctx, 42)
			if err != nil {
				t.Errorf("Lock failed: %v", err)
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
		t.Fatalf("expected at most one holder at a time, saw %d", maxSeen)
	}
}

func TestKeyedMutexIndependentSessions(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := km.Lock(ctx, 1)
	if err != nil {
		t.Fatalf("Lock session 1: %v", err)
	}
	defer unlockA()

	// A different session must not block.
	done := make(chan struct{})
	go func() {
		unlockB, err := km.Lock(ctx, 2)
		if err != nil {
			t.Errorf("Lock session 2: %v", err)
			return
		}
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different session blocked")
	}
}

func TestKeyedMutexCancelledContext(t *testing.T) {
	km := NewKeyedMutex()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := km.Lock(ctx, 7); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func newTestRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, 5*time.Second), mr
}

func TestRedisLockerAcquireRelease(t *testing.T) {
	l, mr := newTestRedisLocker(t)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, 9)
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if !mr.Exists("opd:session-lock:9") {
		t.Fatal("expected lock key to exist while held")
	}

	unlock()
	if mr.Exists("opd:session-lock:9") {
		t.Fatal("expected lock key to be released")
	}
}

func TestRedisLockerBlocksSecondHolder(t *testing.T) {
	l, _ := newTestRedisLocker(t)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, 3)
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(waitCtx, 3); err == nil {
		t.Fatal("expected second Lock on held session to time out")
	}

	unlock()
	unlock2, err := l.Lock(ctx, 3)
	if err != nil {
		t.Fatalf("Lock after release failed: %v", err)
	}
	unlock2()
}

func TestRedisLockerStaleReleaseIsNoop(t *testing.T) {
	l, mr := newTestRedisLocker(t)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, 4)
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	// Simulate expiry plus re-acquisition by another holder.
	mr.Del("opd:session-lock:4")
	unlock2, err := l.Lock(ctx, 4)
	if err != nil {
		t.Fatalf("re-acquire failed: %v", err)
	}

	// The stale holder's release must not free the new holder's lock.
	unlock()
	if !mr.Exists("opd:session-lock:4") {
		t.Fatal("stale release removed the current holder's lock")
	}
	unlock2()
}
