package usecase

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSessionLockerSerializesSameSession(t *testing.T) {
	locker := NewSessionLocker()
	ctx := context.Background()

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	unlock, err := locker.Lock(ctx, "s1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		u, err := locker.Lock(ctx, "s1")
		if err != nil {
			t.Errorf("second Lock: %v", err)
			return
		}
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		u()
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	order = append(order, 1)
	mu.Unlock()
	unlock()
	wg.Wait()

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("order = %v, want [1 2]", order)
	}
}

func TestSessionLockerIndependentSessions(t *testing.T) {
	locker := NewSessionLocker()
	ctx := context.Background()

	u1, err := locker.Lock(ctx, "a")
	if err != nil {
		t.Fatalf("Lock a: %v", err)
	}
	defer u1()

	done := make(chan struct{})
	go func() {
		u2, err := locker.Lock(ctx, "b")
		if err != nil {
			t.Errorf("Lock b: %v", err)
			return
		}
		u2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different session blocked")
	}
}

func TestSessionLockerContextCancellation(t *testing.T) {
	locker := NewSessionLocker()

	unlock, err := locker.Lock(context.Background(), "s")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "s"); err == nil {
		t.Fatal("Lock should fail when the context expires while waiting")
	}

	unlock()

	// The abandoned waiter must not orphan the lock.
	deadline := time.Now().Add(time.Second)
	for locker.ActiveCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("ActiveCount = %d, want 0 after release", locker.ActiveCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionLockerRefCountCleanup(t *testing.T) {
	locker := NewSessionLocker()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		u, err := locker.Lock(ctx, "s")
		if err != nil {
			t.Fatalf("Lock: %v", err)
		}
		u()
	}
	if n := locker.ActiveCount(); n != 0 {
		t.Errorf("ActiveCount = %d, want 0", n)
	}
}
