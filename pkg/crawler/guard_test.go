package crawler

import (
	"sync"
	"testing"
)

func TestGuardAcquireRelease(t *testing.T) {
	g := NewGuard()

	if !g.TryAcquire("task-1") {
		t.Fatal("First acquire must succeed")
	}
	if g.TryAcquire("task-1") {
		t.Error("Second acquire of the same task must fail")
	}
	if !g.TryAcquire("task-2") {
		t.Error("A different task must not be blocked")
	}
	if !g.Active("task-1") {
		t.Error("Expected task-1 to be active")
	}

	g.Release("task-1")
	if g.Active("task-1") {
		t.Error("Expected task-1 to be inactive after release")
	}
	if !g.TryAcquire("task-1") {
		t.Error("Acquire after release must succeed")
	}
}

func TestGuardReleaseUnknownTask(t *testing.T) {
	g := NewGuard()
	// Releasing a task that was never acquired is a no-op.
	g.Release("no-such-task")
}

func TestGuardConcurrentAcquire(t *testing.T) {
	g := NewGuard()

	const goroutines = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire("task-1") {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Errorf("Expected exactly one winner, got %d", count)
	}
}
