package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketBurst(t *testing.T) {
	tb := NewTokenBucket(60, time.Minute, 5)

	for i := 0; i < 5; i++ {
		if !tb.Allow() {
			t.Fatalf("Request %d within burst should be allowed", i)
		}
	}
	if tb.Allow() {
		t.Error("Request beyond burst should be denied")
	}
}

func TestTokenBucketRefill(t *testing.T) {
	// 100 tokens per 100ms = one per millisecond.
	tb := NewTokenBucket(100, 100*time.Millisecond, 2)

	tb.Allow()
	tb.Allow()
	if tb.Allow() {
		t.Fatal("Bucket should be empty")
	}

	time.Sleep(20 * time.Millisecond)
	if !tb.Allow() {
		t.Error("Expected a token after refill interval")
	}
}

func TestTokenBucketRefillCapped(t *testing.T) {
	tb := NewTokenBucket(1000, time.Millisecond, 3)

	time.Sleep(10 * time.Millisecond)

	allowed := 0
	for i := 0; i < 10; i++ {
		if tb.Allow() {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("Expected refill capped at burst 3, got %d", allowed)
	}
}

func TestTokenBucketWait(t *testing.T) {
	tb := NewTokenBucket(100, 100*time.Millisecond, 1)
	tb.Allow() // drain

	start := time.Now()
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Wait took too long: %s", elapsed)
	}
}

func TestTokenBucketWaitCancelled(t *testing.T) {
	// One token per hour: Wait can only end through the context.
	tb := NewTokenBucket(1, time.Hour, 1)
	tb.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tb.Wait(ctx)
	if err == nil {
		t.Fatal("Expected Wait to fail on context timeout")
	}
	if err != context.DeadlineExceeded {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestTokenBucketReset(t *testing.T) {
	tb := NewTokenBucket(1, time.Hour, 2)
	tb.Allow()
	tb.Allow()
	if tb.Allow() {
		t.Fatal("Bucket should be empty")
	}

	tb.Reset()
	if !tb.Allow() {
		t.Error("Expected a token after reset")
	}
}
