package ratelimiter

import (
	"testing"
	"time"
)

func TestAllowConsumesBurstPerKey(t *testing.T) {
	l := New(1, 2, time.Minute)
	now := time.Unix(1_700_000_000, 0)

	if !l.Allow("ip:127.0.0.1", now) || !l.Allow("ip:127.0.0.1", now) {
		t.Fatal("burst of 2 must admit two calls")
	}
	if l.Allow("ip:127.0.0.1", now) {
		t.Fatal("third immediate call must be limited")
	}
	if !l.Allow("ip:10.0.0.2", now) {
		t.Fatal("other keys must have their own bucket")
	}
	if !l.Allow("ip:127.0.0.1", now.Add(time.Second)) {
		t.Fatal("bucket must refill at the configured rate")
	}
}

func TestNilAndBlankKeyAlwaysAllow(t *testing.T) {
	var l *MapLimiter
	if !l.Allow("any", time.Now()) {
		t.Fatal("nil limiter must allow everything")
	}
	if New(0, 10, 0) != nil {
		t.Fatal("non-positive rps must disable limiting")
	}
	limited := New(1, 1, time.Minute)
	if !limited.Allow("", time.Now()) || !limited.Allow("  ", time.Now()) {
		t.Fatal("blank keys are never limited")
	}
}

func TestIdleBucketsSwept(t *testing.T) {
	l := New(100, 100, time.Minute)
	start := time.Unix(1_700_000_000, 0)
	l.Allow("stale", start)
	// Drive enough hits past the TTL to trigger a sweep.
	later := start.Add(2 * time.Minute)
	for i := 0; i < sweepEvery+1; i++ {
		l.Allow("busy", later)
	}
	if got := l.Len(); got != 1 {
		t.Fatalf("expected stale bucket to be evicted, %d buckets left", got)
	}
}
