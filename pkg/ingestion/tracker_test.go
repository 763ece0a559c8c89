package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestChecksumKey(t *testing.T) {
	if got := ChecksumKey("abc123"); got != "sha256:abc123" {
		t.Errorf("ChecksumKey = %q", got)
	}
}

func TestMemoryTrackerMarkAndForget(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTracker(0)

	first, err := tr.Mark(ctx, "sha256:aa")
	if err != nil || !first {
		t.Fatalf("first Mark = (%v, %v), want (true, nil)", first, err)
	}
	second, err := tr.Mark(ctx, "sha256:aa")
	if err != nil || second {
		t.Fatalf("second Mark = (%v, %v), want (false, nil)", second, err)
	}

	if err := tr.Forget(ctx, "sha256:aa"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	again, err := tr.Mark(ctx, "sha256:aa")
	if err != nil || !again {
		t.Fatalf("Mark after Forget = (%v, %v), want (true, nil)", again, err)
	}
}

func TestMemoryTrackerTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	tr := NewMemoryTracker(time.Hour).WithClock(func() time.Time { return now })

	if first, _ := tr.Mark(ctx, "sha256:bb"); !first {
		t.Fatal("first Mark should claim")
	}

	now = now.Add(30 * time.Minute)
	if dup, _ := tr.Mark(ctx, "sha256:bb"); dup {
		t.Fatal("Mark inside TTL should report duplicate")
	}

	now = now.Add(2 * time.Hour)
	if first, _ := tr.Mark(ctx, "sha256:bb"); !first {
		t.Fatal("Mark after expiry should claim again")
	}
}

func TestRedisTrackerMark(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	tr := NewRedisTracker(client, time.Hour)

	first, err := tr.Mark(ctx, "sha256:cc")
	if err != nil || !first {
		t.Fatalf("first Mark = (%v, %v), want (true, nil)", first, err)
	}
	second, err := tr.Mark(ctx, "sha256:cc")
	if err != nil || second {
		t.Fatalf("second Mark = (%v, %v), want (false, nil)", second, err)
	}

	mr.FastForward(2 * time.Hour)
	again, err := tr.Mark(ctx, "sha256:cc")
	if err != nil || !again {
		t.Fatalf("Mark after TTL = (%v, %v), want (true, nil)", again, err)
	}
}

func TestRedisTrackerForget(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	tr := NewRedisTracker(client, 0)

	if first, _ := tr.Mark(ctx, "sha256:dd"); !first {
		t.Fatal("first Mark should claim")
	}
	if err := tr.Forget(ctx, "sha256:dd"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if first, _ := tr.Mark(ctx, "sha256:dd"); !first {
		t.Fatal("Mark after Forget should claim")
	}
}
