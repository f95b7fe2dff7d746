package api

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisDeduperAddDetectsDuplicates(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	deduper := NewRedisDeduper(client, time.Minute)

	added, err := deduper.Add(ctx, "user-1", "key-1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !added {
		t.Fatal("first add should report a new key")
	}

	added, err = deduper.Add(ctx, "user-1", "key-1")
	if err != nil {
		t.Fatalf("duplicate add: %v", err)
	}
	if added {
		t.Fatal("duplicate add should be rejected")
	}

	// The same key under a different user is independent.
	added, err = deduper.Add(ctx, "user-2", "key-1")
	if err != nil {
		t.Fatalf("other user add: %v", err)
	}
	if !added {
		t.Fatal("key scoping must be per user")
	}

	if ttl := m.TTL(deduper.key("user-1", "key-1")); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}
}

func TestRedisDeduperRemoveAllowsRetry(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	deduper := NewRedisDeduper(client, time.Minute)

	if _, err := deduper.Add(ctx, "user-1", "key-1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := deduper.Remove(ctx, "user-1", "key-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	added, err := deduper.Add(ctx, "user-1", "key-1")
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if !added {
		t.Fatal("removed key should be addable again")
	}
}
