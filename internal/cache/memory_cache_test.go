package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheSetGetAndExpire(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	var out string
	if hit, _ := c.GetJSON(ctx, "k", &out); hit {
		t.Fatalf("expected no value initially")
	}

	if err := c.SetJSON(ctx, "k", "hello", 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if hit, _ := c.GetJSON(ctx, "k", &out); !hit || out != "hello" {
		t.Fatalf("expected 'hello', got %q hit=%v", out, hit)
	}

	// wait for expiry
	time.Sleep(80 * time.Millisecond)
	if hit, _ := c.GetJSON(ctx, "k", &out); hit {
		t.Fatalf("expected expired value to be gone")
	}
}

func TestMemoryCacheDel(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	if err := c.SetJSON(ctx, "k", 42, time.Second); err != nil {
		t.Fatal(err)
	}
	if err := c.Del(ctx, "k"); err != nil {
		t.Fatal(err)
	}

	var out int
	if hit, _ := c.GetJSON(ctx, "k", &out); hit {
		t.Fatalf("expected deleted value to be absent")
	}
}
