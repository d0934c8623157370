package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aegislabs/aegis/internal/models"
)

func snap(id string, questionsAsked int, msgs ...models.Message) *models.ConversationSnapshot {
	return &models.ConversationSnapshot{
		ID:       id,
		UserID:   "u1",
		Messages: msgs,
		Metadata: map[string]any{models.MetadataKeyQuestionsAsked: questionsAsked},
	}
}

func TestConversationCachePutGet(t *testing.T) {
	ctx := context.Background()
	c := NewConversationCache(NewMemoryCache(), time.Minute)

	if _, hit, err := c.Get(ctx, "c1"); err != nil || hit {
		t.Fatalf("expected clean miss, hit=%v err=%v", hit, err)
	}

	in := snap("c1", 2, models.Message{ID: "m1", Role: models.RoleAssistant, Content: "Question 3: ...", TokenCount: 9})
	if err := c.Put(ctx, in); err != nil {
		t.Fatal(err)
	}

	// repeated reads with no writes must return identical snapshots
	first, hit, err := c.Get(ctx, "c1")
	if err != nil || !hit {
		t.Fatalf("expected hit, err=%v", err)
	}
	second, hit, err := c.Get(ctx, "c1")
	if err != nil || !hit {
		t.Fatalf("expected second hit, err=%v", err)
	}

	b1, _ := json.Marshal(first)
	b2, _ := json.Marshal(second)
	if string(b1) != string(b2) {
		t.Fatalf("snapshots differ between reads:\n%s\n%s", b1, b2)
	}
	if first.QuestionsAsked() != 2 || len(first.Messages) != 1 {
		t.Fatalf("snapshot content wrong: %+v", first)
	}
}

func TestConversationCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewConversationCache(NewMemoryCache(), 50*time.Millisecond)

	if err := c.Put(ctx, snap("c1", 0)); err != nil {
		t.Fatal(err)
	}

	time.Sleep(80 * time.Millisecond)
	if _, hit, _ := c.Get(ctx, "c1"); hit {
		t.Fatalf("entry returned past its TTL")
	}
}

func TestConversationCacheAppendMessage(t *testing.T) {
	ctx := context.Background()
	c := NewConversationCache(NewMemoryCache(), time.Minute)

	// absent entry: append must be a no-op, never a fabricated entry
	if err := c.AppendMessage(ctx, "ghost", models.Message{ID: "m1"}); err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := c.Get(ctx, "ghost"); hit {
		t.Fatalf("append fabricated a cache entry")
	}

	if err := c.Put(ctx, snap("c1", 0)); err != nil {
		t.Fatal(err)
	}
	msg := models.Message{ID: "m1", ConversationID: "c1", Role: models.RoleUser, Content: "hi", TokenCount: 1}
	if err := c.AppendMessage(ctx, "c1", msg); err != nil {
		t.Fatal(err)
	}

	got, hit, _ := c.Get(ctx, "c1")
	if !hit || len(got.Messages) != 1 || got.Messages[0].ID != "m1" {
		t.Fatalf("message not appended: %+v", got)
	}
}

func TestConversationCacheUpdateMetadata(t *testing.T) {
	ctx := context.Background()
	c := NewConversationCache(NewMemoryCache(), time.Minute)

	// no-op when absent
	if err := c.UpdateMetadata(ctx, "ghost", map[string]any{models.MetadataKeyQuestionsAsked: 3}); err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := c.Get(ctx, "ghost"); hit {
		t.Fatalf("metadata update fabricated a cache entry")
	}

	if err := c.Put(ctx, snap("c1", 0)); err != nil {
		t.Fatal(err)
	}
	if err := c.UpdateMetadata(ctx, "c1", map[string]any{models.MetadataKeyQuestionsAsked: 3}); err != nil {
		t.Fatal(err)
	}

	got, hit, _ := c.Get(ctx, "c1")
	if !hit || got.QuestionsAsked() != 3 {
		t.Fatalf("metadata not updated: %+v", got)
	}
}

func TestConversationCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewConversationCache(NewMemoryCache(), time.Minute)

	if err := c.Put(ctx, snap("c1", 1)); err != nil {
		t.Fatal(err)
	}
	if err := c.Invalidate(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := c.Get(ctx, "c1"); hit {
		t.Fatalf("entry survived invalidation")
	}

	// invalidating an absent entry is fine
	if err := c.Invalidate(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
}
