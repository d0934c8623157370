package cache

import (
	"context"
	"time"

	"github.com/aegislabs/aegis/internal/models"
)

const conversationKeyPrefix = "conv:"

const DefaultConversationTTL = time.Hour

// ConversationCache holds denormalized conversation snapshots with a fixed
// TTL. Every write replaces the entry and restarts the window. Partial
// updates (AppendMessage, UpdateMetadata) are no-ops when the entry is
// absent: a miss must repopulate fully from the store, never from a
// fabricated partial entry.
type ConversationCache struct {
	kv  Cache
	ttl time.Duration
}

func NewConversationCache(kv Cache, ttl time.Duration) *ConversationCache {
	if ttl <= 0 {
		ttl = DefaultConversationTTL
	}
	return &ConversationCache{kv: kv, ttl: ttl}
}

func conversationKey(id string) string { return conversationKeyPrefix + id }

func (c *ConversationCache) Put(ctx context.Context, snap *models.ConversationSnapshot) error {
	return c.kv.SetJSON(ctx, conversationKey(snap.ID), snap, c.ttl)
}

func (c *ConversationCache) Get(ctx context.Context, conversationID string) (*models.ConversationSnapshot, bool, error) {
	var snap models.ConversationSnapshot
	hit, err := c.kv.GetJSON(ctx, conversationKey(conversationID), &snap)
	if err != nil || !hit {
		return nil, false, err
	}
	return &snap, true, nil
}

func (c *ConversationCache) AppendMessage(ctx context.Context, conversationID string, msg models.Message) error {
	snap, hit, err := c.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if !hit {
		return nil
	}
	snap.Messages = append(snap.Messages, msg)
	snap.UpdatedAt = msg.CreatedAt
	return c.Put(ctx, snap)
}

func (c *ConversationCache) UpdateMetadata(ctx context.Context, conversationID string, metadata map[string]any) error {
	snap, hit, err := c.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if !hit {
		return nil
	}
	snap.Metadata = metadata
	return c.Put(ctx, snap)
}

func (c *ConversationCache) Invalidate(ctx context.Context, conversationID string) error {
	return c.kv.Del(ctx, conversationKey(conversationID))
}
