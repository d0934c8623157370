package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TurnLog is a best-effort audit record of one completed assistant turn.
// Rows expire via a TTL index on ExpiresAt.
type TurnLog struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ConversationID string             `bson:"conversation_id" json:"conversation_id"`
	Phase          string             `bson:"phase" json:"phase"` // intake|synthesis|open_qa
	PromptTokens   int                `bson:"prompt_tokens" json:"prompt_tokens"`
	ResponseTokens int                `bson:"response_tokens" json:"response_tokens"`
	LatencyMS      int64              `bson:"latency_ms" json:"latency_ms"`
	Status         string             `bson:"status" json:"status"` // done|failed

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}
