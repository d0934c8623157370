package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MetadataKeyQuestionsAsked is the recognized metadata key driving the
// dialogue phase. All other keys are opaque and pass through unmodified.
const MetadataKeyQuestionsAsked = "questions_asked"

type Conversation struct {
	ID        string            `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID    string            `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	Metadata  datatypes.JSONMap `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt time.Time         `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time         `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`

	Messages []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"messages"`
}

func (Conversation) TableName() string { return "conversations" }

// QuestionsAsked reads the phase counter, defaulting to 0 when absent.
// JSONB round-trips numbers as float64; both forms are accepted.
func (c *Conversation) QuestionsAsked() int {
	return questionsAskedFrom(c.Metadata)
}

// SetQuestionsAsked updates the counter in place, preserving every other key.
func (c *Conversation) SetQuestionsAsked(n int) {
	if c.Metadata == nil {
		c.Metadata = datatypes.JSONMap{}
	}
	c.Metadata[MetadataKeyQuestionsAsked] = n
}

func questionsAskedFrom(md map[string]any) int {
	if md == nil {
		return 0
	}
	switch v := md[MetadataKeyQuestionsAsked].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

type Message struct {
	ID             string    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ConversationID string    `gorm:"column:conversation_id;type:uuid;index" json:"conversation_id"`
	Role           string    `gorm:"column:role;type:text" json:"role"` // "user" | "assistant"
	Content        string    `gorm:"column:content;type:text" json:"content"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	TokenCount     int       `gorm:"column:token_count" json:"token_count"`
}

func (Message) TableName() string { return "messages" }

// ConversationSnapshot is the denormalized form stored in the cache.
// It is never authoritative; the Postgres rows are.
type ConversationSnapshot struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Messages  []Message      `json:"messages"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func SnapshotOf(c *Conversation) *ConversationSnapshot {
	return &ConversationSnapshot{
		ID:        c.ID,
		UserID:    c.UserID,
		Messages:  c.Messages,
		Metadata:  c.Metadata,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func (s *ConversationSnapshot) Conversation() *Conversation {
	return &Conversation{
		ID:        s.ID,
		UserID:    s.UserID,
		Metadata:  datatypes.JSONMap(s.Metadata),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Messages:  s.Messages,
	}
}

func (s *ConversationSnapshot) QuestionsAsked() int {
	return questionsAskedFrom(s.Metadata)
}
