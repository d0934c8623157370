package models

import (
	"encoding/json"
	"testing"

	"gorm.io/datatypes"
)

func TestQuestionsAskedDefaults(t *testing.T) {
	c := &Conversation{}
	if got := c.QuestionsAsked(); got != 0 {
		t.Fatalf("expected 0 for nil metadata, got %d", got)
	}

	c.Metadata = datatypes.JSONMap{"foo": "bar"}
	if got := c.QuestionsAsked(); got != 0 {
		t.Fatalf("expected 0 when key absent, got %d", got)
	}
}

func TestQuestionsAskedNumericForms(t *testing.T) {
	// JSONB round-trips numbers as float64
	c := &Conversation{Metadata: datatypes.JSONMap{MetadataKeyQuestionsAsked: float64(3)}}
	if got := c.QuestionsAsked(); got != 3 {
		t.Fatalf("expected 3 from float64, got %d", got)
	}

	c.SetQuestionsAsked(4)
	if got := c.QuestionsAsked(); got != 4 {
		t.Fatalf("expected 4 after set, got %d", got)
	}
}

func TestSetQuestionsAskedPreservesOtherKeys(t *testing.T) {
	c := &Conversation{Metadata: datatypes.JSONMap{
		"company":                 "acme",
		MetadataKeyQuestionsAsked: 1,
	}}
	c.SetQuestionsAsked(2)

	if c.Metadata["company"] != "acme" {
		t.Fatalf("unrecognized metadata key was dropped: %v", c.Metadata)
	}
	if got := c.QuestionsAsked(); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	c := &Conversation{
		ID:       "c1",
		UserID:   "u1",
		Metadata: datatypes.JSONMap{MetadataKeyQuestionsAsked: 2, "extra": "kept"},
		Messages: []Message{
			{ID: "m1", ConversationID: "c1", Role: RoleAssistant, Content: "Question 1: ...", TokenCount: 12},
			{ID: "m2", ConversationID: "c1", Role: RoleUser, Content: "we build boats", TokenCount: 8},
		},
	}

	snap := SnapshotOf(c)

	// the cache stores JSON; the counter must survive the trip
	b, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	var back ConversationSnapshot
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}

	if back.QuestionsAsked() != 2 {
		t.Fatalf("counter lost in round trip: %d", back.QuestionsAsked())
	}
	if back.Metadata["extra"] != "kept" {
		t.Fatalf("extra metadata lost: %v", back.Metadata)
	}

	conv := back.Conversation()
	if conv.ID != "c1" || conv.UserID != "u1" {
		t.Fatalf("identity lost: %+v", conv)
	}
	if len(conv.Messages) != 2 || conv.Messages[1].TokenCount != 8 {
		t.Fatalf("messages lost: %+v", conv.Messages)
	}
}
