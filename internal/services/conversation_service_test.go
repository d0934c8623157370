package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aegislabs/aegis/internal/cache"
	"github.com/aegislabs/aegis/internal/models"
	"github.com/aegislabs/aegis/internal/utils"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// fakeConversationRepo is an in-memory stand-in for the Postgres store.
type fakeConversationRepo struct {
	mu     sync.Mutex
	convos map[string]*models.Conversation
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{convos: make(map[string]*models.Conversation)}
}

func (r *fakeConversationRepo) Create(ctx context.Context, userID string, metadata map[string]any) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	md := datatypes.JSONMap{}
	for k, v := range metadata {
		md[k] = v
	}
	if _, ok := md[models.MetadataKeyQuestionsAsked]; !ok {
		md[models.MetadataKeyQuestionsAsked] = 0
	}

	now := time.Now().UTC()
	row := &models.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Metadata:  md,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []models.Message{},
	}
	r.convos[row.ID] = row
	return copyConversation(row), nil
}

func (r *fakeConversationRepo) AddMessage(ctx context.Context, conversationID, role, content string, tokenCount int) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.convos[conversationID]
	if !ok {
		return nil, utils.ErrNotFound
	}

	now := time.Now().UTC()
	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
		TokenCount:     tokenCount,
	}
	row.Messages = append(row.Messages, msg)
	row.UpdatedAt = now
	return &msg, nil
}

func (r *fakeConversationRepo) Get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.convos[conversationID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return copyConversation(row), nil
}

func (r *fakeConversationRepo) UpdateMetadata(ctx context.Context, conversationID string, metadata map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.convos[conversationID]
	if !ok {
		return utils.ErrNotFound
	}
	md := datatypes.JSONMap{}
	for k, v := range metadata {
		md[k] = v
	}
	row.Metadata = md
	row.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *fakeConversationRepo) ListByUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Conversation
	for _, row := range r.convos {
		if row.UserID == userID {
			out = append(out, *copyConversation(row))
		}
	}
	return out, nil
}

func (r *fakeConversationRepo) Delete(ctx context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.convos[conversationID]; !ok {
		return utils.ErrNotFound
	}
	delete(r.convos, conversationID)
	return nil
}

func copyConversation(row *models.Conversation) *models.Conversation {
	cp := *row
	cp.Metadata = datatypes.JSONMap{}
	for k, v := range row.Metadata {
		cp.Metadata[k] = v
	}
	cp.Messages = append([]models.Message(nil), row.Messages...)
	return &cp
}

// failingKV simulates a cache backend outage.
type failingKV struct{}

var errKVDown = errors.New("kv down")

func (failingKV) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	return false, errKVDown
}
func (failingKV) SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error {
	return errKVDown
}
func (failingKV) Del(ctx context.Context, keys ...string) error { return errKVDown }

func newTestConversationService() (ConversationService, *fakeConversationRepo, *cache.ConversationCache) {
	repo := newFakeConversationRepo()
	convCache := cache.NewConversationCache(cache.NewMemoryCache(), time.Minute)
	return NewConversationService(repo, convCache, nil), repo, convCache
}

func TestAddMessageThenGet(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestConversationService()

	conv, err := svc.Create(ctx, "u1", nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.AddMessage(ctx, conv.ID, models.RoleAssistant, "Question 1: what do you do?", 12); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddMessage(ctx, conv.ID, models.RoleUser, "we build boats", 8); err != nil {
		t.Fatal(err)
	}

	got, err := svc.Get(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("conversation vanished")
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Role != models.RoleAssistant || got.Messages[0].TokenCount != 12 {
		t.Fatalf("first message wrong: %+v", got.Messages[0])
	}
	if got.Messages[1].Role != models.RoleUser || got.Messages[1].TokenCount != 8 {
		t.Fatalf("second message wrong: %+v", got.Messages[1])
	}
	if got.QuestionsAsked() != 0 {
		t.Fatalf("counter should stay 0 until explicitly updated, got %d", got.QuestionsAsked())
	}
}

func TestGetReadThroughFillsCache(t *testing.T) {
	ctx := context.Background()
	svc, repo, convCache := newTestConversationService()

	conv, err := svc.Create(ctx, "u1", nil)
	if err != nil {
		t.Fatal(err)
	}
	// simulate expiry
	if err := convCache.Invalidate(ctx, conv.ID); err != nil {
		t.Fatal(err)
	}

	got, err := svc.Get(ctx, conv.ID)
	if err != nil || got == nil {
		t.Fatalf("read-through failed: %v", err)
	}

	if _, hit, _ := convCache.Get(ctx, conv.ID); !hit {
		t.Fatal("miss did not repopulate the cache")
	}

	// subsequent reads are served from cache: mutating the store behind
	// the cache's back must not change what Get returns within the TTL
	if err := repo.Delete(ctx, conv.ID); err != nil {
		t.Fatal(err)
	}
	again, err := svc.Get(ctx, conv.ID)
	if err != nil || again == nil {
		t.Fatalf("expected cached read, got conv=%v err=%v", again, err)
	}
}

func TestWriteThroughKeepsCacheCurrent(t *testing.T) {
	ctx := context.Background()
	svc, _, convCache := newTestConversationService()

	conv, err := svc.Create(ctx, "u1", nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.AddMessage(ctx, conv.ID, models.RoleUser, "hello", 1); err != nil {
		t.Fatal(err)
	}
	snap, hit, _ := convCache.Get(ctx, conv.ID)
	if !hit || len(snap.Messages) != 1 {
		t.Fatalf("append not mirrored to cache: hit=%v %+v", hit, snap)
	}

	if err := svc.UpdateMetadata(ctx, conv.ID, map[string]any{models.MetadataKeyQuestionsAsked: 2}); err != nil {
		t.Fatal(err)
	}
	snap, hit, _ = convCache.Get(ctx, conv.ID)
	if !hit || snap.QuestionsAsked() != 2 {
		t.Fatalf("metadata not mirrored to cache: hit=%v %+v", hit, snap)
	}
}

func TestCacheFailureNeverFailsOperations(t *testing.T) {
	ctx := context.Background()
	repo := newFakeConversationRepo()
	convCache := cache.NewConversationCache(failingKV{}, time.Minute)
	svc := NewConversationService(repo, convCache, nil)

	conv, err := svc.Create(ctx, "u1", nil)
	if err != nil {
		t.Fatalf("create should survive cache outage: %v", err)
	}
	if _, err := svc.AddMessage(ctx, conv.ID, models.RoleUser, "hi", 1); err != nil {
		t.Fatalf("add message should survive cache outage: %v", err)
	}
	if err := svc.UpdateMetadata(ctx, conv.ID, map[string]any{models.MetadataKeyQuestionsAsked: 1}); err != nil {
		t.Fatalf("metadata update should survive cache outage: %v", err)
	}
	got, err := svc.Get(ctx, conv.ID)
	if err != nil || got == nil {
		t.Fatalf("get should fall through to the store: %v", err)
	}
	if err := svc.Delete(ctx, conv.ID); err != nil {
		t.Fatalf("delete should survive cache outage: %v", err)
	}
}

func TestGetAbsent(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestConversationService()

	got, err := svc.Get(ctx, uuid.NewString())
	if err != nil {
		t.Fatalf("absent conversation is not an error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestDeleteInvalidates(t *testing.T) {
	ctx := context.Background()
	svc, repo, convCache := newTestConversationService()

	conv, err := svc.Create(ctx, "u1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, conv.ID); err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete(ctx, conv.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := repo.Get(ctx, conv.ID); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("store still has the conversation: %v", err)
	}
	if _, hit, _ := convCache.Get(ctx, conv.ID); hit {
		t.Fatal("cache still has the conversation")
	}
	got, err := svc.Get(ctx, conv.ID)
	if err != nil || got != nil {
		t.Fatalf("expected absent after delete, got %+v err=%v", got, err)
	}
}

func TestNotFoundCodes(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestConversationService()
	id := uuid.NewString()

	if _, err := svc.AddMessage(ctx, id, models.RoleUser, "hi", 1); !utils.IsCode(err, utils.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if err := svc.UpdateMetadata(ctx, id, map[string]any{}); !utils.IsCode(err, utils.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if err := svc.Delete(ctx, id); !utils.IsCode(err, utils.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
