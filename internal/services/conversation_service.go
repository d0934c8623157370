package services

import (
	"context"
	"errors"

	"github.com/aegislabs/aegis/internal/cache"
	"github.com/aegislabs/aegis/internal/models"
	pgrepo "github.com/aegislabs/aegis/internal/repositories/postgres"
	"github.com/aegislabs/aegis/internal/utils"
	"github.com/sirupsen/logrus"
)

// ConversationService is the single entry point for conversation state.
// It orchestrates the Postgres store and the snapshot cache with a
// read-through, write-through policy. The store is authoritative: a
// cache failure after a committed store write is logged and swallowed,
// and the entry self-heals on the next miss-driven refill.
type ConversationService interface {
	Create(ctx context.Context, userID string, metadata map[string]any) (*models.Conversation, error)
	AddMessage(ctx context.Context, conversationID, role, content string, tokenCount int) (*models.Message, error)
	// Get returns (nil, nil) when the conversation does not exist.
	Get(ctx context.Context, conversationID string) (*models.Conversation, error)
	UpdateMetadata(ctx context.Context, conversationID string, metadata map[string]any) error
	ListByUser(ctx context.Context, userID string) ([]models.Conversation, error)
	Delete(ctx context.Context, conversationID string) error
}

type conversationService struct {
	repo  pgrepo.ConversationRepo
	cache *cache.ConversationCache
	log   *logrus.Logger
}

func NewConversationService(repo pgrepo.ConversationRepo, convCache *cache.ConversationCache, log *logrus.Logger) ConversationService {
	return &conversationService{repo: repo, cache: convCache, log: log}
}

func (s *conversationService) Create(ctx context.Context, userID string, metadata map[string]any) (*models.Conversation, error) {
	const op = "ConversationService.Create"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	row, err := s.repo.Create(ctx, userID, metadata)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to create conversation", err)
	}

	if cerr := s.cache.Put(ctx, models.SnapshotOf(row)); cerr != nil {
		s.warnCache(op, row.ID, cerr)
	}
	return row, nil
}

func (s *conversationService) AddMessage(ctx context.Context, conversationID, role, content string, tokenCount int) (*models.Message, error) {
	const op = "ConversationService.AddMessage"

	if conversationID == "" || role == "" || content == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "conversation_id, role, and content are required", nil)
	}

	msg, err := s.repo.AddMessage(ctx, conversationID, role, content, tokenCount)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "conversation not found", err)
		}
		return nil, utils.E(utils.CodeUnavailable, op, "failed to add message", err)
	}

	if cerr := s.cache.AppendMessage(ctx, conversationID, *msg); cerr != nil {
		s.warnCache(op, conversationID, cerr)
	}
	return msg, nil
}

func (s *conversationService) Get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	const op = "ConversationService.Get"

	if conversationID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "conversation_id is required", nil)
	}

	snap, hit, cerr := s.cache.Get(ctx, conversationID)
	if cerr != nil {
		s.warnCache(op, conversationID, cerr)
	}
	if hit {
		return snap.Conversation(), nil
	}

	row, err := s.repo.Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, nil
		}
		return nil, utils.E(utils.CodeUnavailable, op, "failed to get conversation", err)
	}

	if cerr := s.cache.Put(ctx, models.SnapshotOf(row)); cerr != nil {
		s.warnCache(op, conversationID, cerr)
	}
	return row, nil
}

func (s *conversationService) UpdateMetadata(ctx context.Context, conversationID string, metadata map[string]any) error {
	const op = "ConversationService.UpdateMetadata"

	if conversationID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "conversation_id is required", nil)
	}

	if err := s.repo.UpdateMetadata(ctx, conversationID, metadata); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "conversation not found", err)
		}
		return utils.E(utils.CodeUnavailable, op, "failed to update metadata", err)
	}

	if cerr := s.cache.UpdateMetadata(ctx, conversationID, metadata); cerr != nil {
		s.warnCache(op, conversationID, cerr)
	}
	return nil
}

func (s *conversationService) ListByUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	const op = "ConversationService.ListByUser"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to list conversations", err)
	}
	return rows, nil
}

func (s *conversationService) Delete(ctx context.Context, conversationID string) error {
	const op = "ConversationService.Delete"

	if conversationID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "conversation_id is required", nil)
	}

	err := s.repo.Delete(ctx, conversationID)

	// Invalidate even when the store row was already gone; the cache may
	// still hold a stale snapshot.
	if cerr := s.cache.Invalidate(ctx, conversationID); cerr != nil {
		s.warnCache(op, conversationID, cerr)
	}

	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "conversation not found", err)
		}
		return utils.E(utils.CodeUnavailable, op, "failed to delete conversation", err)
	}
	return nil
}

func (s *conversationService) warnCache(op, conversationID string, err error) {
	if s.log == nil {
		return
	}
	s.log.WithFields(logrus.Fields{
		"op":              op,
		"conversation_id": conversationID,
	}).WithError(err).Warn("conversation cache error (ignored)")
}
