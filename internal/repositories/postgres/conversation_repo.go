package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/aegislabs/aegis/internal/models"
	"github.com/aegislabs/aegis/internal/utils"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ConversationRepo is the sole source of truth for conversations and
// their messages. Multi-step writes run inside a transaction so no
// partial state is ever visible to other readers.
type ConversationRepo interface {
	Create(ctx context.Context, userID string, metadata map[string]any) (*models.Conversation, error)
	AddMessage(ctx context.Context, conversationID, role, content string, tokenCount int) (*models.Message, error)
	Get(ctx context.Context, conversationID string) (*models.Conversation, error)
	UpdateMetadata(ctx context.Context, conversationID string, metadata map[string]any) error
	ListByUser(ctx context.Context, userID string) ([]models.Conversation, error)
	Delete(ctx context.Context, conversationID string) error
}

type conversationRepo struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) Create(ctx context.Context, userID string, metadata map[string]any) (*models.Conversation, error) {
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
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *conversationRepo) AddMessage(ctx context.Context, conversationID, role, content string, tokenCount int) (*models.Message, error) {
	now := time.Now().UTC()
	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
		TokenCount:     tokenCount,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return utils.ErrNotFound
		}
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		// Message append always bumps the parent conversation.
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", now).Error
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *conversationRepo) Get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var row models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Take(&row, "id = ?", conversationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *conversationRepo) UpdateMetadata(ctx context.Context, conversationID string, metadata map[string]any) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Updates(map[string]any{
				"metadata":   datatypes.JSONMap(metadata),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.ErrNotFound
		}
		return nil
	})
}

func (r *conversationRepo) ListByUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	var rows []models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&rows).Error
	return rows, err
}

func (r *conversationRepo) Delete(ctx context.Context, conversationID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", conversationID).
			Delete(&models.Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", conversationID).Delete(&models.Conversation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.ErrNotFound
		}
		return nil
	})
}
