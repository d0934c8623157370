package mongo

import (
	"context"
	"time"

	"github.com/aegislabs/aegis/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type TurnLogRepository interface {
	Insert(ctx context.Context, t *models.TurnLog) error
	ListByConversation(ctx context.Context, conversationID string, limit int64) ([]models.TurnLog, error)
}

type turnLogRepo struct {
	col *mongo.Collection
}

func NewTurnLogRepo(db *mongo.Database) TurnLogRepository {
	return &turnLogRepo{col: db.Collection("turn_logs")}
}

func (r *turnLogRepo) Insert(ctx context.Context, t *models.TurnLog) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.ExpiresAt.IsZero() {
		t.ExpiresAt = t.CreatedAt.Add(30 * 24 * time.Hour)
	}
	_, err := r.col.InsertOne(ctx, t)
	return err
}

func (r *turnLogRepo) ListByConversation(ctx context.Context, conversationID string, limit int64) ([]models.TurnLog, error) {
	if limit <= 0 {
		limit = 200
	}

	cur, err := r.col.Find(ctx,
		bson.M{"conversation_id": conversationID},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: 1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.TurnLog
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
