package postgres

import (
	"context"

	"github.com/aegislabs/aegis/internal/models"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type DocumentRepo interface {
	SearchNearest(ctx context.Context, embedding []float32, k int) ([]models.DocumentChunk, error)
}

type documentRepo struct {
	db *gorm.DB
}

func NewDocumentRepo(db *gorm.DB) DocumentRepo {
	return &documentRepo{db: db}
}

func (r *documentRepo) SearchNearest(ctx context.Context, embedding []float32, k int) ([]models.DocumentChunk, error) {
	if k <= 0 {
		k = 4
	}

	var rows []models.DocumentChunk
	err := r.db.WithContext(ctx).
		Raw(`SELECT id, source, section, content
		     FROM document_chunks
		     ORDER BY embedding <=> ?
		     LIMIT ?`, pgvector.NewVector(embedding), k).
		Scan(&rows).Error
	return rows, err
}
