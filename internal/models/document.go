package models

import (
	"github.com/pgvector/pgvector-go"
)

// DocumentChunk is one retrievable passage of the standards corpus
// (e.g. a section of ISO 27001). Ingestion is handled out of band;
// this service only reads.
type DocumentChunk struct {
	ID        string          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Source    string          `gorm:"column:source;type:text;index" json:"source"`
	Section   string          `gorm:"column:section;type:text" json:"section"`
	Content   string          `gorm:"column:content;type:text" json:"content"`
	Embedding pgvector.Vector `gorm:"column:embedding;type:vector(768)" json:"-"`
}

func (DocumentChunk) TableName() string { return "document_chunks" }
