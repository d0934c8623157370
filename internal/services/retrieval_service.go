package services

import (
	"context"
	"strings"

	"github.com/aegislabs/aegis/internal/providers/embeddings"
	pgrepo "github.com/aegislabs/aegis/internal/repositories/postgres"
	"github.com/aegislabs/aegis/internal/utils"
)

// Passage is one ranked excerpt of the standards corpus.
type Passage struct {
	Source  string `json:"source"`
	Section string `json:"section"`
	Content string `json:"content"`
}

type RetrievalService interface {
	Retrieve(ctx context.Context, query string, k int) ([]Passage, error)
}

type retrievalService struct {
	docs     pgrepo.DocumentRepo
	embedder embeddings.Embedder
	topK     int
}

func NewRetrievalService(docs pgrepo.DocumentRepo, embedder embeddings.Embedder, topK int) RetrievalService {
	if topK <= 0 {
		topK = 4
	}
	return &retrievalService{docs: docs, embedder: embedder, topK: topK}
}

func (s *retrievalService) Retrieve(ctx context.Context, query string, k int) ([]Passage, error) {
	const op = "RetrievalService.Retrieve"

	if strings.TrimSpace(query) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "query is required", nil)
	}
	if k <= 0 {
		k = s.topK
	}

	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to embed query", err)
	}
	if len(vecs) == 0 {
		return nil, utils.E(utils.CodeUnavailable, op, "embedder returned no vectors", nil)
	}

	chunks, err := s.docs.SearchNearest(ctx, vecs[0], k)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to search corpus", err)
	}

	out := make([]Passage, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, Passage{Source: c.Source, Section: c.Section, Content: c.Content})
	}
	return out, nil
}

// FormatPassages renders retrieved passages for the generation prompt.
func FormatPassages(passages []Passage) string {
	if len(passages) == 0 {
		return "(no relevant passages found)"
	}
	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("[")
		b.WriteString(p.Source)
		if p.Section != "" {
			b.WriteString(" ")
			b.WriteString(p.Section)
		}
		b.WriteString("] ")
		b.WriteString(p.Content)
	}
	return b.String()
}
