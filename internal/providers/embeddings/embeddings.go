package embeddings

import "context"

// Embedder turns text into fixed-dimension vectors. Index construction
// and document loading happen out of band; the service only embeds
// queries at retrieval time.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
