package llm

import "context"

type Provider interface {
	// Generate returns the full answer for one turn.
	Generate(ctx context.Context, prompt string) (string, error)
	// StreamAnswer returns a stream of text chunks (incremental).
	StreamAnswer(ctx context.Context, prompt string) (chunks <-chan string, errs <-chan error)
	Close() error
}
