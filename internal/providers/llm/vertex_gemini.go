package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"
)

type VertexGemini struct {
	client *vertexgenai.Client
	model  *vertexgenai.GenerativeModel
}

const (
	constructAttempts  = 5
	constructBaseDelay = time.Second
)

// NewVertexGemini dials the Vertex AI backend. Construction is retried
// with exponential backoff over a bounded number of attempts; individual
// generation calls are not retried.
func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	var c *vertexgenai.Client
	err := retryDial(ctx, constructAttempts, constructBaseDelay, func() error {
		var derr error
		c, derr = vertexgenai.NewClient(ctx, projectID, location)
		return derr
	})
	if err != nil {
		return nil, err
	}

	m := c.GenerativeModel(modelName)
	return &VertexGemini{client: c, model: m}, nil
}

// retryDial retries dial with exponential backoff, sleeping only
// between attempts.
func retryDial(ctx context.Context, attempts int, baseDelay time.Duration, dial func() error) error {
	delay := baseDelay
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = dial(); err == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func (v *VertexGemini) Close() error { return v.client.Close() }

func (v *VertexGemini) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := v.model.GenerateContent(ctx, vertexgenai.Text(prompt))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(vertexgenai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	if b.Len() == 0 {
		return "", errors.New("empty model response")
	}
	return b.String(), nil
}

func (v *VertexGemini) StreamAnswer(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	out := make(chan string, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		it := v.model.GenerateContentStream(ctx, vertexgenai.Text(prompt))
		for {
			resp, err := it.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				errs <- err
				return
			}

			for _, cand := range resp.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					t, ok := part.(vertexgenai.Text)
					if !ok || string(t) == "" {
						continue
					}
					// never block forever on an abandoned consumer
					select {
					case out <- string(t):
					case <-ctx.Done():
						errs <- ctx.Err()
						return
					}
				}
			}
		}
	}()

	return out, errs
}
