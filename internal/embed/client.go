package embed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/fyang0507/notion-rag-core/internal/llm"
	"github.com/fyang0507/notion-rag-core/internal/ragerrors"
)

// ClientEmbedder calls a remote llm.EmbeddingProvider, pacing requests with
// a rate limiter and retrying rate-limit errors a fixed number of times
// before giving up.
type ClientEmbedder struct {
	provider   llm.EmbeddingProvider
	model      string
	dim        int
	batchSize  int
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
}

// ClientOptions configures a ClientEmbedder.
type ClientOptions struct {
	Model          string
	Dimension      int
	BatchSize      int           // texts per provider call; 0 defaults to 16
	InterCallDelay time.Duration // minimum spacing between provider calls
	MaxRetries     int           // retry attempts on transient provider errors
	RetryDelay     time.Duration
}

// NewClient constructs a provider-backed Embedder.
func NewClient(provider llm.EmbeddingProvider, opt ClientOptions) *ClientEmbedder {
	batchSize := opt.BatchSize
	if batchSize <= 0 {
		batchSize = 16
	}
	retryDelay := opt.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	var limiter *rate.Limiter
	if opt.InterCallDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(opt.InterCallDelay), 1)
	}
	return &ClientEmbedder{
		provider:   provider,
		model:      opt.Model,
		dim:        opt.Dimension,
		batchSize:  batchSize,
		limiter:    limiter,
		maxRetries: opt.MaxRetries,
		retryDelay: retryDelay,
	}
}

func (c *ClientEmbedder) Model() string  { return c.model }
func (c *ClientEmbedder) Dimension() int { return c.dim }

func (c *ClientEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: embed: no vector returned", ragerrors.EmbedFailure)
	}
	return out[0], nil
}

func (c *ClientEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var all [][]float32
	for i := 0; i < len(texts); i += c.batchSize {
		end := i + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.callWithRetry(ctx, texts[i:end])
		if err != nil {
			return all, err
		}
		all = append(all, vecs...)
	}
	return all, nil
}

func (c *ClientEmbedder) callWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	attempts := c.maxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		vecs, _, err := c.provider.Embed(ctx, c.model, batch)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !errors.Is(err, ragerrors.TransientRemote) {
			break
		}
		select {
		case <-time.After(c.retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: embed batch of %d after retries: %v", ragerrors.EmbedFailure, len(batch), lastErr)
}
