// Package llm adapts the external chat/completion and embedding provider
// into the small interfaces the rest of the core depends on. The core never
// imports a provider SDK directly; it depends on ChatProvider and
// EmbeddingProvider so the concrete backend (OpenAI, Anthropic) is a
// configuration choice, not a compile-time one.
package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fyang0507/notion-rag-core/internal/ragerrors"
)

// Message is one turn of a chat exchange.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// CompletionRequest is a single chat completion call, used by both
// Complete and Stream.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// CompletionResponse carries the generated text plus token accounting for
// cost/usage observability.
type CompletionResponse struct {
	Content      string
	PromptTokens int
	OutputTokens int
}

// StreamDelta is one incremental piece of a streamed chat response.
type StreamDelta struct {
	Content string
	Done    bool
}

// ChatProvider is satisfied by both the OpenAI and Anthropic adapters. The
// context enricher, session title/summary generation, and the chat endpoint
// all depend on this interface rather than a concrete SDK client.
type ChatProvider interface {
	// Complete issues a single blocking completion call.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	// Stream issues a completion call and delivers incremental deltas on
	// the returned channel, closing it when the response (or ctx) ends.
	// Any error encountered is the final value before the channel closes;
	// callers should check it via the returned error func.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamDelta, func() error)
}

// classifyProviderError wraps err as ragerrors.TransientRemote when
// statusCode signals a rate limit or a server-side failure (429 or 5xx),
// so callers that retry on TransientRemote (e.g. embed.ClientEmbedder)
// actually see those errors; any other status wraps as fallback.
func classifyProviderError(fallback error, statusCode int, op string, err error) error {
	if statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s: %v", ragerrors.TransientRemote, op, err)
	}
	return fmt.Errorf("%w: %s: %v", fallback, op, err)
}

// EmbeddingProvider converts text into embedding vectors.
type EmbeddingProvider interface {
	// Embed returns one vector per input text, in order, plus the total
	// prompt tokens billed for the call.
	Embed(ctx context.Context, model string, texts []string) ([][]float32, int, error)
}
