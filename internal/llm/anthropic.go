package llm

import (
	"context"
	"errors"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/fyang0507/notion-rag-core/internal/observability"
	"github.com/fyang0507/notion-rag-core/internal/ragerrors"
)

// anthropicStatusCode extracts the HTTP status code from an
// anthropic-sdk-go error, or 0 if err isn't a *anthropic.Error.
func anthropicStatusCode(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Anthropic adapts the anthropic-sdk-go client to ChatProvider. It does not
// implement EmbeddingProvider; Anthropic offers no embeddings endpoint.
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic constructs an Anthropic-backed chat provider.
func NewAnthropic(apiKey, model string) *Anthropic {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(observability.NewHTTPClient(nil)),
	}
	return &Anthropic{client: anthropic.NewClient(opts...), model: model}
}

func splitSystem(msgs []Message) (string, []Message) {
	var system string
	var rest []Message
	for _, m := range msgs {
		if m.Role == "system" {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

func toAnthropicMessages(msgs []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			continue
		}
		out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}
	return out
}

func (a *Anthropic) params(req CompletionRequest) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = a.model
	}
	system, rest := splitSystem(req.Messages)
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	p := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  toAnthropicMessages(rest),
		MaxTokens: maxTokens,
	}
	if system != "" {
		p.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		p.Temperature = anthropic.Float(req.Temperature)
	}
	return p
}

func (a *Anthropic) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	msg, err := a.client.Messages.New(ctx, a.params(req))
	if err != nil {
		return CompletionResponse{}, classifyProviderError(ragerrors.LLMFailure, anthropicStatusCode(err), "anthropic completion", err)
	}
	var content string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			content += tb.Text
		}
	}
	return CompletionResponse{
		Content:      content,
		PromptTokens: int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

func (a *Anthropic) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamDelta, func() error) {
	out := make(chan StreamDelta)
	var streamErr error

	go func() {
		defer close(out)
		stream := a.client.Messages.NewStreaming(ctx, a.params(req))
		for stream.Next() {
			switch ev := stream.Current().AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if td, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && td.Text != "" {
					select {
					case out <- StreamDelta{Content: td.Text}:
					case <-ctx.Done():
						streamErr = ctx.Err()
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			streamErr = classifyProviderError(ragerrors.LLMFailure, anthropicStatusCode(err), "anthropic stream", err)
			return
		}
		select {
		case out <- StreamDelta{Done: true}:
		case <-ctx.Done():
		}
	}()

	return out, func() error { return streamErr }
}
