package llm

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/fyang0507/notion-rag-core/internal/observability"
	"github.com/fyang0507/notion-rag-core/internal/ragerrors"
)

// openaiStatusCode extracts the HTTP status code from an openai-go SDK
// error, or 0 if err isn't a *sdk.Error (e.g. a context cancellation).
func openaiStatusCode(err error) int {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// OpenAI adapts the openai-go SDK to ChatProvider and EmbeddingProvider.
type OpenAI struct {
	client sdk.Client
	model  string
}

// NewOpenAI constructs an OpenAI-backed provider. baseURL may point at an
// OpenAI-compatible endpoint (self-hosted or third-party); apiKey is read
// from the environment by the caller, never logged.
func NewOpenAI(baseURL, apiKey, model string) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(observability.NewHTTPClient(nil)),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAI{client: sdk.NewClient(opts...), model: model}
}

func toOpenAIMessages(msgs []Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, sdk.SystemMessage(m.Content))
		case "assistant":
			out = append(out, sdk.AssistantMessage(m.Content))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}
	return out
}

func (o *OpenAI) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(model),
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(req.MaxTokens))
	}

	comp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return CompletionResponse{}, classifyProviderError(ragerrors.LLMFailure, openaiStatusCode(err), "openai completion", err)
	}
	if len(comp.Choices) == 0 {
		return CompletionResponse{}, fmt.Errorf("%w: openai completion: empty choices", ragerrors.LLMFailure)
	}
	return CompletionResponse{
		Content:      comp.Choices[0].Message.Content,
		PromptTokens: int(comp.Usage.PromptTokens),
		OutputTokens: int(comp.Usage.CompletionTokens),
	}, nil
}

func (o *OpenAI) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamDelta, func() error) {
	model := req.Model
	if model == "" {
		model = o.model
	}
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(model),
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}

	out := make(chan StreamDelta)
	var streamErr error

	go func() {
		defer close(out)
		stream := o.client.Chat.Completions.NewStreaming(ctx, params)
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				select {
				case out <- StreamDelta{Content: delta}:
				case <-ctx.Done():
					streamErr = ctx.Err()
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			streamErr = classifyProviderError(ragerrors.LLMFailure, openaiStatusCode(err), "openai stream", err)
			return
		}
		select {
		case out <- StreamDelta{Done: true}:
		case <-ctx.Done():
		}
	}()

	return out, func() error { return streamErr }
}

// Embed satisfies EmbeddingProvider using the OpenAI embeddings endpoint.
func (o *OpenAI) Embed(ctx context.Context, model string, texts []string) ([][]float32, int, error) {
	if len(texts) == 0 {
		return nil, 0, nil
	}
	params := sdk.EmbeddingNewParams{
		Model: sdk.EmbeddingModel(model),
		Input: sdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, 0, classifyProviderError(ragerrors.EmbedFailure, openaiStatusCode(err), "openai embeddings", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, 0, fmt.Errorf("%w: openai embeddings: got %d vectors for %d inputs", ragerrors.EmbedFailure, len(resp.Data), len(texts))
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, int(resp.Usage.PromptTokens), nil
}
