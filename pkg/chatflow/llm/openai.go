package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DefaultModel is used when neither the request nor the generator names one.
const DefaultModel = "gpt-4o-mini"

// OpenAI generates text through an OpenAI-compatible chat completions API.
type OpenAI struct {
	client openai.Client
	model  string
}

var (
	_ Generator = (*OpenAI)(nil)
	_ Streamer  = (*OpenAI)(nil)
)

// OpenAIOption configures an OpenAI generator.
type OpenAIOption func(*openAIOptions)

type openAIOptions struct {
	apiKey     string
	baseURL    string
	model      string
	maxRetries int
	timeout    time.Duration
	extra      []openaiopt.RequestOption
}

// WithAPIKey sets the API key. When unset the client reads OPENAI_API_KEY.
func WithAPIKey(key string) OpenAIOption {
	return func(o *openAIOptions) { o.apiKey = key }
}

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(o *openAIOptions) { o.baseURL = url }
}

// WithModel sets the default model.
func WithModel(model string) OpenAIOption {
	return func(o *openAIOptions) { o.model = model }
}

// WithMaxRetries sets how often failed requests are retried.
func WithMaxRetries(n int) OpenAIOption {
	return func(o *openAIOptions) { o.maxRetries = n }
}

// WithRequestTimeout bounds each request.
func WithRequestTimeout(d time.Duration) OpenAIOption {
	return func(o *openAIOptions) { o.timeout = d }
}

// WithRequestOptions passes raw client options through.
func WithRequestOptions(opts ...openaiopt.RequestOption) OpenAIOption {
	return func(o *openAIOptions) { o.extra = append(o.extra, opts...) }
}

// NewOpenAI creates a generator.
func NewOpenAI(opts ...OpenAIOption) *OpenAI {
	o := &openAIOptions{model: DefaultModel, maxRetries: -1}
	for _, opt := range opts {
		opt(o)
	}

	var clientOpts []openaiopt.RequestOption
	if o.apiKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.apiKey))
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.baseURL))
	}
	if o.maxRetries >= 0 {
		clientOpts = append(clientOpts, openaiopt.WithMaxRetries(o.maxRetries))
	}
	if o.timeout > 0 {
		clientOpts = append(clientOpts, openaiopt.WithRequestTimeout(o.timeout))
	}
	clientOpts = append(clientOpts, o.extra...)

	return &OpenAI{
		client: openai.NewClient(clientOpts...),
		model:  o.model,
	}
}

// Complete implements Generator.
func (g *OpenAI) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	params := g.buildParams(req)

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choice := resp.Choices[0]
	return &Response{
		Content:      choice.Message.Content,
		Usage:        usageFrom(resp.Usage),
		Model:        resp.Model,
		FinishReason: choice.FinishReason,
		Duration:     time.Since(start),
	}, nil
}

// Stream implements Streamer.
func (g *OpenAI) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	params := g.buildParams(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := g.client.Chat.Completions.NewStreaming(ctx, params)
	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		defer stream.Close()

		var usage *TokenUsage
		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.TotalTokens > 0 {
				u := usageFrom(chunk.Usage)
				usage = &u
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if !send(ctx, ch, StreamChunk{Content: chunk.Choices[0].Delta.Content}) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			send(ctx, ch, StreamChunk{Error: fmt.Errorf("openai chat stream: %w", err)})
			return
		}
		send(ctx, ch, StreamChunk{Usage: usage, Done: true})
	}()
	return ch, nil
}

func send(ctx context.Context, ch chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func (g *OpenAI) buildParams(req Request) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = g.model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	// MaxTokens is deprecated upstream; MaxCompletionTokens works for every model.
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	return params
}

func usageFrom(u openai.CompletionUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  int(u.PromptTokens),
		OutputTokens: int(u.CompletionTokens),
		TotalTokens:  int(u.TotalTokens),
	}
}
