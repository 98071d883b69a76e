package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/chatflow/pkg/chatflow/llm"
)

func TestMockGenerator_FixedResponse(t *testing.T) {
	mock := llm.NewMockGenerator("Hello, world!")

	resp, err := mock.Complete(context.Background(), llm.UserPrompt("Hi"))

	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, resp.Usage.InputTokens+resp.Usage.OutputTokens, resp.Usage.TotalTokens)
}

func TestMockGenerator_SequentialResponses(t *testing.T) {
	mock := llm.NewMockGenerator("").WithResponses("first", "second")

	for _, want := range []string{"first", "second", "first"} {
		resp, err := mock.Complete(context.Background(), llm.Request{})
		require.NoError(t, err)
		assert.Equal(t, want, resp.Content)
	}
}

func TestMockGenerator_ErrorAndTracking(t *testing.T) {
	boom := errors.New("boom")
	mock := llm.NewMockGenerator("").WithError(boom)

	assert.Nil(t, mock.LastCall())
	_, err := mock.Complete(context.Background(), llm.UserPrompt("q"))
	assert.ErrorIs(t, err, boom)

	_, err = mock.Stream(context.Background(), llm.UserPrompt("q2"))
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 2, mock.CallCount())
	require.NotNil(t, mock.LastCall())
	assert.Equal(t, "q2", mock.LastCall().Messages[0].Content)

	mock.Reset()
	assert.Equal(t, 0, mock.CallCount())
}

func TestMockGenerator_CompleteFunc(t *testing.T) {
	mock := llm.NewMockGenerator("").WithCompleteFunc(func(_ context.Context, req llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: "Echo: " + req.Messages[0].Content}, nil
	})

	resp, err := mock.Complete(context.Background(), llm.UserPrompt("test"))
	require.NoError(t, err)
	assert.Equal(t, "Echo: test", resp.Content)
}

func TestMockGenerator_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := llm.NewMockGenerator("x").Complete(ctx, llm.Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamTo(t *testing.T) {
	t.Run("streamer", func(t *testing.T) {
		sink := llm.NewBufferSink()
		resp, err := llm.StreamTo(context.Background(), llm.NewMockGenerator("streamed"), llm.Request{},
			func(text string) error { return sink.Emit(context.Background(), "n1", text) })

		require.NoError(t, err)
		assert.Equal(t, "streamed", resp.Content)
		assert.Positive(t, resp.Usage.TotalTokens)
		assert.Equal(t, "streamed", sink.Text("n1"))
	})

	t.Run("plain generator", func(t *testing.T) {
		var got []string
		resp, err := llm.StreamTo(context.Background(), completeOnly{"whole"}, llm.Request{},
			func(text string) error { got = append(got, text); return nil })

		require.NoError(t, err)
		assert.Equal(t, "whole", resp.Content)
		assert.Equal(t, []string{"whole"}, got)
	})

	t.Run("emit error", func(t *testing.T) {
		sinkErr := errors.New("client gone")
		_, err := llm.StreamTo(context.Background(), llm.NewMockGenerator("x"), llm.Request{},
			func(string) error { return sinkErr })
		assert.ErrorIs(t, err, sinkErr)
	})
}

type completeOnly struct{ text string }

func (c completeOnly) Complete(context.Context, llm.Request) (*llm.Response, error) {
	return &llm.Response{Content: c.text}, nil
}

func TestTokenUsage_Add(t *testing.T) {
	u := llm.TokenUsage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3}
	u.Add(llm.TokenUsage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30})

	assert.Equal(t, llm.TokenUsage{InputTokens: 11, OutputTokens: 22, TotalTokens: 33}, u)
	assert.Equal(t, 33, u.Map()["total_tokens"])
}

func newChatServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		handler(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAI_Complete(t *testing.T) {
	var seen map[string]any
	srv := newChatServer(t, func(w http.ResponseWriter, body map[string]any) {
		seen = body
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "billing"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`)
	})

	gen := llm.NewOpenAI(llm.WithAPIKey("test-key"), llm.WithBaseURL(srv.URL+"/v1/"), llm.WithMaxRetries(0))
	resp, err := gen.Complete(context.Background(), llm.Request{
		SystemPrompt: "classify",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "my invoice is wrong"}},
		MaxTokens:    64,
		Temperature:  0.3,
	})

	require.NoError(t, err)
	assert.Equal(t, "billing", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, llm.TokenUsage{InputTokens: 12, OutputTokens: 3, TotalTokens: 15}, resp.Usage)

	require.NotNil(t, seen)
	assert.Equal(t, llm.DefaultModel, seen["model"])
	assert.EqualValues(t, 64, seen["max_completion_tokens"])
	msgs, ok := seen["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestOpenAI_CompleteEmptyChoices(t *testing.T) {
	srv := newChatServer(t, func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	})

	gen := llm.NewOpenAI(llm.WithAPIKey("k"), llm.WithBaseURL(srv.URL+"/v1/"), llm.WithMaxRetries(0))
	_, err := gen.Complete(context.Background(), llm.UserPrompt("hi"))
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}

func TestOpenAI_CompleteServerError(t *testing.T) {
	srv := newChatServer(t, func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad model","type":"invalid_request_error"}}`)
	})

	gen := llm.NewOpenAI(llm.WithAPIKey("k"), llm.WithBaseURL(srv.URL+"/v1/"), llm.WithMaxRetries(0))
	_, err := gen.Complete(context.Background(), llm.UserPrompt("hi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai chat completion")
}

func TestOpenAI_Stream(t *testing.T) {
	srv := newChatServer(t, func(w http.ResponseWriter, body map[string]any) {
		assert.Equal(t, true, body["stream"])
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, part := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"id\":\"c\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		_, _ = io.WriteString(w, "data: {\"id\":\"c\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[],\"usage\":{\"prompt_tokens\":4,\"completion_tokens\":2,\"total_tokens\":6}}\n\n")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})

	gen := llm.NewOpenAI(llm.WithAPIKey("k"), llm.WithBaseURL(srv.URL+"/v1/"), llm.WithMaxRetries(0))
	sink := llm.NewBufferSink()
	resp, err := llm.StreamTo(context.Background(), gen, llm.UserPrompt("hi"), func(text string) error {
		return sink.Emit(context.Background(), "llm", text)
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Content)
	assert.Equal(t, []string{"Hel", "lo"}, sink.Chunks("llm"))
	assert.Equal(t, 6, resp.Usage.TotalTokens)
}
