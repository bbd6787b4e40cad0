package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"scribe/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLLM(t *testing.T, handler http.Handler) *OpenAIClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIClient(srv.URL, "esecret_test", core.DefaultModel, 5*time.Second, zap.NewNop().Sugar())
}

func chatReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()

	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"model": string(core.DefaultModel),
		"choices": []map[string]interface{}{
			{
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 34, "total_tokens": 46},
	})
}

func TestGenerateText(t *testing.T) {
	client := newTestLLM(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer esecret_test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Equal(t, 500, req.MaxTokens)

		chatReply(t, w, "## Description:\nA storage layer.\n")
	}))

	completion, err := client.GenerateText(context.Background(), TextRequest{
		SystemPrompt: "document this",
		Prompt:       "package main",
		MaxTokens:    500,
	})
	require.NoError(t, err)
	assert.Contains(t, completion.Content, "storage layer")
	assert.Equal(t, "stop", completion.FinishReason)
	assert.Equal(t, 46, completion.Usage.TotalTokens)
}

func TestGenerateTextEmptyPrompt(t *testing.T) {
	client := newTestLLM(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for empty prompt")
	}))

	_, err := client.GenerateText(context.Background(), TextRequest{Prompt: "   "})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestGenerateTextAPIError(t *testing.T) {
	client := newTestLLM(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "quota exceeded", "type": "rate_limit"},
		})
	}))

	_, err := client.GenerateText(context.Background(), TextRequest{Prompt: "code"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestGenerateJSONValidatesSchema(t *testing.T) {
	client := newTestLLM(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, `{"description":"A chat storage layer.","insights":["uses maps","not concurrent-safe"]}`)
	}))

	completion, err := client.GenerateJSON(context.Background(), JSONRequest{
		SystemPrompt: "document as json",
		Prompt:       "package main",
		Schema:       FileDocSchema(),
	})
	require.NoError(t, err)

	var doc struct {
		Description string   `json:"description"`
		Insights    []string `json:"insights"`
	}
	require.NoError(t, json.Unmarshal([]byte(completion.Content), &doc))
	assert.Len(t, doc.Insights, 2)
}

func TestGenerateJSONRetriesOnSchemaViolation(t *testing.T) {
	var calls int
	client := newTestLLM(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			chatReply(t, w, `{"wrong_field":true}`)
			return
		}
		chatReply(t, w, `{"description":"ok","insights":[]}`)
	}))

	completion, err := client.GenerateJSON(context.Background(), JSONRequest{
		Prompt:     "code",
		Schema:     FileDocSchema(),
		MaxRetries: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, completion.Content, "ok")
}

func TestGenerateJSONExhaustsRetries(t *testing.T) {
	client := newTestLLM(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, `not json at all`)
	}))

	_, err := client.GenerateJSON(context.Background(), JSONRequest{
		Prompt:     "code",
		Schema:     FileDocSchema(),
		MaxRetries: 1,
	})
	assert.Error(t, err)
}

func TestEmbedBatchesAndOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.LessOrEqual(t, len(req.Input), 2)

		// Return vectors out of order to exercise index handling.
		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]interface{}{
				"index":     i,
				"embedding": []float32{float32(len(req.Input[i]))},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	}))
	t.Cleanup(srv.Close)

	embedder := NewOpenAIEmbedder(srv.URL, "key", "BAAI/bge-large-en-v1.5", 2, 5*time.Second, zap.NewNop().Sugar())

	vectors, err := embedder.Embed(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, float32(1), vectors[0][0])
	assert.Equal(t, float32(2), vectors[1][0])
	assert.Equal(t, float32(3), vectors[2][0])
}

func TestLoadPromptsMissingFileUsesDefaults(t *testing.T) {
	prompts, err := LoadPrompts("/nonexistent/prompts.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultPrompts().FileDoc, prompts.FileDoc)
}
