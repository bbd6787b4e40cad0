// Package llm talks to OpenAI-compatible chat completion and embedding
// endpoints. The service uses it for documentation generation and for
// embedding markdown chunks.
package llm

import (
	"context"
	"errors"

	"scribe/core"
)

var (
	// ErrEmptyPrompt is returned when a completion is requested with no
	// prompt text.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
	// ErrSchemaViolation is returned when a structured response does not
	// validate against the requested JSON schema after all retries.
	ErrSchemaViolation = errors.New("LLM response violates JSON schema")
)

// Usage reports token consumption for one request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the result of a text or JSON generation request.
type Completion struct {
	Content      string
	Model        core.LLMModel
	FinishReason string
	Usage        Usage
}

// TextRequest asks for a free-form completion.
type TextRequest struct {
	Model        core.LLMModel
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Temperature  float64
}

// JSONRequest asks for a completion constrained to a JSON schema.
type JSONRequest struct {
	Model        core.LLMModel
	SystemPrompt string
	Prompt       string
	Schema       map[string]interface{}
	MaxTokens    int
	MaxRetries   int
}

// Client generates text with a large language model.
type Client interface {
	GenerateText(ctx context.Context, req TextRequest) (*Completion, error)
	GenerateJSON(ctx context.Context, req JSONRequest) (*Completion, error)
}

// Embedder turns text into embedding vectors.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}
