package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scribe/core"
	"scribe/metrics"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// OpenAIClient implements Client against any OpenAI-compatible
// chat-completions endpoint (OpenAI, Anyscale, local gateways).
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	model      core.LLMModel
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
// model is the default used when a request does not name one.
func NewOpenAIClient(baseURL, apiKey string, model core.LLMModel, timeout time.Duration, logger *zap.SugaredLogger) *OpenAIClient {
	return &OpenAIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string                 `json:"model"`
	Messages       []chatMessage          `json:"messages"`
	MaxTokens      int                    `json:"max_tokens,omitempty"`
	Temperature    *float64               `json:"temperature,omitempty"`
	ResponseFormat map[string]interface{} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage  `json:"usage"`
	Model string `json:"model"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// GenerateText requests a free-form completion.
func (c *OpenAIClient) GenerateText(ctx context.Context, req TextRequest) (*Completion, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	body := chatRequest{
		Model: string(model),
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.Prompt},
		},
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}

	completion, err := c.complete(ctx, body, model, "text")
	if err != nil {
		return nil, err
	}
	return completion, nil
}

// GenerateJSON requests a completion constrained to a JSON schema and
// validates the response against it, retrying on violations.
func (c *OpenAIClient) GenerateJSON(ctx context.Context, req JSONRequest) (*Completion, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	schemaLoader := gojsonschema.NewGoLoader(req.Schema)
	schema, err := gojsonschema.NewSchema(schemaLoader)
	if err != nil {
		return nil, fmt.Errorf("invalid response schema: %w", err)
	}

	body := chatRequest{
		Model: string(model),
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.Prompt},
		},
		MaxTokens: req.MaxTokens,
		ResponseFormat: map[string]interface{}{
			"type":   "json_object",
			"schema": req.Schema,
		},
	}

	attempts := req.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		completion, err := c.complete(ctx, body, model, "json")
		if err != nil {
			lastErr = err
			continue
		}

		result, err := schema.Validate(gojsonschema.NewStringLoader(completion.Content))
		if err != nil {
			lastErr = fmt.Errorf("response is not valid JSON: %w", err)
			continue
		}
		if !result.Valid() {
			var problems []string
			for _, desc := range result.Errors() {
				problems = append(problems, desc.String())
			}
			lastErr = fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(problems, "; "))
			c.logger.Warnw("LLM JSON response failed schema validation", "attempt", attempt+1, "problems", problems)
			continue
		}

		return completion, nil
	}

	return nil, lastErr
}

func (c *OpenAIClient) complete(ctx context.Context, body chatRequest, model core.LLMModel, kind string) (*Completion, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.LLMRequests.WithLabelValues(string(model), kind, "error").Inc()
		return nil, fmt.Errorf("LLM request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		metrics.LLMRequests.WithLabelValues(string(model), kind, "error").Inc()
		return nil, fmt.Errorf("failed to read LLM response: %w", err)
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		metrics.LLMRequests.WithLabelValues(string(model), kind, "error").Inc()
		return nil, fmt.Errorf("failed to decode LLM response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.LLMRequests.WithLabelValues(string(model), kind, "error").Inc()
		if decoded.Error != nil {
			return nil, fmt.Errorf("LLM API returned %d: %s", resp.StatusCode, decoded.Error.Message)
		}
		return nil, fmt.Errorf("LLM API returned %d", resp.StatusCode)
	}

	if len(decoded.Choices) == 0 {
		metrics.LLMRequests.WithLabelValues(string(model), kind, "error").Inc()
		return nil, fmt.Errorf("LLM response contained no choices")
	}

	metrics.LLMRequests.WithLabelValues(string(model), kind, "ok").Inc()
	metrics.LLMTokensUsed.WithLabelValues(string(model), "prompt").Add(float64(decoded.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(string(model), "completion").Add(float64(decoded.Usage.CompletionTokens))

	return &Completion{
		Content:      decoded.Choices[0].Message.Content,
		Model:        model,
		FinishReason: decoded.Choices[0].FinishReason,
		Usage:        decoded.Usage,
	}, nil
}
