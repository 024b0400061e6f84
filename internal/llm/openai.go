package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/danyelangel/automata/internal/logger"
)

const (
	// OpenAIEndpoint is the default chat completions URL.
	OpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
	// OpenAIRequestTimeout is the default timeout for API requests.
	OpenAIRequestTimeout = 60 * time.Second
	// OpenAIDefaultModel is used when neither the request nor the config name a model.
	OpenAIDefaultModel = "gpt-4.1"
)

// OpenAIConfig contains configuration for the OpenAI-compatible provider.
type OpenAIConfig struct {
	APIKey         string `json:"api_key"`
	Endpoint       string `json:"endpoint"`        // Optional, defaults to OpenAIEndpoint
	Model          string `json:"model"`           // Default model (optional)
	TimeoutSeconds int    `json:"timeout_seconds"` // HTTP request timeout in seconds
}

// OpenAIProvider implements Provider against any chat-completions compatible API.
type OpenAIProvider struct {
	client *http.Client
	config OpenAIConfig
	apiURL string
	logger *logger.Logger
}

// openaiRequest represents the chat completions request body.
type openaiRequest struct {
	Messages    []openaiMessage `json:"messages"`
	Model       string          `json:"model"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Tools       []openaiTool    `json:"tools,omitempty"`
	ToolChoice  string          `json:"tool_choice,omitempty"`
	User        string          `json:"user,omitempty"`
}

// openaiMessage represents a message in wire format.
type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
}

// openaiTool wraps a function definition.
type openaiTool struct {
	Type     string                 `json:"type"`
	Function map[string]interface{} `json:"function"`
}

// openaiToolCall represents a tool call in a response or request history.
type openaiToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// openaiResponse represents the chat completions response body.
type openaiResponse struct {
	ID      string          `json:"id"`
	Model   string          `json:"model"`
	Choices []openaiChoice  `json:"choices"`
	Usage   openaiUsage     `json:"usage"`
	Error   *openaiAPIError `json:"error,omitempty"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openaiAPIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewOpenAIProvider creates a new OpenAI-compatible provider instance.
func NewOpenAIProvider(cfg OpenAIConfig, log *logger.Logger) *OpenAIProvider {
	if cfg.Model == "" {
		cfg.Model = OpenAIDefaultModel
	}

	apiURL := cfg.Endpoint
	if apiURL == "" {
		apiURL = OpenAIEndpoint
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = OpenAIRequestTimeout
	}

	return &OpenAIProvider{
		client: &http.Client{
			Timeout: timeout,
		},
		config: cfg,
		apiURL: apiURL,
		logger: log,
	}
}

// DefaultModel returns the configured default model.
func (p *OpenAIProvider) DefaultModel() string {
	return p.config.Model
}

// Call sends one chat completion request and maps the response into a CallResult.
func (p *OpenAIProvider) Call(ctx context.Context, in CallInput) (*CallResult, error) {
	model := in.Model
	if model == "" {
		model = p.config.Model
	}

	req := openaiRequest{
		Messages:    toWireMessages(in.Messages),
		Model:       model,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
		User:        in.TenantID,
	}

	if len(in.Tools) > 0 {
		req.Tools = make([]openaiTool, 0, len(in.Tools))
		for _, def := range in.Tools {
			fn := map[string]interface{}{
				"name":        def.Name,
				"description": def.Description,
				"parameters":  def.Parameters,
			}
			if def.Strict {
				fn["strict"] = true
			}
			req.Tools = append(req.Tools, openaiTool{Type: "function", Function: fn})
		}
		req.ToolChoice = "auto"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	p.logger.DebugCtx(ctx, "Calling model provider",
		logger.Field{Key: "model", Value: model},
		logger.Field{Key: "messages", Value: len(in.Messages)},
		logger.Field{Key: "tools", Value: len(in.Tools)})

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var resp openaiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("provider error: %s (%s)", resp.Error.Message, resp.Error.Type)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("provider returned no choices")
	}

	choice := resp.Choices[0]
	result := &CallResult{
		Content:      choice.Message.Content,
		FinishReason: FinishReason(choice.FinishReason),
		Model:        resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if len(result.ToolCalls) > 0 {
		result.FinishReason = FinishReasonToolCalls
	}

	return result, nil
}

// toWireMessages converts provider-neutral messages to wire format.
func toWireMessages(messages []Message) []openaiMessage {
	wire := make([]openaiMessage, 0, len(messages))
	for _, m := range messages {
		wm := openaiMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			wtc := openaiToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = tc.Arguments
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		wire = append(wire, wm)
	}
	return wire
}
