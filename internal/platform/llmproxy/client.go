// Package llmproxy is the HTTP client for the chat-completions-shaped LLM
// proxy (spec §6 "LLM proxy"): system+user messages and a tool schema list
// in, {content, tool_calls, model, usage, request_id} out. Authentication is
// a bearer master key read from config, never signed per-request.
package llmproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zerodte/execd/internal/llm"
)

// ErrTimeout is returned when the request's context deadline or the
// client's own timeout elapses before a response arrives.
var ErrTimeout = errors.New("llmproxy: request timed out")

// Client implements llm.Client against the proxy's /v1/chat/completions
// endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client. timeout <= 0 uses a 60s default, matching the
// spec's documented default LLM call deadline.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type wireRequest struct {
	Model      string        `json:"model"`
	Messages   []wireMessage `json:"messages"`
	Tools      []wireTool    `json:"tools"`
	ToolChoice string        `json:"tool_choice"`
}

type wireToolCall struct {
	ID            string `json:"id"`
	FunctionName  string `json:"function_name"`
	ArgumentsJSON string `json:"arguments_json"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type wireResponse struct {
	Content   string         `json:"content"`
	ToolCalls []wireToolCall `json:"tool_calls"`
	Model     string         `json:"model"`
	Usage     wireUsage      `json:"usage"`
	RequestID string         `json:"request_id"`
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	wr := wireRequest{
		Model:      req.Model,
		ToolChoice: req.ToolChoice,
	}
	for _, m := range req.Messages {
		wr.Messages = append(wr.Messages, wireMessage{Role: m.Role, Content: m.Content})
	}
	for _, t := range req.Tools {
		wr.Tools = append(wr.Tools, wireTool{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}

	body, err := json.Marshal(wr)
	if err != nil {
		return llm.Response{}, fmt.Errorf("llmproxy: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return llm.Response{}, fmt.Errorf("llmproxy: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return llm.Response{}, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return llm.Response{}, fmt.Errorf("llmproxy: transport: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Response{}, fmt.Errorf("llmproxy: read response: %w", err)
	}

	if resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout {
		return llm.Response{}, fmt.Errorf("%w: proxy status %d", ErrTimeout, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return llm.Response{}, fmt.Errorf("llmproxy: HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var wr2 wireResponse
	if err := json.Unmarshal(respBody, &wr2); err != nil {
		return llm.Response{}, fmt.Errorf("llmproxy: decode response: %w", err)
	}

	out := llm.Response{
		Content:   wr2.Content,
		Model:     wr2.Model,
		RequestID: wr2.RequestID,
		Usage: llm.Usage{
			PromptTokens:     wr2.Usage.PromptTokens,
			CompletionTokens: wr2.Usage.CompletionTokens,
			TotalTokens:      wr2.Usage.TotalTokens,
		},
	}
	for _, tc := range wr2.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:            tc.ID,
			FunctionName:  tc.FunctionName,
			ArgumentsJSON: tc.ArgumentsJSON,
		})
	}

	return out, nil
}

var _ llm.Client = (*Client)(nil)
