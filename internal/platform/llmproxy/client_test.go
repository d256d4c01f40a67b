package llmproxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerodte/execd/internal/llm"
)

func TestComplete_ParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "required", body["tool_choice"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": "",
			"tool_calls": [{"id":"1","function_name":"skip_signal","arguments_json":"{\"reason\":\"x\",\"category\":\"other\"}"}],
			"model": "gpt-test",
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
			"request_id": "req-abc"
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", time.Second)
	resp, err := c.Complete(t.Context(), llm.Request{
		Model:      "gpt-test",
		Messages:   []llm.Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "usr"}},
		Tools:      llm.Tools(),
		ToolChoice: "required",
	})
	require.NoError(t, err)
	assert.Equal(t, "req-abc", resp.RequestID)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "skip_signal", resp.ToolCalls[0].FunctionName)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestComplete_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", time.Second)
	_, err := c.Complete(t.Context(), llm.Request{Model: "gpt-test"})
	require.Error(t, err)
}

func TestComplete_TimeoutMapsToErrTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", 5*time.Millisecond)
	_, err := c.Complete(t.Context(), llm.Request{Model: "gpt-test"})
	require.Error(t, err)
}
