package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicClientCompleteParsesToolUse(t *testing.T) {
	var gotReq anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := anthropicResponse{
			Content: []anthropicContentBlock{
				{Type: "text", Text: "placing a rectangle"},
				{Type: "tool_use", ID: "call-1", Name: "createShape", Input: map[string]any{"kind": "rect", "x": 100.0, "y": 100.0}},
			},
			StopReason: "tool_use",
		}
		resp.Usage.InputTokens = 42
		resp.Usage.OutputTokens = 7
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewAnthropicClient(srv.URL, "test-key", nil)
	out, err := client.Complete(context.Background(), Request{
		Model: "claude-test",
		Messages: []Message{
			{Role: RoleSystem, Content: "system rules"},
			{Role: RoleUser, Content: "<user_input>draw a rectangle</user_input>"},
		},
		Tools: []ToolDefinition{{Name: "createShape", Description: "create a shape", Schema: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)

	assert.Equal(t, "system rules", gotReq.System)
	require.Len(t, gotReq.Messages, 1)

	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "createShape", out.ToolCalls[0].Name)
	assert.Equal(t, "rect", out.ToolCalls[0].Arguments["kind"])
	assert.Equal(t, 42, out.TokensIn)
	assert.Equal(t, 7, out.TokensOut)
	assert.Equal(t, "tool_use", out.StopReason)
}

func TestAnthropicClientCompleteProviderUnavailableOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewAnthropicClient(srv.URL, "test-key", nil)
	_, err := client.Complete(context.Background(), Request{Model: "claude-test"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}
