package core

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIModel_Generate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "test-model",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"text\": \"hi\"}"}, "finish_reason": "stop"}]
		}`))
	}))
	defer srv.Close()

	model := NewOpenAIModel("test-key", srv.URL+"/v1", "test-model")
	out, err := model.Generate(context.Background(), ModelRequest{
		SystemInstruction: "system",
		Turns: []Turn{
			{Role: TurnUser, Content: "earlier"},
			{Role: TurnModel, Content: "reply"},
			{Role: TurnUser, Content: "now"},
		},
		ResponseMIMEType: jsonMIMEType,
		Temperature:      0.1,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"text": "hi"}`, out)

	assert.Equal(t, "test-model", got["model"])
	format, _ := got["response_format"].(map[string]any)
	assert.Equal(t, "json_object", format["type"])

	msgs, _ := got["messages"].([]any)
	require.Len(t, msgs, 4)
	roles := make([]string, 0, len(msgs))
	for _, m := range msgs {
		roles = append(roles, m.(map[string]any)["role"].(string))
	}
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, roles)
}

func TestOpenAIModel_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "This model's maximum context length is 128000 tokens", "type": "invalid_request_error", "code": "context_length_exceeded"}}`))
	}))
	defer srv.Close()

	model := NewOpenAIModel("k", srv.URL+"/v1", "")
	_, err := model.Generate(context.Background(), ModelRequest{Turns: []Turn{{Role: TurnUser, Content: "x"}}})
	require.Error(t, err)
	assert.True(t, isContextTooLarge(err))
}

func TestOpenAIModel_EmptyTurns(t *testing.T) {
	_, err := NewOpenAIModel("k", "http://127.0.0.1:1/v1", "").Generate(context.Background(), ModelRequest{})
	assert.Error(t, err)
}

func TestGeminiHistory(t *testing.T) {
	history := geminiHistory([]Turn{{Role: TurnUser, Content: "a"}, {Role: TurnModel, Content: "b"}})
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)
	assert.Len(t, history[1].Parts, 1)
}
