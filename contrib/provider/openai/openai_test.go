package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/ai-factcheck/agent"
	"github.com/sweetpotato0/ai-factcheck/message"
)

func newServer(t *testing.T, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, seen))
			_, _ = io.WriteString(w, `{"id": "c1", "object": "chat.completion", "created": 1, "model": "qwen2.5:7b",
				"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{\"queries\": []}"}}]}`)
		case strings.HasSuffix(r.URL.Path, "/models"):
			_, _ = io.WriteString(w, `{"object": "list", "data": [
				{"id": "qwen2.5:7b", "object": "model", "created": 1, "owned_by": "library"},
				{"id": "llama3.1:8b", "object": "model", "created": 1, "owned_by": "library"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateSendsSamplingOptions(t *testing.T) {
	var seen map[string]any
	srv := newServer(t, &seen)
	p := New(&Config{APIKey: "k", BaseURL: srv.URL + "/v1/", Model: "qwen2.5:7b"})

	resp, err := p.Generate(context.Background(), &agent.GenerateRequest{
		Messages: []*message.Message{
			message.NewMessage(message.RoleSystem, "sys"),
			message.NewMessage(message.RoleUser, "hello"),
		},
		Options: agent.Options{Temperature: 0, TopP: 1, MaxTokens: 512},
	})
	require.NoError(t, err)
	require.Equal(t, `{"queries": []}`, resp.Text())
	require.Equal(t, "qwen2.5:7b", resp.Model)

	require.Equal(t, "qwen2.5:7b", seen["model"])
	require.EqualValues(t, 0, seen["temperature"])
	require.EqualValues(t, 1, seen["top_p"])
	require.EqualValues(t, 512, seen["max_completion_tokens"])
	msgs := seen["messages"].([]any)
	require.Len(t, msgs, 2)
	require.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestGenerateModelOverride(t *testing.T) {
	var seen map[string]any
	srv := newServer(t, &seen)
	p := New(&Config{APIKey: "k", BaseURL: srv.URL + "/v1/", Model: "default"})

	_, err := p.Generate(context.Background(), &agent.GenerateRequest{
		Messages: []*message.Message{message.NewMessage(message.RoleUser, "hi")},
		Options:  agent.Options{Model: "llama3.1:8b", Temperature: 0.3},
	})
	require.NoError(t, err)
	require.Equal(t, "llama3.1:8b", seen["model"])
	require.NotContains(t, seen, "top_p")
}

func TestListModels(t *testing.T) {
	var seen map[string]any
	srv := newServer(t, &seen)
	p := New(&Config{APIKey: "k", BaseURL: srv.URL + "/v1/"})

	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"qwen2.5:7b", "llama3.1:8b"}, models)
}

func TestGenerateRejectsNilRequest(t *testing.T) {
	_, err := New(nil).Generate(context.Background(), nil)
	require.Error(t, err)
}
