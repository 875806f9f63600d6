package gemini

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/ai-factcheck/message"
)

func TestConvertMessages(t *testing.T) {
	system, history, last, err := convertMessages([]*message.Message{
		message.NewMessage(message.RoleSystem, "be terse"),
		message.NewMessage(message.RoleUser, "first"),
		message.NewMessage(message.RoleAssistant, "reply"),
		message.NewMessage(message.RoleSystem, "json only"),
		message.NewMessage(message.RoleUser, "second"),
	})
	require.NoError(t, err)
	require.Equal(t, "be terse\njson only", system)
	require.Equal(t, "second", last)
	require.Len(t, history, 2)
	require.Equal(t, "user", history[0].Role)
	require.Equal(t, "model", history[1].Role)
	require.Equal(t, genai.Text("reply"), history[1].Parts[0])
}

func TestConvertMessagesNeedsTrailingUserTurn(t *testing.T) {
	_, _, _, err := convertMessages([]*message.Message{
		message.NewMessage(message.RoleSystem, "sys"),
	})
	require.Error(t, err)

	_, _, _, err = convertMessages([]*message.Message{
		message.NewMessage(message.RoleUser, "q"),
		message.NewMessage(message.RoleAssistant, "a"),
	})
	require.Error(t, err)
}

func TestResponseText(t *testing.T) {
	text, err := responseText(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"queries": `), genai.Text(`[]}`)}},
		}},
	})
	require.NoError(t, err)
	require.Equal(t, `{"queries": []}`, text)

	_, err = responseText(&genai.GenerateContentResponse{})
	require.Error(t, err)

	_, err = responseText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}})
	require.Error(t, err)
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), &Config{})
	require.Error(t, err)
}
