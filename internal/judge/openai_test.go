package judge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

func TestOpenAICompleteText(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		require.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
		require.Equal(t, "Does 250 satisfy less than 300?", req.Messages[1].Content)

		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: "assistant", Content: "true"},
			}},
		})
	}))
	defer server.Close()

	j, err := NewOpenAI(Config{APIKey: "test-key", BaseURL: server.URL, Model: "gpt-4o-mini"})
	require.NoError(t, err)

	out, err := j.Complete(context.Background(), Prompt{
		Purpose: PurposeEvaluate,
		System:  "answer true or false",
		Text:    "Does 250 satisfy less than 300?",
	})
	require.NoError(t, err)
	require.Equal(t, "true", out)
}

func TestOpenAICompleteImageUsesDataURL(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		parts := req.Messages[0].MultiContent
		require.Len(t, parts, 2)
		require.Equal(t, openai.ChatMessagePartTypeImageURL, parts[1].Type)
		require.Equal(t, "data:image/png;base64,iVBO", parts[1].ImageURL.URL)

		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: "assistant", Content: "$19.99"},
			}},
		})
	}))
	defer server.Close()

	j, err := NewOpenAI(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	out, err := j.Complete(context.Background(), Prompt{
		Purpose: PurposeExtractImage,
		Text:    "Extract the following: price.",
		Image:   []byte{0x89, 0x50, 0x4e},
	})
	require.NoError(t, err)
	require.Equal(t, "$19.99", out)
}

func TestOpenAINoChoices(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{})
	}))
	defer server.Close()

	j, err := NewOpenAI(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)
	_, err = j.Complete(context.Background(), Prompt{Text: "hi"})
	require.Error(t, err)
}

func TestOpenAIWithoutKeyFailsEveryCall(t *testing.T) {
	t.Parallel()

	j, err := NewOpenAI(Config{})
	require.NoError(t, err)
	_, err = j.Complete(context.Background(), Prompt{Text: "hi"})
	require.ErrorIs(t, err, ErrMissingAPIKey)
}
