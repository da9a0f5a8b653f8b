package judge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnthropicCompleteSendsImageBlock(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "extract values", req.System)
		require.Len(t, req.Messages, 1)
		blocks := req.Messages[0].Content
		require.Len(t, blocks, 2)
		require.Equal(t, "image", blocks[0].Type)
		require.Equal(t, "image/png", blocks[0].Source.MediaType)
		require.Equal(t, "text", blocks[1].Type)

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"$42"}],"model":"m"}`))
	}))
	defer server.Close()

	j, err := NewAnthropic(Config{APIKey: "test-key", BaseURL: server.URL + "/"})
	require.NoError(t, err)

	out, err := j.Complete(context.Background(), Prompt{
		System: "extract values",
		Text:   "Extract the following: price.",
		Image:  []byte("png"),
	})
	require.NoError(t, err)
	require.Equal(t, "$42", out)
}

func TestAnthropicCompleteAPIError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	j, err := NewAnthropic(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = j.Complete(context.Background(), Prompt{Text: "hi"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "rate_limit_error")
}

func TestAnthropicCompleteEmptyContent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer server.Close()

	j, err := NewAnthropic(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)
	_, err = j.Complete(context.Background(), Prompt{Text: "hi"})
	require.Error(t, err)
}

func TestAnthropicWithoutKeyFailsEveryCall(t *testing.T) {
	t.Parallel()

	j, err := NewAnthropic(Config{})
	require.NoError(t, err)
	_, err = j.Complete(context.Background(), Prompt{Text: "hi"})
	require.ErrorIs(t, err, ErrMissingAPIKey)
}
