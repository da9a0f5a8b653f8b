package judge

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client *openai.Client
	cfg    Config
}

// NewOpenAI builds an OpenAI-compatible judge. Without an API key the judge
// is still built, but every call fails with ErrMissingAPIKey.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
	}, nil
}

// Complete sends the prompt as a single user turn and returns the reply text.
func (o *OpenAI) Complete(ctx context.Context, prompt Prompt) (string, error) {
	if o.cfg.APIKey == "" {
		return "", ErrMissingAPIKey
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.timeout())
	defer cancel()

	var messages []openai.ChatCompletionMessage
	if prompt.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: prompt.System,
		})
	}
	messages = append(messages, userMessage(prompt))

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.cfg.Model,
		Messages:    messages,
		MaxTokens:   o.cfg.maxTokens(),
		Temperature: o.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func userMessage(prompt Prompt) openai.ChatCompletionMessage {
	if len(prompt.Image) == 0 {
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt.Text,
		}
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", imageMIME(prompt), base64.StdEncoding.EncodeToString(prompt.Image))
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt.Text},
			{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: dataURL, Detail: openai.ImageURLDetailAuto},
			},
		},
	}
}
