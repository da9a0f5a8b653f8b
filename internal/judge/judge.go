// Package judge wraps the natural-language model used to extract values,
// locate elements, evaluate conditions, and interpret monitor requests.
// Every quirk of the model's free-text responses is handled in decode.go.
package judge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Purpose labels a judge call for metrics and logs.
type Purpose string

// Judge call purposes.
const (
	PurposeExtractText  Purpose = "extract_text"
	PurposeExtractImage Purpose = "extract_image"
	PurposeLocate       Purpose = "locate"
	PurposeEvaluate     Purpose = "evaluate"
	PurposeInterpret    Purpose = "interpret"
	PurposeInterval     Purpose = "interval"
)

// Prompt is one request to the judge. Image is optional.
type Prompt struct {
	Purpose   Purpose
	System    string
	Text      string
	Image     []byte
	ImageMIME string
}

// ErrMissingAPIKey is returned by every call of a provider built without a key.
var ErrMissingAPIKey = errors.New("judge api key is not configured")

// Judge answers a prompt with free text.
type Judge interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// Config selects and tunes a provider.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float32
}

const geminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// New creates a judge for the configured provider.
func New(cfg Config) (Judge, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAI(cfg)
	case "gemini":
		if cfg.BaseURL == "" {
			cfg.BaseURL = geminiOpenAIBaseURL
		}
		if cfg.Model == "" {
			cfg.Model = "gemini-2.5-flash"
		}
		return NewOpenAI(cfg)
	case "anthropic", "claude":
		return NewAnthropic(cfg)
	default:
		return nil, fmt.Errorf("unknown judge provider: %q (supported: openai, gemini, anthropic)", cfg.Provider)
	}
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 60 * time.Second
}

func (c Config) maxTokens() int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 1024
}

func imageMIME(p Prompt) string {
	if p.ImageMIME != "" {
		return p.ImageMIME
	}
	return "image/png"
}
