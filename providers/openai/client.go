// Package openai adapts an OpenAI-compatible chat-completions endpoint to the
// llm.Client contract. Gateway endpoints (OpenRouter and similar) work
// unchanged: full model identifiers like "openai/gpt-4o" pass through as-is.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/quailyquaily/misterecho/llm"
)

const defaultRequestTimeout = 60 * time.Second

type Config struct {
	APIKey         string
	Endpoint       string
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

type Client struct {
	api     *goopenai.Client
	timeout time.Duration
}

func New(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("llm api key is required")
	}

	ocfg := goopenai.DefaultConfig(key)
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		ocfg.BaseURL = strings.TrimRight(endpoint, "/")
	}
	if cfg.HTTPClient != nil {
		ocfg.HTTPClient = cfg.HTTPClient
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		api:     goopenai.NewClientWithConfig(ocfg),
		timeout: timeout,
	}, nil
}

func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Result, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return llm.Result{}, fmt.Errorf("model is required")
	}
	if len(req.Messages) == 0 {
		return llm.Result{}, fmt.Errorf("messages are required")
	}

	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.api.CreateChatCompletion(callCtx, goopenai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return llm.Result{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.Result{}, fmt.Errorf("chat completion returned no choices")
	}
	return llm.Result{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
	}, nil
}
