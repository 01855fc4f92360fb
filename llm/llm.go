// Package llm defines the chat-completion contract the channel runtimes
// program against. Providers live under providers/ and implement Client.
package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

type Request struct {
	Model     string
	Messages  []Message
	MaxTokens int
}

type Result struct {
	Text  string
	Model string
}

type Client interface {
	Chat(ctx context.Context, req Request) (Result, error)
}
