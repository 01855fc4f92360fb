// Package chathistory reconstructs Slack conversation context for completion
// prompts: thread replies and channel history, filtered to usable entries and
// mapped to chat roles.
package chathistory

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one usable history entry. Fetch results are oldest-first.
type Message struct {
	Role    string
	Content string
	UserID  string
	BotID   string
	TS      string
}

// InvolvesBot reports whether the bot already participates in the window:
// some message mentions it, or the bot authored one of the messages.
func InvolvesBot(items []Message, botUserID string) bool {
	botUserID = strings.TrimSpace(botUserID)
	if botUserID == "" {
		return false
	}
	mention := "<@" + botUserID + ">"
	for _, item := range items {
		if strings.Contains(item.Content, mention) {
			return true
		}
		if item.UserID == botUserID {
			return true
		}
	}
	return false
}

// LastN returns the trailing n entries.
func LastN(items []Message, n int) []Message {
	if n <= 0 || len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

// RenderTranscript renders messages as an indented JSON payload suitable as
// the user content of a single-shot prompt.
func RenderTranscript(items []Message) (string, error) {
	type entry struct {
		Role string `json:"role"`
		User string `json:"user,omitempty"`
		Text string `json:"text"`
		TS   string `json:"ts,omitempty"`
	}
	payload := make([]entry, 0, len(items))
	for _, item := range items {
		payload = append(payload, entry{
			Role: item.Role,
			User: item.UserID,
			Text: item.Content,
			TS:   item.TS,
		})
	}
	raw, err := json.MarshalIndent(map[string]any{
		"channel_messages": payload,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render transcript: %w", err)
	}
	return string(raw), nil
}
