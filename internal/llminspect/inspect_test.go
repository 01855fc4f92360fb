package llminspect

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quailyquaily/misterecho/llm"
)

func TestModelSceneContext(t *testing.T) {
	if got := ModelSceneFromContext(nil); got != defaultModelScene {
		t.Fatalf("scene for nil ctx = %q, want %q", got, defaultModelScene)
	}
	ctx := WithModelScene(context.Background(), " slack.thread_completion ")
	if got := ModelSceneFromContext(ctx); got != "slack.thread_completion" {
		t.Fatalf("scene = %q, want slack.thread_completion", got)
	}
}

type staticChatClient struct{}

func (staticChatClient) Chat(ctx context.Context, req llm.Request) (llm.Result, error) {
	return llm.Result{Text: "fine, thanks"}, nil
}

func TestClientDumpsRequestAndResponse(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := Wrap(staticChatClient{}, dir, logger)

	ctx := WithModelScene(context.Background(), "slack.channel_summary")
	res, err := client.Chat(ctx, llm.Request{
		Model:     "openai/gpt-4o",
		MaxTokens: 2000,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "summarize"},
			{Role: llm.RoleUser, Content: "how are you"},
		},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if res.Text != "fine, thanks" {
		t.Fatalf("Text = %q, wrapper must not alter results", res.Text)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1 dump file", len(entries))
	}
	name := entries[0].Name()
	if !strings.Contains(name, "slack_channel_summary") {
		t.Fatalf("dump filename = %q, want sanitized scene", name)
	}

	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	content := string(raw)
	for _, want := range []string{"openai/gpt-4o", "how are you", "fine, thanks", "slack.channel_summary"} {
		if !strings.Contains(content, want) {
			t.Fatalf("dump missing %q:\n%s", want, content)
		}
	}
}

func TestClientWithoutDirSkipsDump(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := Wrap(staticChatClient{}, "", logger)
	if _, err := client.Chat(context.Background(), llm.Request{Model: "m", Messages: []llm.Message{{Role: "user", Content: "x"}}}); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
}
