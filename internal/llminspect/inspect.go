// Package llminspect tags completion calls with the flow that produced them
// and can dump request/response pairs to disk for debugging.
package llminspect

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/quailyquaily/misterecho/llm"
)

const defaultModelScene = "default"

type modelSceneKey struct{}

// WithModelScene attaches a scene label ("slack.thread_completion", ...) to
// the context for dump filenames and logs.
func WithModelScene(ctx context.Context, scene string) context.Context {
	scene = strings.TrimSpace(scene)
	if scene == "" {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, modelSceneKey{}, scene)
}

func ModelSceneFromContext(ctx context.Context) string {
	if ctx == nil {
		return defaultModelScene
	}
	if scene, ok := ctx.Value(modelSceneKey{}).(string); ok && strings.TrimSpace(scene) != "" {
		return strings.TrimSpace(scene)
	}
	return defaultModelScene
}

// Client wraps an llm.Client and writes one markdown dump per call.
type Client struct {
	base   llm.Client
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

func Wrap(base llm.Client, dir string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:   base,
		dir:    strings.TrimSpace(dir),
		logger: logger,
		now:    time.Now,
	}
}

func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Result, error) {
	res, err := c.base.Chat(ctx, req)
	if path, dumpErr := c.dump(ctx, req, res, err); dumpErr != nil {
		c.logger.Warn("llm_inspect_dump_error", "error", dumpErr.Error())
	} else if path != "" {
		c.logger.Info("llm_inspect_dump", "path", path, "scene", ModelSceneFromContext(ctx))
	}
	return res, err
}

func (c *Client) dump(ctx context.Context, req llm.Request, res llm.Result, callErr error) (string, error) {
	if c.dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", ModelSceneFromContext(ctx))
	fmt.Fprintf(&b, "- model: %s\n- max_tokens: %d\n- at: %s\n\n", req.Model, req.MaxTokens, c.now().UTC().Format(time.RFC3339))
	b.WriteString("## Request\n\n")
	for _, msg := range req.Messages {
		fmt.Fprintf(&b, "### %s\n\n%s\n\n", msg.Role, msg.Content)
	}
	b.WriteString("## Response\n\n")
	if callErr != nil {
		fmt.Fprintf(&b, "error: %v\n", callErr)
	} else {
		b.WriteString(res.Text)
		b.WriteString("\n")
	}

	name := fmt.Sprintf("%d_%s.md", c.now().UnixNano(), sanitizeScene(ModelSceneFromContext(ctx)))
	path := filepath.Join(c.dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func sanitizeScene(scene string) string {
	var b strings.Builder
	for _, r := range scene {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
