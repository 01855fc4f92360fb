package integration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/quailyquaily/misterecho/internal/llminspect"
	"github.com/quailyquaily/misterecho/internal/logutil"
	"github.com/quailyquaily/misterecho/internal/modelcatalog"
	"github.com/quailyquaily/misterecho/internal/mrkdwn"
	"github.com/quailyquaily/misterecho/internal/outputfmt"
	"github.com/quailyquaily/misterecho/llm"
	"github.com/quailyquaily/misterecho/providers/openai"
)

const defaultInspectDumpDir = "dump"

// Runtime is the reusable wiring entrypoint for third-party embedding.
type Runtime struct {
	cfg     Config
	catalog *modelcatalog.Catalog
}

func New(cfg Config) (*Runtime, error) {
	if cfg.Overrides == nil {
		cfg.Overrides = map[string]any{}
	}
	applyViperDefaults()

	for k, v := range cfg.Overrides {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		viper.Set(key, v)
	}

	catalog, err := modelcatalog.Load()
	if err != nil {
		return nil, err
	}
	return &Runtime{cfg: cfg, catalog: catalog}, nil
}

func applyViperDefaults() {
	viper.SetDefault("llm.endpoint", "https://openrouter.ai/api/v1")
	viper.SetDefault("llm.request_timeout", 60*time.Second)
	viper.SetDefault("llm.max_tokens", 2000)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}

// Catalog exposes the embedded model catalog.
func (rt *Runtime) Catalog() *modelcatalog.Catalog {
	if rt == nil {
		return nil
	}
	return rt.catalog
}

// Model resolves the model to use: the llm.model override when set, the
// catalog default otherwise.
func (rt *Runtime) Model() string {
	if rt == nil {
		return ""
	}
	if m := strings.TrimSpace(viper.GetString("llm.model")); m != "" {
		return m
	}
	return rt.catalog.Default()
}

// NewClient builds the completion client from the resolved configuration,
// wrapped with the request inspector when enabled.
func (rt *Runtime) NewClient() (llm.Client, error) {
	if rt == nil {
		return nil, fmt.Errorf("runtime is nil")
	}
	apiKey := strings.TrimSpace(viper.GetString("llm.api_key"))
	if apiKey == "" {
		return nil, fmt.Errorf("llm.api_key is required")
	}
	client, err := openai.New(openai.Config{
		APIKey:         apiKey,
		Endpoint:       strings.TrimSpace(viper.GetString("llm.endpoint")),
		RequestTimeout: viper.GetDuration("llm.request_timeout"),
	})
	if err != nil {
		return nil, err
	}
	if !rt.cfg.Inspect.Request {
		return client, nil
	}

	dir := strings.TrimSpace(rt.cfg.Inspect.DumpDir)
	if dir == "" {
		dir = defaultInspectDumpDir
	}
	logger, err := logutil.LoggerFromViper()
	if err != nil {
		return nil, err
	}
	return llminspect.Wrap(client, dir, logger), nil
}

// Ask runs a one-shot completion against the resolved model and returns the
// cleaned reply text.
func (rt *Runtime) Ask(ctx context.Context, text string) (string, error) {
	if rt == nil {
		return "", fmt.Errorf("runtime is nil")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("text is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := rt.NewClient()
	if err != nil {
		return "", err
	}
	result, err := client.Chat(llminspect.WithModelScene(ctx, "embed.ask"), llm.Request{
		Model:     rt.Model(),
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: text}},
		MaxTokens: viper.GetInt("llm.max_tokens"),
	})
	if err != nil {
		return "", err
	}
	return outputfmt.FormatReplyText(result.Text), nil
}

func (rt *Runtime) RequestTimeout() time.Duration {
	if rt == nil {
		return 0
	}
	return viper.GetDuration("llm.request_timeout")
}

// Mrkdwn renders markdown reply text the way the Slack runtime posts it.
func Mrkdwn(text string) string {
	return mrkdwn.FromMarkdown(text)
}
