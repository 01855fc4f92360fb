package slackcmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"github.com/spf13/cobra"

	slackruntime "github.com/quailyquaily/misterecho/internal/channelruntime/slack"
	"github.com/quailyquaily/misterecho/internal/chathistory"
	"github.com/quailyquaily/misterecho/internal/configutil"
	"github.com/quailyquaily/misterecho/internal/healthcheck"
	"github.com/quailyquaily/misterecho/internal/llminspect"
	"github.com/quailyquaily/misterecho/internal/modelcatalog"
	"github.com/quailyquaily/misterecho/internal/modelpref"
	"github.com/quailyquaily/misterecho/internal/threadctx"
)

const (
	defaultLLMEndpoint = "https://openrouter.ai/api/v1"
	inspectDumpDir     = "dump"
)

type slackConfig struct {
	BotToken          string
	AppToken          string
	Debug             bool
	HistoryLimit      int
	InvolvementWindow int
	MaxConcurrency    int
	TaskTimeout       time.Duration
	AllowTeams        []string
	AllowChannels     []string

	APIKey         string
	Endpoint       string
	Model          string
	MaxTokens      int
	RequestTimeout time.Duration
	InspectRequest bool

	HealthListen string
}

func newSlackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slack",
		Short: "Run the Slack bot with Socket Mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveSlackConfig(cmd)
			if err != nil {
				return err
			}

			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			catalog, err := modelcatalog.Load()
			if err != nil {
				return err
			}
			defaultModel := cfg.Model
			if defaultModel == "" {
				defaultModel = catalog.Default()
			} else if !catalog.Has(defaultModel) {
				return fmt.Errorf("llm.model %q is not in the model catalog", defaultModel)
			}

			api := slack.New(cfg.BotToken,
				slack.OptionAppLevelToken(cfg.AppToken),
				slack.OptionDebug(cfg.Debug),
			)
			auth, err := api.AuthTestContext(cmd.Context())
			if err != nil {
				return fmt.Errorf("slack auth.test: %w", err)
			}
			botUserID := strings.TrimSpace(auth.UserID)
			if botUserID == "" {
				return fmt.Errorf("slack auth.test returned empty user_id")
			}
			teamID := strings.TrimSpace(auth.TeamID)
			if len(cfg.AllowTeams) == 0 && teamID != "" {
				cfg.AllowTeams = []string{teamID}
			}

			client, err := createLLMClient(cfg.Endpoint, cfg.APIKey, cfg.RequestTimeout)
			if err != nil {
				return err
			}
			if cfg.InspectRequest {
				client = llminspect.Wrap(client, inspectDumpDir, logger)
			}

			runtime, err := slackruntime.New(slackruntime.Options{
				API:     api,
				LLM:     client,
				History: chathistory.NewFetcher(api, botUserID, logger),
				Prefs:   modelpref.NewStore(defaultModel),
				Threads: threadctx.NewStore(0),
				Catalog: catalog,
				Logger:  logger,
				Config: slackruntime.Config{
					BotUserID:         botUserID,
					TeamID:            teamID,
					HistoryLimit:      cfg.HistoryLimit,
					InvolvementWindow: cfg.InvolvementWindow,
					MaxConcurrency:    cfg.MaxConcurrency,
					TaskTimeout:       cfg.TaskTimeout,
					MaxTokens:         cfg.MaxTokens,
					AllowTeams:        cfg.AllowTeams,
					AllowChannels:     cfg.AllowChannels,
				},
			})
			if err != nil {
				return err
			}

			if healthListen := healthcheck.NormalizeListen(cfg.HealthListen); healthListen != "" {
				healthServer, err := healthcheck.StartServer(cmd.Context(), logger, healthListen, "slack")
				if err != nil {
					logger.Warn("slack_health_server_start_error", "addr", healthListen, "error", err.Error())
				} else {
					defer func() {
						shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
						_ = healthServer.Shutdown(shutdownCtx)
						cancel()
					}()
				}
			}

			logger.Info("slack_start",
				"bot_user_id", botUserID,
				"team_id", teamID,
				"default_model", defaultModel,
				"history_limit", cfg.HistoryLimit,
				"involvement_window", cfg.InvolvementWindow,
				"max_concurrency", cfg.MaxConcurrency,
				"task_timeout", cfg.TaskTimeout.String(),
				"allow_teams", len(cfg.AllowTeams),
				"allow_channels", len(cfg.AllowChannels),
			)

			socketClient := socketmode.New(api, socketmode.OptionDebug(cfg.Debug))
			return runtime.Run(cmd.Context(), socketClient)
		},
	}

	cmd.Flags().String("slack-bot-token", "", "Slack bot token (xoxb-...).")
	cmd.Flags().String("slack-app-token", "", "Slack app-level token for Socket Mode (xapp-...).")
	cmd.Flags().StringArray("slack-allow-team", nil, "Allowed Slack team id(s). If empty, defaults to the bot's home team.")
	cmd.Flags().StringArray("slack-allow-channel", nil, "Allowed Slack channel id(s). If empty, allows all channels in allowed teams.")
	cmd.Flags().Int("slack-history-limit", chathistory.DefaultLimit, "Max thread/channel messages fetched as completion context.")
	cmd.Flags().Int("slack-involvement-window", 5, "Recent thread messages checked for prior bot involvement.")
	cmd.Flags().Int("slack-max-concurrency", 3, "Max number of Slack conversations processed concurrently.")
	cmd.Flags().Duration("slack-task-timeout", 120*time.Second, "Per-message handling timeout.")
	cmd.Flags().Bool("slack-debug", false, "Enable slack client debug logging.")
	cmd.Flags().String("llm-api-key", "", "Completion API key.")
	cmd.Flags().String("llm-endpoint", defaultLLMEndpoint, "Completion API base URL (any OpenAI-compatible endpoint).")
	cmd.Flags().String("llm-model", "", "Default completion model id (empty uses the catalog default).")
	cmd.Flags().Int("llm-max-tokens", 2000, "Completion response token cap.")
	cmd.Flags().Duration("llm-request-timeout", 60*time.Second, "Completion API request timeout.")
	cmd.Flags().Bool("inspect-request", false, "Dump completion request/response pairs to ./"+inspectDumpDir+".")
	cmd.Flags().String("health-listen", "127.0.0.1:8391", "Health endpoint listen address (empty disables).")

	return cmd
}

func resolveSlackConfig(cmd *cobra.Command) (slackConfig, error) {
	cfg := slackConfig{
		BotToken:          strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-bot-token", "slack.bot_token")),
		AppToken:          strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-app-token", "slack.app_token")),
		Debug:             configutil.FlagOrViperBool(cmd, "slack-debug", "slack.debug"),
		HistoryLimit:      configutil.FlagOrViperInt(cmd, "slack-history-limit", "slack.history_limit"),
		InvolvementWindow: configutil.FlagOrViperInt(cmd, "slack-involvement-window", "slack.involvement_window"),
		MaxConcurrency:    configutil.FlagOrViperInt(cmd, "slack-max-concurrency", "slack.max_concurrency"),
		TaskTimeout:       configutil.FlagOrViperDuration(cmd, "slack-task-timeout", "slack.task_timeout"),
		AllowTeams:        configutil.FlagOrViperStringArray(cmd, "slack-allow-team", "slack.allow_team"),
		AllowChannels:     configutil.FlagOrViperStringArray(cmd, "slack-allow-channel", "slack.allow_channel"),

		APIKey:         strings.TrimSpace(configutil.FlagOrViperString(cmd, "llm-api-key", "llm.api_key")),
		Endpoint:       strings.TrimSpace(configutil.FlagOrViperString(cmd, "llm-endpoint", "llm.endpoint")),
		Model:          strings.TrimSpace(configutil.FlagOrViperString(cmd, "llm-model", "llm.model")),
		MaxTokens:      configutil.FlagOrViperInt(cmd, "llm-max-tokens", "llm.max_tokens"),
		RequestTimeout: configutil.FlagOrViperDuration(cmd, "llm-request-timeout", "llm.request_timeout"),
		InspectRequest: configutil.FlagOrViperBool(cmd, "inspect-request", "llm.inspect_request"),

		HealthListen: configutil.FlagOrViperString(cmd, "health-listen", "health.listen"),
	}

	if cfg.BotToken == "" {
		return slackConfig{}, fmt.Errorf("missing slack.bot_token (set via --slack-bot-token or MISTER_ECHO_SLACK_BOT_TOKEN)")
	}
	if cfg.AppToken == "" {
		return slackConfig{}, fmt.Errorf("missing slack.app_token (set via --slack-app-token or MISTER_ECHO_SLACK_APP_TOKEN)")
	}
	if !strings.HasPrefix(cfg.AppToken, "xapp-") {
		return slackConfig{}, fmt.Errorf("slack.app_token must start with xapp-")
	}
	if cfg.APIKey == "" {
		return slackConfig{}, fmt.Errorf("missing llm.api_key (set via --llm-api-key or MISTER_ECHO_LLM_API_KEY)")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultLLMEndpoint
	}
	return cfg, nil
}
