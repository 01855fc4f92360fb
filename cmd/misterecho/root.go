package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quailyquaily/misterecho/cmd/misterecho/slackcmd"
	"github.com/quailyquaily/misterecho/internal/logutil"
	"github.com/quailyquaily/misterecho/llm"
	"github.com/quailyquaily/misterecho/providers/openai"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "misterecho",
		Short:        "Slack bot that relays messages to a hosted LLM and posts the answers back in-thread",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			return initConfig(configFile)
		},
	}
	cmd.PersistentFlags().String("config", "", "Config file (default searches ./config.yaml, then $HOME/.misterecho/config.yaml).")

	cmd.AddCommand(slackcmd.NewCommand(slackcmd.Dependencies{
		LoggerFromViper: logutil.LoggerFromViper,
		CreateLLMClient: createLLMClient,
	}))
	return cmd
}

func initConfig(configFile string) error {
	viper.SetEnvPrefix("MISTER_ECHO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if strings.TrimSpace(configFile) != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.misterecho")
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && strings.TrimSpace(configFile) == "" {
			// Running on flags and environment alone is fine.
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func createLLMClient(endpoint, apiKey string, requestTimeout time.Duration) (llm.Client, error) {
	return openai.New(openai.Config{
		APIKey:         apiKey,
		Endpoint:       endpoint,
		RequestTimeout: requestTimeout,
	})
}
