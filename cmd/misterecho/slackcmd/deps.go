package slackcmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/quailyquaily/misterecho/llm"
)

// Dependencies are supplied by the root command package so this package does
// not own logger construction or provider selection itself.
type Dependencies struct {
	LoggerFromViper func() (*slog.Logger, error)
	CreateLLMClient func(endpoint, apiKey string, requestTimeout time.Duration) (llm.Client, error)
}

var deps Dependencies

func NewCommand(d Dependencies) *cobra.Command {
	deps = d
	return newSlackCmd()
}

func loggerFromViper() (*slog.Logger, error) {
	if deps.LoggerFromViper == nil {
		return nil, fmt.Errorf("LoggerFromViper dependency missing")
	}
	return deps.LoggerFromViper()
}

func createLLMClient(endpoint, apiKey string, requestTimeout time.Duration) (llm.Client, error) {
	if deps.CreateLLMClient == nil {
		return nil, fmt.Errorf("CreateLLMClient dependency missing")
	}
	return deps.CreateLLMClient(endpoint, apiKey, requestTimeout)
}
