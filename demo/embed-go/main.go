package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/quailyquaily/misterecho/integration"
)

func main() {
	var (
		message        = flag.String("message", "What can you help me with?", "Message to send.")
		model          = flag.String("model", "", "Model identifier (defaults to the catalog default).")
		endpoint       = flag.String("endpoint", "https://openrouter.ai/api/v1", "OpenAI-compatible base URL.")
		apiKey         = flag.String("api-key", os.Getenv("MISTER_ECHO_LLM_API_KEY"), "API key (defaults to MISTER_ECHO_LLM_API_KEY).")
		inspectRequest = flag.Bool("inspect-request", false, "Dump request/response payloads to ./dump.")
		asMrkdwn       = flag.Bool("mrkdwn", false, "Also print the reply rendered as Slack mrkdwn.")
	)
	flag.Parse()

	cfg := integration.DefaultConfig()
	cfg.Inspect.Request = *inspectRequest
	cfg.Set("llm.endpoint", strings.TrimSpace(*endpoint))
	cfg.Set("llm.api_key", strings.TrimSpace(*apiKey))
	cfg.Set("llm.model", strings.TrimSpace(*model))
	cfg.Set("llm.request_timeout", 60*time.Second)

	rt, err := integration.New(cfg)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	reply, err := rt.Ask(ctx, *message)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	fmt.Println(reply)
	if *asMrkdwn {
		fmt.Println("---")
		fmt.Println(integration.Mrkdwn(reply))
	}
}
