// Package slack runs the Socket Mode event loop for Mister Echo. Inbound
// envelopes are acked immediately, decoded once into tagged variants, then
// dispatched through an explicit per-kind handler table. Message handling is
// serialized per conversation so replies land in thread order.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/quailyquaily/misterecho/internal/chathistory"
	"github.com/quailyquaily/misterecho/internal/idempotency"
	"github.com/quailyquaily/misterecho/internal/modelcatalog"
	"github.com/quailyquaily/misterecho/internal/modelpref"
	"github.com/quailyquaily/misterecho/internal/threadctx"
	"github.com/quailyquaily/misterecho/llm"
)

const (
	defaultInvolvementWindow = 5
	defaultMaxConcurrency    = 3
	defaultTaskTimeout       = 120 * time.Second
	defaultMaxTokens         = 2000

	dedupTTL        = 10 * time.Minute
	workerQueueSize = 16
)

// SlackClient is the slice of the Slack Web API the runtime calls. A
// *slack.Client satisfies it.
type SlackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error)
	PublishViewContext(ctx context.Context, userID string, view slack.HomeTabViewRequest, hash string) (*slack.ViewResponse, error)
	SetAssistantThreadsSuggestedPromptsContext(ctx context.Context, params slack.AssistantThreadsSetSuggestedPromptsParameters) error
	SetAssistantThreadsStatusContext(ctx context.Context, params slack.AssistantThreadsSetStatusParameters) error
}

// Config carries the runtime knobs resolved by the command layer.
type Config struct {
	BotUserID         string
	TeamID            string
	HistoryLimit      int
	InvolvementWindow int
	MaxConcurrency    int
	TaskTimeout       time.Duration
	MaxTokens         int
	AllowTeams        []string
	AllowChannels     []string
}

// Options wires the runtime's collaborators.
type Options struct {
	API     SlackClient
	LLM     llm.Client
	History *chathistory.Fetcher
	Prefs   *modelpref.Store
	Threads *threadctx.Store
	Catalog *modelcatalog.Catalog
	Logger  *slog.Logger
	Config  Config
}

type Runtime struct {
	api     SlackClient
	llm     llm.Client
	history *chathistory.Fetcher
	prefs   *modelpref.Store
	threads *threadctx.Store
	catalog *modelcatalog.Catalog
	logger  *slog.Logger
	cfg     Config

	seen          *idempotency.SeenCache
	allowTeams    map[string]struct{}
	allowChannels map[string]struct{}

	dispatch map[eventKind]func(context.Context, routedEvent)

	mu      sync.Mutex
	workers map[string]*conversationWorker
	sem     chan struct{}
}

func New(opts Options) (*Runtime, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("slack api is required")
	}
	if opts.LLM == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if opts.History == nil {
		return nil, fmt.Errorf("history fetcher is required")
	}
	if opts.Prefs == nil {
		return nil, fmt.Errorf("model preference store is required")
	}
	if opts.Threads == nil {
		return nil, fmt.Errorf("thread context store is required")
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("model catalog is required")
	}
	cfg := opts.Config
	if strings.TrimSpace(cfg.BotUserID) == "" {
		return nil, fmt.Errorf("bot user id is required")
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = chathistory.DefaultLimit
	}
	if cfg.InvolvementWindow <= 0 {
		cfg.InvolvementWindow = defaultInvolvementWindow
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = defaultTaskTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Runtime{
		api:           opts.API,
		llm:           opts.LLM,
		history:       opts.History,
		prefs:         opts.Prefs,
		threads:       opts.Threads,
		catalog:       opts.Catalog,
		logger:        logger,
		cfg:           cfg,
		seen:          idempotency.NewSeenCache(dedupTTL, 0),
		allowTeams:    toAllowlist(cfg.AllowTeams),
		allowChannels: toAllowlist(cfg.AllowChannels),
		workers:       make(map[string]*conversationWorker),
		sem:           make(chan struct{}, cfg.MaxConcurrency),
	}
	r.dispatch = map[eventKind]func(context.Context, routedEvent){
		kindMessage:              r.handleMessage,
		kindMention:              r.handleMention,
		kindThreadStarted:        r.handleThreadStarted,
		kindThreadContextChanged: r.handleThreadContextChanged,
		kindHomeOpened:           r.handleHomeOpened,
		kindBlockActions:         r.handleBlockActions,
	}
	return r, nil
}

// Run drives the Socket Mode connection until ctx is cancelled or the
// connection fails for good.
func (r *Runtime) Run(ctx context.Context, client *socketmode.Client) error {
	runErr := make(chan error, 1)
	go func() {
		runErr <- client.RunContext(ctx)
	}()

	r.logger.Info("slack_runtime_start", "bot_user_id", r.cfg.BotUserID, "team_id", r.cfg.TeamID)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("slack_runtime_stop", "reason", ctx.Err().Error())
			return nil
		case err := <-runErr:
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("socket mode connection: %w", err)
			}
			r.logger.Info("slack_runtime_stop", "reason", "socket closed")
			return nil
		case evt, ok := <-client.Events:
			if !ok {
				return fmt.Errorf("socket mode event channel closed")
			}
			r.routeSocketEvent(ctx, evt, client.Ack)
		}
	}
}

// routeSocketEvent is the single router loop body. Envelopes that expect an
// ack are acked before any handling so Slack does not redeliver while a
// completion is in flight.
func (r *Runtime) routeSocketEvent(ctx context.Context, evt socketmode.Event, ack func(socketmode.Request, ...interface{})) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		r.logger.Info("slack_socket_connecting")
	case socketmode.EventTypeConnected:
		r.logger.Info("slack_socket_connected")
	case socketmode.EventTypeConnectionError:
		r.logger.Warn("slack_socket_connect_error", "error", fmt.Sprintf("%v", evt.Data))
	case socketmode.EventTypeHello:
		r.logger.Debug("slack_socket_hello")
	case socketmode.EventTypeDisconnect:
		r.logger.Debug("slack_socket_disconnect")
	case socketmode.EventTypeIncomingError:
		r.logger.Warn("slack_socket_incoming_error", "error", fmt.Sprintf("%v", evt.Data))
	case socketmode.EventTypeEventsAPI:
		if evt.Request == nil {
			return
		}
		ack(*evt.Request)
		if evt.Request.RetryAttempt > 0 {
			r.logger.Debug("slack_envelope_retry", "attempt", evt.Request.RetryAttempt, "reason", evt.Request.RetryReason)
		}
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			r.logger.Warn("slack_envelope_decode_error", "type", string(evt.Type))
			return
		}
		if ev, ok := r.decodeEventsAPI(apiEvent); ok {
			r.invoke(ctx, ev)
		}
	case socketmode.EventTypeInteractive:
		if evt.Request == nil {
			return
		}
		ack(*evt.Request)
		callback, ok := evt.Data.(slack.InteractionCallback)
		if !ok {
			r.logger.Warn("slack_envelope_decode_error", "type", string(evt.Type))
			return
		}
		if ev, ok := r.decodeInteraction(callback); ok {
			r.invoke(ctx, ev)
		}
	case socketmode.EventTypeSlashCommand:
		if evt.Request != nil {
			ack(*evt.Request)
		}
		r.logger.Debug("slack_slash_command_ignored")
	default:
		r.logger.Debug("slack_socket_event_ignored", "type", string(evt.Type))
	}
}

// invoke looks the handler up in the dispatch table. Messages go through the
// per-conversation worker so a busy thread cannot reorder its replies; other
// kinds run on their own goroutine.
func (r *Runtime) invoke(ctx context.Context, ev routedEvent) {
	handler, ok := r.dispatch[ev.Kind]
	if !ok {
		r.logger.Debug("slack_event_unhandled", "kind", string(ev.Kind))
		return
	}
	if ev.Kind == kindMessage && ev.Message != nil {
		r.enqueueMessage(ev, handler)
		return
	}
	go r.safely(string(ev.Kind), func() {
		handler(ctx, ev)
	})
}

type conversationJob struct {
	ID    string
	Event routedEvent
}

type conversationWorker struct {
	Jobs chan conversationJob
}

func (r *Runtime) enqueueMessage(ev routedEvent, handler func(context.Context, routedEvent)) {
	key := ev.Message.ChannelID + ":" + ev.Message.threadAnchor()
	r.mu.Lock()
	worker := r.workers[key]
	if worker == nil {
		worker = &conversationWorker{Jobs: make(chan conversationJob, workerQueueSize)}
		r.workers[key] = worker
		go r.runWorker(key, worker, handler)
	}
	r.mu.Unlock()

	job := conversationJob{ID: uuid.NewString(), Event: ev}
	select {
	case worker.Jobs <- job:
	default:
		r.logger.Warn("slack_worker_queue_full", "conversation", key, "job_id", job.ID)
	}
}

func (r *Runtime) runWorker(key string, worker *conversationWorker, handler func(context.Context, routedEvent)) {
	for job := range worker.Jobs {
		r.sem <- struct{}{}
		start := time.Now()
		func() {
			defer func() { <-r.sem }()
			jctx, cancel := context.WithTimeout(context.Background(), r.cfg.TaskTimeout)
			defer cancel()
			r.safely("message", func() {
				handler(jctx, job.Event)
			})
		}()
		r.logger.Debug("slack_job_done", "conversation", key, "job_id", job.ID, "duration", time.Since(start).String())
	}
}

// safely keeps a panicking handler from taking the event loop down.
func (r *Runtime) safely(name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("slack_handler_panic", "handler", name, "panic", fmt.Sprintf("%v", rec))
		}
	}()
	fn()
}

func (r *Runtime) postText(ctx context.Context, channelID, threadTS, text string) error {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if strings.TrimSpace(threadTS) != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, _, err := r.api.PostMessageContext(ctx, channelID, opts...)
	return err
}
