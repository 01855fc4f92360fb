package slack

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/quailyquaily/misterecho/internal/chathistory"
	"github.com/quailyquaily/misterecho/internal/modelcatalog"
	"github.com/quailyquaily/misterecho/internal/modelpref"
	"github.com/quailyquaily/misterecho/internal/threadctx"
	"github.com/quailyquaily/misterecho/llm"
)

const (
	testBotUserID    = "UBOT"
	testDefaultModel = "openai/gpt-4o"
)

type postedMessage struct {
	ChannelID string
	UserID    string
	Text      string
	ThreadTS  string
}

type fakeSlackAPI struct {
	mu         sync.Mutex
	posts      []postedMessage
	ephemerals []postedMessage
	viewUsers  []string
	views      []slack.HomeTabViewRequest
	prompts    []slack.AssistantThreadsSetSuggestedPromptsParameters
	statuses   []slack.AssistantThreadsSetStatusParameters

	postErr      error
	ephemeralErr error
	publishErr   error
}

func decodeMsgOptions(channelID string, options ...slack.MsgOption) (postedMessage, error) {
	_, values, err := slack.UnsafeApplyMsgOptions("xoxb-test", channelID, "https://slack.test/api/", options...)
	if err != nil {
		return postedMessage{}, err
	}
	return postedMessage{
		ChannelID: channelID,
		Text:      values.Get("text"),
		ThreadTS:  values.Get("thread_ts"),
	}, nil
}

func (f *fakeSlackAPI) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return "", "", f.postErr
	}
	msg, err := decodeMsgOptions(channelID, options...)
	if err != nil {
		return "", "", err
	}
	f.posts = append(f.posts, msg)
	return channelID, "100." + strconv.Itoa(len(f.posts)), nil
}

func (f *fakeSlackAPI) PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ephemeralErr != nil {
		return "", f.ephemeralErr
	}
	msg, err := decodeMsgOptions(channelID, options...)
	if err != nil {
		return "", err
	}
	msg.UserID = userID
	f.ephemerals = append(f.ephemerals, msg)
	return "100.1", nil
}

func (f *fakeSlackAPI) PublishViewContext(ctx context.Context, userID string, view slack.HomeTabViewRequest, hash string) (*slack.ViewResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.viewUsers = append(f.viewUsers, userID)
	f.views = append(f.views, view)
	return &slack.ViewResponse{}, nil
}

func (f *fakeSlackAPI) SetAssistantThreadsSuggestedPromptsContext(ctx context.Context, params slack.AssistantThreadsSetSuggestedPromptsParameters) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, params)
	return nil
}

func (f *fakeSlackAPI) SetAssistantThreadsStatusContext(ctx context.Context, params slack.AssistantThreadsSetStatusParameters) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, params)
	return nil
}

func (f *fakeSlackAPI) postedMessages() []postedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]postedMessage(nil), f.posts...)
}

func (f *fakeSlackAPI) lastPost(t *testing.T) postedMessage {
	t.Helper()
	posts := f.postedMessages()
	if len(posts) == 0 {
		t.Fatalf("no message posted")
	}
	return posts[len(posts)-1]
}

type fakeLLM struct {
	mu       sync.Mutex
	requests []llm.Request
	result   llm.Result
	err      error
}

func (f *fakeLLM) Chat(ctx context.Context, req llm.Request) (llm.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return llm.Result{}, f.err
	}
	res := f.result
	if res.Model == "" {
		res.Model = req.Model
	}
	return res, nil
}

func (f *fakeLLM) recorded() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.requests...)
}

// fakeConversations serves thread replies keyed channel:thread and channel
// history keyed channel, newest first like the real history API.
type fakeConversations struct {
	mu         sync.Mutex
	replies    map[string][]slack.Message
	history    map[string][]slack.Message
	repliesErr error
	historyErr error
	joinErr    error
	joinCalls  int
}

func (f *fakeConversations) GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.repliesErr != nil {
		return nil, false, "", f.repliesErr
	}
	return f.replies[params.ChannelID+":"+params.Timestamp], false, "", nil
}

func (f *fakeConversations) GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return &slack.GetConversationHistoryResponse{Messages: f.history[params.ChannelID]}, nil
}

func (f *fakeConversations) JoinConversationContext(ctx context.Context, channelID string) (*slack.Channel, string, []string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joinCalls++
	return nil, "", nil, f.joinErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func userMsg(user, text, ts string) slack.Message {
	return slack.Message{Msg: slack.Msg{User: user, Text: text, Timestamp: ts}}
}

type runtimeFixture struct {
	runtime *Runtime
	api     *fakeSlackAPI
	llm     *fakeLLM
	conv    *fakeConversations
	prefs   *modelpref.Store
	threads *threadctx.Store
}

func newTestRuntime(t *testing.T, mutate ...func(*Options)) *runtimeFixture {
	t.Helper()

	catalog, err := modelcatalog.Load()
	if err != nil {
		t.Fatalf("modelcatalog.Load() error = %v", err)
	}
	api := &fakeSlackAPI{}
	llmClient := &fakeLLM{result: llm.Result{Text: "fine."}}
	conv := &fakeConversations{
		replies: make(map[string][]slack.Message),
		history: make(map[string][]slack.Message),
	}
	prefs := modelpref.NewStore(testDefaultModel)
	threads := threadctx.NewStore(0)

	opts := Options{
		API:     api,
		LLM:     llmClient,
		History: chathistory.NewFetcher(conv, testBotUserID, discardLogger()),
		Prefs:   prefs,
		Threads: threads,
		Catalog: catalog,
		Logger:  discardLogger(),
		Config: Config{
			BotUserID:         testBotUserID,
			TeamID:            "T1",
			HistoryLimit:      10,
			InvolvementWindow: 5,
			MaxConcurrency:    2,
			TaskTimeout:       5 * time.Second,
			MaxTokens:         2000,
		},
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	rt, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &runtimeFixture{runtime: rt, api: api, llm: llmClient, conv: conv, prefs: prefs, threads: threads}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewValidatesOptions(t *testing.T) {
	t.Parallel()

	catalog, err := modelcatalog.Load()
	if err != nil {
		t.Fatalf("modelcatalog.Load() error = %v", err)
	}
	base := func() Options {
		return Options{
			API:     &fakeSlackAPI{},
			LLM:     &fakeLLM{},
			History: chathistory.NewFetcher(&fakeConversations{}, testBotUserID, discardLogger()),
			Prefs:   modelpref.NewStore(testDefaultModel),
			Threads: threadctx.NewStore(0),
			Catalog: catalog,
			Logger:  discardLogger(),
			Config:  Config{BotUserID: testBotUserID},
		}
	}

	if _, err := New(base()); err != nil {
		t.Fatalf("New() with complete options error = %v", err)
	}

	missing := []struct {
		name   string
		mutate func(*Options)
	}{
		{"api", func(o *Options) { o.API = nil }},
		{"llm", func(o *Options) { o.LLM = nil }},
		{"history", func(o *Options) { o.History = nil }},
		{"prefs", func(o *Options) { o.Prefs = nil }},
		{"threads", func(o *Options) { o.Threads = nil }},
		{"catalog", func(o *Options) { o.Catalog = nil }},
		{"bot user id", func(o *Options) { o.Config.BotUserID = " " }},
	}
	for _, tc := range missing {
		opts := base()
		tc.mutate(&opts)
		if _, err := New(opts); err == nil {
			t.Fatalf("New() without %s should fail", tc.name)
		}
	}
}

func TestNewAppliesConfigDefaults(t *testing.T) {
	t.Parallel()

	catalog, err := modelcatalog.Load()
	if err != nil {
		t.Fatalf("modelcatalog.Load() error = %v", err)
	}
	rt, err := New(Options{
		API:     &fakeSlackAPI{},
		LLM:     &fakeLLM{},
		History: chathistory.NewFetcher(&fakeConversations{}, testBotUserID, discardLogger()),
		Prefs:   modelpref.NewStore(testDefaultModel),
		Threads: threadctx.NewStore(0),
		Catalog: catalog,
		Config:  Config{BotUserID: testBotUserID},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if rt.cfg.HistoryLimit != chathistory.DefaultLimit {
		t.Fatalf("HistoryLimit = %d, want %d", rt.cfg.HistoryLimit, chathistory.DefaultLimit)
	}
	if rt.cfg.InvolvementWindow != defaultInvolvementWindow {
		t.Fatalf("InvolvementWindow = %d, want %d", rt.cfg.InvolvementWindow, defaultInvolvementWindow)
	}
	if rt.cfg.MaxConcurrency != defaultMaxConcurrency {
		t.Fatalf("MaxConcurrency = %d, want %d", rt.cfg.MaxConcurrency, defaultMaxConcurrency)
	}
	if rt.cfg.TaskTimeout != defaultTaskTimeout {
		t.Fatalf("TaskTimeout = %v, want %v", rt.cfg.TaskTimeout, defaultTaskTimeout)
	}
	if rt.cfg.MaxTokens != defaultMaxTokens {
		t.Fatalf("MaxTokens = %d, want %d", rt.cfg.MaxTokens, defaultMaxTokens)
	}
}

func TestWorkerKeepsConversationOrder(t *testing.T) {
	t.Parallel()

	fx := newTestRuntime(t)
	for i := 1; i <= 3; i++ {
		fx.runtime.invoke(context.Background(), routedEvent{
			Kind: kindMessage,
			Message: &inboundMessage{
				ChannelID:   "D1",
				ChannelType: "im",
				UserID:      "U" + strconv.Itoa(i),
				Text:        "hello",
				TS:          "1." + strconv.Itoa(i),
				ThreadTS:    "1.0",
			},
		})
	}

	waitFor(t, "three greetings", func() bool { return len(fx.api.postedMessages()) == 3 })
	posts := fx.api.postedMessages()
	for i, post := range posts {
		want := "Hey there <@U" + strconv.Itoa(i+1) + ">!"
		if post.Text != want {
			t.Fatalf("posts[%d].Text = %q, want %q (order broken: %#v)", i, post.Text, want, posts)
		}
	}
}

func TestSafelyRecoversPanics(t *testing.T) {
	t.Parallel()

	fx := newTestRuntime(t)
	fx.runtime.safely("test", func() { panic("boom") })
	// A panicking message handler must not take the worker down either.
	fx.runtime.invoke(context.Background(), routedEvent{
		Kind: kindMessage,
		Message: &inboundMessage{
			ChannelID:   "D1",
			ChannelType: "im",
			UserID:      "U1",
			Text:        "hello",
			TS:          "1.1",
			ThreadTS:    "1.0",
		},
	})
	waitFor(t, "greeting after recovered panic", func() bool { return len(fx.api.postedMessages()) == 1 })
}

func TestRouteSocketEventAcksBeforeHandling(t *testing.T) {
	t.Parallel()

	fx := newTestRuntime(t)
	acked := 0
	ack := func(req socketmode.Request, payload ...interface{}) { acked++ }

	evt := socketmode.Event{
		Type:    socketmode.EventTypeEventsAPI,
		Request: &socketmode.Request{},
		Data: slackevents.EventsAPIEvent{
			Type:   slackevents.CallbackEvent,
			TeamID: "T1",
			InnerEvent: slackevents.EventsAPIInnerEvent{
				Type: "message",
				Data: &slackevents.MessageEvent{
					Type:            "message",
					User:            "U1",
					Text:            "hello",
					Channel:         "D1",
					ChannelType:     "im",
					TimeStamp:       "5.1",
					ThreadTimeStamp: "5.0",
				},
			},
		},
	}
	fx.runtime.routeSocketEvent(context.Background(), evt, ack)
	if acked != 1 {
		t.Fatalf("acked = %d, want 1", acked)
	}
	waitFor(t, "greeting reply", func() bool { return len(fx.api.postedMessages()) == 1 })
	post := fx.api.lastPost(t)
	if post.Text != "Hey there <@U1>!" || post.ChannelID != "D1" {
		t.Fatalf("post = %+v", post)
	}

	// Unknown socket event types are ignored without touching the ack.
	fx.runtime.routeSocketEvent(context.Background(), socketmode.Event{Type: socketmode.EventTypeHello}, ack)
	if acked != 1 {
		t.Fatalf("hello event should not ack, acked = %d", acked)
	}
}

func TestRouteSocketEventInteractive(t *testing.T) {
	t.Parallel()

	fx := newTestRuntime(t)
	acked := 0
	ack := func(req socketmode.Request, payload ...interface{}) { acked++ }

	callback := slack.InteractionCallback{
		Type: slack.InteractionTypeBlockActions,
		User: slack.User{ID: "U1"},
		ActionCallback: slack.ActionCallbacks{
			BlockActions: []*slack.BlockAction{{
				ActionID:       modelSelectActionID,
				SelectedOption: slack.OptionBlockObject{Value: "openai/gpt-4o-mini"},
			}},
		},
	}
	fx.runtime.routeSocketEvent(context.Background(), socketmode.Event{
		Type:    socketmode.EventTypeInteractive,
		Request: &socketmode.Request{},
		Data:    callback,
	}, ack)
	if acked != 1 {
		t.Fatalf("acked = %d, want 1", acked)
	}
	waitFor(t, "preference update", func() bool { return fx.prefs.Get("U1") == "openai/gpt-4o-mini" })
}
