package chathistory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/slack-go/slack"
)

type fakeConversationAPI struct {
	repliesResults []repliesResult
	historyResults []historyResult
	joinErr        error

	repliesCalls      int
	historyCalls      int
	joinCalls         int
	lastRepliesParams *slack.GetConversationRepliesParameters
	lastHistoryParams *slack.GetConversationHistoryParameters
	lastJoinChannel   string
}

type repliesResult struct {
	msgs []slack.Message
	err  error
}

type historyResult struct {
	msgs []slack.Message
	err  error
}

func (f *fakeConversationAPI) GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error) {
	f.repliesCalls++
	f.lastRepliesParams = params
	if len(f.repliesResults) == 0 {
		return nil, false, "", nil
	}
	res := f.repliesResults[0]
	f.repliesResults = f.repliesResults[1:]
	return res.msgs, false, "", res.err
}

func (f *fakeConversationAPI) GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error) {
	f.historyCalls++
	f.lastHistoryParams = params
	if len(f.historyResults) == 0 {
		return &slack.GetConversationHistoryResponse{}, nil
	}
	res := f.historyResults[0]
	f.historyResults = f.historyResults[1:]
	if res.err != nil {
		return nil, res.err
	}
	return &slack.GetConversationHistoryResponse{Messages: res.msgs}, nil
}

func (f *fakeConversationAPI) JoinConversationContext(ctx context.Context, channelID string) (*slack.Channel, string, []string, error) {
	f.joinCalls++
	f.lastJoinChannel = channelID
	return nil, "", nil, f.joinErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func userMsg(user, text, ts string) slack.Message {
	return slack.Message{Msg: slack.Msg{User: user, Text: text, Timestamp: ts}}
}

func TestThreadRepliesMapsAndFilters(t *testing.T) {
	t.Parallel()

	api := &fakeConversationAPI{
		repliesResults: []repliesResult{{msgs: []slack.Message{
			userMsg("U1", "first question", "1.1"),
			userMsg("UBOT", "first answer", "1.2"),
			userMsg("U1", "", "1.3"),
			{Msg: slack.Msg{Text: "no sender", Timestamp: "1.4"}},
			{Msg: slack.Msg{BotID: "B9", Text: "other bot", Timestamp: "1.5"}},
			userMsg("U1", "trigger", "1.6"),
		}}},
	}
	f := NewFetcher(api, "UBOT", discardLogger())

	got, err := f.ThreadReplies(context.Background(), "C1", "1.1", 10, "1.6")
	if err != nil {
		t.Fatalf("ThreadReplies() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3 (%#v)", len(got), got)
	}
	if got[0].Role != RoleUser || got[0].Content != "first question" {
		t.Fatalf("got[0] = %+v", got[0])
	}
	if got[1].Role != RoleAssistant || got[1].UserID != "UBOT" {
		t.Fatalf("got[1] = %+v, want assistant role for bot user", got[1])
	}
	if got[2].Role != RoleUser || got[2].BotID != "B9" {
		t.Fatalf("got[2] = %+v, want foreign bot kept as user", got[2])
	}
	for _, m := range got {
		if m.TS == "1.6" {
			t.Fatalf("triggering message should be excluded: %#v", got)
		}
	}
	if api.lastRepliesParams.Limit != 10 || api.lastRepliesParams.ChannelID != "C1" {
		t.Fatalf("params = %+v", api.lastRepliesParams)
	}
}

func TestThreadRepliesJoinAndRetryOnce(t *testing.T) {
	t.Parallel()

	api := &fakeConversationAPI{
		repliesResults: []repliesResult{
			{err: slack.SlackErrorResponse{Err: "not_in_channel"}},
			{msgs: []slack.Message{userMsg("U1", "hello", "2.1")}},
		},
	}
	f := NewFetcher(api, "UBOT", discardLogger())

	got, err := f.ThreadReplies(context.Background(), "C1", "2.0", 0, "")
	if err != nil {
		t.Fatalf("ThreadReplies() error = %v", err)
	}
	if api.joinCalls != 1 {
		t.Fatalf("joinCalls = %d, want 1", api.joinCalls)
	}
	if api.repliesCalls != 2 {
		t.Fatalf("repliesCalls = %d, want 2", api.repliesCalls)
	}
	if api.lastJoinChannel != "C1" {
		t.Fatalf("join channel = %q, want C1", api.lastJoinChannel)
	}
	if len(got) != 1 || got[0].Content != "hello" {
		t.Fatalf("got = %#v, want retried history", got)
	}
	if api.lastRepliesParams.Limit != DefaultLimit {
		t.Fatalf("limit = %d, want default %d", api.lastRepliesParams.Limit, DefaultLimit)
	}
}

func TestThreadRepliesJoinFailureSurfaces(t *testing.T) {
	t.Parallel()

	api := &fakeConversationAPI{
		repliesResults: []repliesResult{{err: slack.SlackErrorResponse{Err: "not_in_channel"}}},
		joinErr:        errors.New("missing_scope"),
	}
	f := NewFetcher(api, "UBOT", discardLogger())

	if _, err := f.ThreadReplies(context.Background(), "C1", "2.0", 0, ""); err == nil {
		t.Fatalf("ThreadReplies() error = nil, want join failure")
	}
	if api.repliesCalls != 1 {
		t.Fatalf("repliesCalls = %d, want 1 (no retry after failed join)", api.repliesCalls)
	}
}

func TestThreadRepliesSecondFailureSurfaces(t *testing.T) {
	t.Parallel()

	api := &fakeConversationAPI{
		repliesResults: []repliesResult{
			{err: slack.SlackErrorResponse{Err: "not_in_channel"}},
			{err: errors.New("internal_error")},
		},
	}
	f := NewFetcher(api, "UBOT", discardLogger())

	if _, err := f.ThreadReplies(context.Background(), "C1", "2.0", 0, ""); err == nil {
		t.Fatalf("ThreadReplies() error = nil, want surfaced retry failure")
	}
	if api.joinCalls != 1 {
		t.Fatalf("joinCalls = %d, want exactly 1", api.joinCalls)
	}
	if api.repliesCalls != 2 {
		t.Fatalf("repliesCalls = %d, want 2 (retry exactly once)", api.repliesCalls)
	}
}

func TestThreadRepliesOtherFailureYieldsEmpty(t *testing.T) {
	t.Parallel()

	api := &fakeConversationAPI{
		repliesResults: []repliesResult{{err: errors.New("ratelimited")}},
	}
	f := NewFetcher(api, "UBOT", discardLogger())

	got, err := f.ThreadReplies(context.Background(), "C1", "2.0", 0, "")
	if err != nil {
		t.Fatalf("ThreadReplies() error = %v, want logged-and-empty", err)
	}
	if len(got) != 0 {
		t.Fatalf("got = %#v, want empty", got)
	}
	if api.joinCalls != 0 {
		t.Fatalf("joinCalls = %d, want 0", api.joinCalls)
	}
}

func TestThreadRepliesValidatesInput(t *testing.T) {
	t.Parallel()

	f := NewFetcher(&fakeConversationAPI{}, "UBOT", discardLogger())
	if _, err := f.ThreadReplies(context.Background(), "", "1.1", 0, ""); err == nil {
		t.Fatalf("expected error for missing channel id")
	}
	if _, err := f.ThreadReplies(context.Background(), "C1", "", 0, ""); err == nil {
		t.Fatalf("expected error for missing thread ts")
	}
}

func TestChannelHistoryOldestFirst(t *testing.T) {
	t.Parallel()

	api := &fakeConversationAPI{
		historyResults: []historyResult{{msgs: []slack.Message{
			userMsg("U2", "newest", "3.3"),
			userMsg("U1", "middle", "3.2"),
			userMsg("U1", "oldest", "3.1"),
		}}},
	}
	f := NewFetcher(api, "UBOT", discardLogger())

	got, err := f.ChannelHistory(context.Background(), "C9", 25)
	if err != nil {
		t.Fatalf("ChannelHistory() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3", len(got))
	}
	if got[0].Content != "oldest" || got[2].Content != "newest" {
		t.Fatalf("got order = %q, %q, %q, want oldest first", got[0].Content, got[1].Content, got[2].Content)
	}
	if api.lastHistoryParams.Limit != 25 || api.lastHistoryParams.ChannelID != "C9" {
		t.Fatalf("params = %+v", api.lastHistoryParams)
	}
}
