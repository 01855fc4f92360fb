package chathistory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
)

const DefaultLimit = 50

// ConversationAPI is the slice of *slack.Client the fetcher depends on.
type ConversationAPI interface {
	GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	JoinConversationContext(ctx context.Context, channelID string) (*slack.Channel, string, []string, error)
}

type Fetcher struct {
	api       ConversationAPI
	botUserID string
	logger    *slog.Logger
}

func NewFetcher(api ConversationAPI, botUserID string, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		api:       api,
		botUserID: strings.TrimSpace(botUserID),
		logger:    logger,
	}
}

// ThreadReplies returns up to limit usable thread messages, oldest first,
// excluding the entry at excludeTS (normally the triggering message). When
// Slack reports the bot is not a member, the fetcher joins the conversation
// and retries exactly once; a join failure or a failed retry surfaces as an
// error. Any other fetch failure is logged and yields an empty result.
func (f *Fetcher) ThreadReplies(ctx context.Context, channelID, threadTS string, limit int, excludeTS string) ([]Message, error) {
	channelID = strings.TrimSpace(channelID)
	threadTS = strings.TrimSpace(threadTS)
	if channelID == "" || threadTS == "" {
		return nil, fmt.Errorf("channel id and thread ts are required")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	msgs, err := f.fetchWithJoin(ctx, channelID, func(c context.Context) ([]slack.Message, error) {
		replies, _, _, replyErr := f.api.GetConversationRepliesContext(c, &slack.GetConversationRepliesParameters{
			ChannelID: channelID,
			Timestamp: threadTS,
			Limit:     limit,
		})
		return replies, replyErr
	})
	if err != nil {
		return nil, err
	}
	return f.usable(msgs, excludeTS), nil
}

// ChannelHistory returns up to limit usable recent channel messages, oldest
// first. Membership recovery behaves as in ThreadReplies.
func (f *Fetcher) ChannelHistory(ctx context.Context, channelID string, limit int) ([]Message, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, fmt.Errorf("channel id is required")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	msgs, err := f.fetchWithJoin(ctx, channelID, func(c context.Context) ([]slack.Message, error) {
		resp, histErr := f.api.GetConversationHistoryContext(c, &slack.GetConversationHistoryParameters{
			ChannelID: channelID,
			Limit:     limit,
		})
		if histErr != nil {
			return nil, histErr
		}
		return resp.Messages, nil
	})
	if err != nil {
		return nil, err
	}
	// conversations.history returns newest first.
	reverse(msgs)
	return f.usable(msgs, ""), nil
}

func (f *Fetcher) fetchWithJoin(ctx context.Context, channelID string, fetch func(context.Context) ([]slack.Message, error)) ([]slack.Message, error) {
	msgs, err := fetch(ctx)
	if err == nil {
		return msgs, nil
	}
	if !isNotInChannel(err) {
		f.logger.Warn("slack_history_fetch_error", "channel_id", channelID, "error", err.Error())
		return nil, nil
	}
	if _, _, _, joinErr := f.api.JoinConversationContext(ctx, channelID); joinErr != nil {
		return nil, fmt.Errorf("join conversation %s: %w", channelID, joinErr)
	}
	f.logger.Info("slack_conversation_joined", "channel_id", channelID)
	msgs, err = fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch history after join: %w", err)
	}
	return msgs, nil
}

func (f *Fetcher) usable(msgs []slack.Message, excludeTS string) []Message {
	out := make([]Message, 0, len(msgs))
	for _, msg := range msgs {
		if excludeTS != "" && msg.Timestamp == excludeTS {
			continue
		}
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			continue
		}
		if msg.User == "" && msg.BotID == "" {
			continue
		}
		role := RoleUser
		if f.botUserID != "" && msg.User == f.botUserID {
			role = RoleAssistant
		}
		out = append(out, Message{
			Role:    role,
			Content: text,
			UserID:  msg.User,
			BotID:   msg.BotID,
			TS:      msg.Timestamp,
		})
	}
	return out
}

func isNotInChannel(err error) bool {
	if err == nil {
		return false
	}
	var serr slack.SlackErrorResponse
	if errors.As(err, &serr) {
		return serr.Err == "not_in_channel"
	}
	return strings.Contains(err.Error(), "not_in_channel")
}

func reverse(msgs []slack.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
