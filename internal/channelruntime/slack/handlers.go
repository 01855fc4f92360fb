package slack

import (
	"context"
	"strings"

	"github.com/slack-go/slack"

	"github.com/quailyquaily/misterecho/internal/chathistory"
)

// Mention replies are not wired up yet; the handler answers with a fixed
// notice instead. Flip this once the mention flow should reuse the thread
// completion path.
var mentionRepliesEnabled = false

const (
	welcomeText            = "Hi, how can I help you today?"
	mentionUnavailableText = "Sorry, mention replies aren't available yet. Send me a direct message instead."
)

func (r *Runtime) handleMessage(ctx context.Context, ev routedEvent) {
	msg := ev.Message
	if msg == nil {
		return
	}
	anchor := msg.threadAnchor()

	if isGreeting(msg.Text) {
		if err := r.postText(ctx, msg.ChannelID, anchor, "Hey there <@"+msg.UserID+">!"); err != nil {
			r.logger.Warn("slack_post_error", "channel_id", msg.ChannelID, "error", err.Error())
		}
		return
	}
	if anchor == "" {
		// Top-level channel chatter is none of our business until someone
		// pulls the bot into a thread.
		r.logger.Debug("slack_message_without_anchor", "channel_id", msg.ChannelID)
		return
	}
	if isChannelSummaryRequest(msg.Text) {
		r.runChannelSummary(ctx, msg)
		return
	}
	if msg.ChannelType != "im" {
		window, err := r.history.ThreadReplies(ctx, msg.ChannelID, anchor, r.cfg.HistoryLimit, msg.TS)
		if err != nil {
			r.logger.Warn("slack_involvement_fetch_error", "channel_id", msg.ChannelID, "thread_ts", anchor, "error", err.Error())
			return
		}
		recent := chathistory.LastN(window, r.cfg.InvolvementWindow)
		if !chathistory.InvolvesBot(recent, r.cfg.BotUserID) {
			r.logger.Debug("slack_message_not_involved", "channel_id", msg.ChannelID, "thread_ts", anchor)
			return
		}
	}

	r.dispatchCompletion(ctx, completionInput{
		ChannelID: msg.ChannelID,
		ThreadTS:  anchor,
		UserID:    msg.UserID,
		Text:      msg.Text,
		ExcludeTS: msg.TS,
		SetStatus: msg.ChannelType == "im",
	})
}

func (r *Runtime) handleMention(ctx context.Context, ev routedEvent) {
	m := ev.Mention
	if m == nil {
		return
	}
	anchor := m.ThreadTS
	if anchor == "" {
		anchor = m.TS
	}
	if !mentionRepliesEnabled {
		if err := r.postText(ctx, m.ChannelID, anchor, mentionUnavailableText); err != nil {
			r.logger.Warn("slack_post_error", "channel_id", m.ChannelID, "error", err.Error())
		}
		return
	}
	text := stripBotMention(m.Text, r.cfg.BotUserID)
	if text == "" {
		r.logger.Debug("slack_mention_empty", "channel_id", m.ChannelID)
		return
	}
	r.dispatchCompletion(ctx, completionInput{
		ChannelID: m.ChannelID,
		ThreadTS:  anchor,
		UserID:    m.UserID,
		Text:      text,
		ExcludeTS: m.TS,
	})
}

func (r *Runtime) handleThreadStarted(ctx context.Context, ev routedEvent) {
	th := ev.Thread
	if th == nil {
		return
	}
	r.threads.Save(th.ChannelID, th.ThreadTS, th.Context)
	r.logger.Info("slack_assistant_thread_started", "channel_id", th.ChannelID, "thread_ts", th.ThreadTS)

	if err := r.postText(ctx, th.ChannelID, th.ThreadTS, welcomeText); err != nil {
		r.logger.Warn("slack_post_error", "channel_id", th.ChannelID, "error", err.Error())
	}
	params := slack.AssistantThreadsSetSuggestedPromptsParameters{
		Title:     "Try one of these to get started:",
		ChannelID: th.ChannelID,
		ThreadTS:  th.ThreadTS,
		Prompts: []slack.AssistantThreadsPrompt{
			{Title: "What can you do?", Message: "What can you do?"},
			{Title: "Summarize this channel", Message: "Summarize the recent activity in this channel."},
		},
	}
	if err := r.api.SetAssistantThreadsSuggestedPromptsContext(ctx, params); err != nil {
		r.logger.Warn("slack_suggested_prompts_error", "channel_id", th.ChannelID, "error", err.Error())
	}
}

func (r *Runtime) handleThreadContextChanged(ctx context.Context, ev routedEvent) {
	th := ev.Thread
	if th == nil {
		return
	}
	r.threads.Save(th.ChannelID, th.ThreadTS, th.Context)
	r.logger.Debug("slack_assistant_context_saved", "channel_id", th.ChannelID, "thread_ts", th.ThreadTS)
}

// setAssistantStatus drives the "is typing" indicator on assistant threads.
// Failures only get logged; the status line is cosmetic.
func (r *Runtime) setAssistantStatus(ctx context.Context, channelID, threadTS, status string) {
	err := r.api.SetAssistantThreadsStatusContext(ctx, slack.AssistantThreadsSetStatusParameters{
		ChannelID: channelID,
		ThreadTS:  threadTS,
		Status:    status,
	})
	if err != nil {
		r.logger.Debug("slack_assistant_status_error", "channel_id", channelID, "error", err.Error())
	}
}

func trimmedOr(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
