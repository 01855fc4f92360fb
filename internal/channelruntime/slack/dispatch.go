package slack

import (
	"context"
	"strings"

	"github.com/quailyquaily/misterecho/internal/chathistory"
	"github.com/quailyquaily/misterecho/internal/llminspect"
	"github.com/quailyquaily/misterecho/internal/mrkdwn"
	"github.com/quailyquaily/misterecho/internal/outputfmt"
	"github.com/quailyquaily/misterecho/llm"
)

const (
	errorReplyText    = "I'm sorry, I encountered an error processing this message. Please try again."
	noAnswerReplyText = "I'm sorry, I couldn't generate a response. Please try again."

	summaryNoContextText = "I couldn't tell which channel to summarize. Open the assistant from the channel you're interested in and ask again."
	summaryEmptyText     = "I couldn't find any recent messages to summarize in that channel."

	assistantTypingStatus = "is typing..."
)

var assistantSystemPrompt = strings.Join([]string{
	"You are Mister Echo, a helpful Slack assistant.",
	"Answer the latest user message directly and concisely.",
	"Use the earlier conversation for context when it helps.",
	"Write standard markdown; it is converted to Slack formatting before posting.",
	"If you do not know something, say so plainly instead of inventing details.",
}, " ")

var channelSummaryPrompt = strings.Join([]string{
	"You summarize Slack channel activity.",
	"The user message is a JSON object with a channel_messages array, oldest first.",
	"Write a short summary of the discussion covering the main topics, decisions, and open questions.",
	"Use markdown bullet points and keep it under 200 words.",
	"Do not invent content that is not in the transcript.",
}, " ")

type completionInput struct {
	ChannelID string
	ThreadTS  string
	UserID    string
	Text      string
	ExcludeTS string
	SetStatus bool
}

// dispatchCompletion runs the thread completion flow: collect thread history,
// call the model picked by the user, post the formatted answer back into the
// thread. Every failure past this point turns into the apology reply rather
// than silence.
func (r *Runtime) dispatchCompletion(ctx context.Context, in completionInput) {
	ctx = llminspect.WithModelScene(ctx, "slack.thread_completion")
	if in.SetStatus {
		r.setAssistantStatus(ctx, in.ChannelID, in.ThreadTS, assistantTypingStatus)
		defer r.setAssistantStatus(ctx, in.ChannelID, in.ThreadTS, "")
	}

	history, err := r.history.ThreadReplies(ctx, in.ChannelID, in.ThreadTS, r.cfg.HistoryLimit, in.ExcludeTS)
	if err != nil {
		r.logger.Warn("slack_history_fetch_error", "channel_id", in.ChannelID, "thread_ts", in.ThreadTS, "error", err.Error())
		r.postApology(ctx, in.ChannelID, in.ThreadTS)
		return
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: assistantSystemPrompt})
	for _, item := range history {
		content := strings.TrimSpace(item.Content)
		if content == "" {
			continue
		}
		messages = append(messages, llm.Message{Role: item.Role, Content: content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: in.Text})

	model := r.prefs.Get(in.UserID)
	result, err := r.llm.Chat(ctx, llm.Request{
		Model:     model,
		Messages:  messages,
		MaxTokens: r.cfg.MaxTokens,
	})
	if err != nil {
		r.logger.Warn("slack_completion_error", "channel_id", in.ChannelID, "model", model, "error", err.Error())
		r.postApology(ctx, in.ChannelID, in.ThreadTS)
		return
	}
	r.postReply(ctx, in.ChannelID, in.ThreadTS, result.Text)
}

// runChannelSummary answers "summarize this channel" requests. The target
// channel comes from the stored assistant thread context; messages typed
// inside a regular channel thread summarize that channel itself.
func (r *Runtime) runChannelSummary(ctx context.Context, msg *inboundMessage) {
	ctx = llminspect.WithModelScene(ctx, "slack.channel_summary")
	anchor := msg.threadAnchor()

	target := msg.ChannelID
	if tc, ok := r.threads.Get(msg.ChannelID, anchor); ok && strings.TrimSpace(tc.ChannelID) != "" {
		target = tc.ChannelID
	} else if msg.ChannelType == "im" {
		if err := r.postText(ctx, msg.ChannelID, anchor, summaryNoContextText); err != nil {
			r.logger.Warn("slack_post_error", "channel_id", msg.ChannelID, "error", err.Error())
		}
		return
	}

	if msg.ChannelType == "im" {
		r.setAssistantStatus(ctx, msg.ChannelID, anchor, assistantTypingStatus)
		defer r.setAssistantStatus(ctx, msg.ChannelID, anchor, "")
	}

	items, err := r.history.ChannelHistory(ctx, target, r.cfg.HistoryLimit)
	if err != nil {
		r.logger.Warn("slack_history_fetch_error", "channel_id", target, "error", err.Error())
		r.postApology(ctx, msg.ChannelID, anchor)
		return
	}
	if len(items) == 0 {
		if err := r.postText(ctx, msg.ChannelID, anchor, summaryEmptyText); err != nil {
			r.logger.Warn("slack_post_error", "channel_id", msg.ChannelID, "error", err.Error())
		}
		return
	}
	transcript, err := chathistory.RenderTranscript(items)
	if err != nil {
		r.logger.Warn("slack_transcript_render_error", "channel_id", target, "error", err.Error())
		r.postApology(ctx, msg.ChannelID, anchor)
		return
	}

	model := r.prefs.Get(msg.UserID)
	result, err := r.llm.Chat(ctx, llm.Request{
		Model: model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: channelSummaryPrompt},
			{Role: llm.RoleUser, Content: transcript},
		},
		MaxTokens: r.cfg.MaxTokens,
	})
	if err != nil {
		r.logger.Warn("slack_completion_error", "channel_id", msg.ChannelID, "model", model, "error", err.Error())
		r.postApology(ctx, msg.ChannelID, anchor)
		return
	}
	r.logger.Info("slack_channel_summary_done", "channel_id", target, "model", model)
	r.postReply(ctx, msg.ChannelID, anchor, result.Text)
}

// postReply formats model output for Slack and posts it. Posting failures are
// logged and swallowed; there is no second channel to report them on.
func (r *Runtime) postReply(ctx context.Context, channelID, threadTS, raw string) {
	reply := outputfmt.FormatReplyText(raw)
	if reply == "" {
		reply = noAnswerReplyText
	} else {
		reply = mrkdwn.FromMarkdown(reply)
	}
	if err := r.postText(ctx, channelID, threadTS, reply); err != nil {
		r.logger.Warn("slack_post_error", "channel_id", channelID, "error", err.Error())
	}
}

func (r *Runtime) postApology(ctx context.Context, channelID, threadTS string) {
	if err := r.postText(ctx, channelID, threadTS, errorReplyText); err != nil {
		r.logger.Warn("slack_post_error", "channel_id", channelID, "error", err.Error())
	}
}
