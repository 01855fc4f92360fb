package slack

import (
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/quailyquaily/misterecho/internal/idempotency"
	"github.com/quailyquaily/misterecho/internal/threadctx"
)

type eventKind string

const (
	kindMessage              eventKind = "message"
	kindMention              eventKind = "app_mention"
	kindThreadStarted        eventKind = "assistant_thread_started"
	kindThreadContextChanged eventKind = "assistant_thread_context_changed"
	kindHomeOpened           eventKind = "app_home_opened"
	kindBlockActions         eventKind = "block_actions"
)

type inboundMessage struct {
	TeamID      string
	ChannelID   string
	ChannelType string
	UserID      string
	Text        string
	TS          string
	ThreadTS    string
}

// threadAnchor resolves the thread a reply belongs in. Plain DMs without a
// thread use the message itself as the anchor; top-level channel messages
// have none.
func (m *inboundMessage) threadAnchor() string {
	if m.ThreadTS != "" {
		return m.ThreadTS
	}
	if m.ChannelType == "im" {
		return m.TS
	}
	return ""
}

type inboundMention struct {
	ChannelID string
	UserID    string
	Text      string
	TS        string
	ThreadTS  string
}

type assistantThreadEvent struct {
	UserID    string
	ChannelID string
	ThreadTS  string
	Context   threadctx.Context
}

type homeOpenedEvent struct {
	UserID string
	Tab    string
}

type blockActionsEvent struct {
	UserID    string
	ChannelID string
	Actions   []*slack.BlockAction
}

// routedEvent is the tagged variant produced once at the router boundary.
// Exactly the payload field matching Kind is set.
type routedEvent struct {
	Kind    eventKind
	Message *inboundMessage
	Mention *inboundMention
	Thread  *assistantThreadEvent
	Home    *homeOpenedEvent
	Actions *blockActionsEvent
}

func (r *Runtime) decodeEventsAPI(apiEvent slackevents.EventsAPIEvent) (routedEvent, bool) {
	if apiEvent.Type != slackevents.CallbackEvent {
		r.logger.Debug("slack_event_ignored", "type", apiEvent.Type)
		return routedEvent{}, false
	}
	if !r.teamAllowed(apiEvent.TeamID) {
		r.logger.Debug("slack_event_team_not_allowed", "team_id", apiEvent.TeamID)
		return routedEvent{}, false
	}

	switch ev := apiEvent.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		return r.decodeMessage(apiEvent.TeamID, ev)
	case *slackevents.AppMentionEvent:
		return r.decodeMention(ev)
	case *slackevents.AssistantThreadStartedEvent:
		return r.decodeAssistantThread(kindThreadStarted, ev.AssistantThread)
	case *slackevents.AssistantThreadContextChangedEvent:
		return r.decodeAssistantThread(kindThreadContextChanged, ev.AssistantThread)
	case *slackevents.AppHomeOpenedEvent:
		if strings.TrimSpace(ev.User) == "" {
			return routedEvent{}, false
		}
		return routedEvent{
			Kind: kindHomeOpened,
			Home: &homeOpenedEvent{UserID: ev.User, Tab: ev.Tab},
		}, true
	default:
		// Includes workflow function invocations; nothing is bound to them.
		r.logger.Debug("slack_event_unsupported", "type", apiEvent.InnerEvent.Type)
		return routedEvent{}, false
	}
}

func (r *Runtime) decodeMessage(teamID string, ev *slackevents.MessageEvent) (routedEvent, bool) {
	if ev.BotID != "" || ev.User == "" || ev.User == r.cfg.BotUserID {
		return routedEvent{}, false
	}
	if ev.SubType != "" && ev.SubType != "thread_broadcast" {
		r.logger.Debug("slack_message_subtype_ignored", "subtype", ev.SubType)
		return routedEvent{}, false
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" || ev.Channel == "" || ev.TimeStamp == "" {
		return routedEvent{}, false
	}
	// Messages that embed the bot mention arrive again as app_mention;
	// that handler owns them.
	if strings.Contains(ev.Text, r.botMention()) {
		r.logger.Debug("slack_message_mention_delegated", "channel_id", ev.Channel, "ts", ev.TimeStamp)
		return routedEvent{}, false
	}
	if !r.channelAllowed(ev.Channel) {
		r.logger.Debug("slack_event_channel_not_allowed", "channel_id", ev.Channel)
		return routedEvent{}, false
	}
	if !r.seen.Observe(idempotency.EventKey(ev.Channel, ev.TimeStamp)) {
		r.logger.Debug("slack_event_duplicate", "channel_id", ev.Channel, "ts", ev.TimeStamp)
		return routedEvent{}, false
	}
	return routedEvent{
		Kind: kindMessage,
		Message: &inboundMessage{
			TeamID:      teamID,
			ChannelID:   ev.Channel,
			ChannelType: ev.ChannelType,
			UserID:      ev.User,
			Text:        text,
			TS:          ev.TimeStamp,
			ThreadTS:    ev.ThreadTimeStamp,
		},
	}, true
}

func (r *Runtime) decodeMention(ev *slackevents.AppMentionEvent) (routedEvent, bool) {
	if ev.User == "" || ev.User == r.cfg.BotUserID || ev.BotID != "" {
		return routedEvent{}, false
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" || ev.Channel == "" || ev.TimeStamp == "" {
		return routedEvent{}, false
	}
	if !r.channelAllowed(ev.Channel) {
		r.logger.Debug("slack_event_channel_not_allowed", "channel_id", ev.Channel)
		return routedEvent{}, false
	}
	if !r.seen.Observe(idempotency.EventKey(ev.Channel, ev.TimeStamp)) {
		r.logger.Debug("slack_event_duplicate", "channel_id", ev.Channel, "ts", ev.TimeStamp)
		return routedEvent{}, false
	}
	return routedEvent{
		Kind: kindMention,
		Mention: &inboundMention{
			ChannelID: ev.Channel,
			UserID:    ev.User,
			Text:      text,
			TS:        ev.TimeStamp,
			ThreadTS:  ev.ThreadTimeStamp,
		},
	}, true
}

func (r *Runtime) decodeAssistantThread(kind eventKind, at slackevents.AssistantThread) (routedEvent, bool) {
	if strings.TrimSpace(at.ChannelID) == "" || strings.TrimSpace(at.ThreadTimeStamp) == "" {
		return routedEvent{}, false
	}
	return routedEvent{
		Kind: kind,
		Thread: &assistantThreadEvent{
			UserID:    at.UserID,
			ChannelID: at.ChannelID,
			ThreadTS:  at.ThreadTimeStamp,
			Context: threadctx.Context{
				ChannelID:    at.Context.ChannelID,
				TeamID:       at.Context.TeamID,
				EnterpriseID: at.Context.EnterpriseID,
			},
		},
	}, true
}

func (r *Runtime) decodeInteraction(callback slack.InteractionCallback) (routedEvent, bool) {
	if callback.Type != slack.InteractionTypeBlockActions {
		r.logger.Debug("slack_interaction_ignored", "type", string(callback.Type))
		return routedEvent{}, false
	}
	if callback.User.ID == "" || len(callback.ActionCallback.BlockActions) == 0 {
		return routedEvent{}, false
	}
	return routedEvent{
		Kind: kindBlockActions,
		Actions: &blockActionsEvent{
			UserID:    callback.User.ID,
			ChannelID: callback.Channel.ID,
			Actions:   callback.ActionCallback.BlockActions,
		},
	}, true
}

func (r *Runtime) botMention() string {
	return "<@" + r.cfg.BotUserID + ">"
}

func (r *Runtime) teamAllowed(teamID string) bool {
	if len(r.allowTeams) == 0 {
		return true
	}
	_, ok := r.allowTeams[strings.TrimSpace(teamID)]
	return ok
}

func (r *Runtime) channelAllowed(channelID string) bool {
	if len(r.allowChannels) == 0 {
		return true
	}
	_, ok := r.allowChannels[strings.TrimSpace(channelID)]
	return ok
}

func toAllowlist(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out[v] = struct{}{}
	}
	return out
}

func isGreeting(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), "hello")
}

func isChannelSummaryRequest(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "summarize") && strings.Contains(lower, "channel")
}

func stripBotMention(text, botUserID string) string {
	mention := "<@" + botUserID + ">"
	return strings.TrimSpace(strings.ReplaceAll(text, mention, ""))
}
