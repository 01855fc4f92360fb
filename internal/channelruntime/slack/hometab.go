package slack

import (
	"context"
	"strings"

	"github.com/slack-go/slack"

	"github.com/quailyquaily/misterecho/internal/modelcatalog"
)

const (
	modelSelectActionID = "model_select"
	modelSelectBlockID  = "model_select_block"
)

const homeAboutText = "I reply in threads where I'm already involved, chat in DMs, " +
	"and summarize channels on request. Pick the model I should use for your replies below."

func (r *Runtime) handleHomeOpened(ctx context.Context, ev routedEvent) {
	home := ev.Home
	if home == nil || home.Tab != "home" {
		return
	}
	r.publishHome(ctx, home.UserID)
}

func (r *Runtime) publishHome(ctx context.Context, userID string) {
	view := buildHomeView(r.catalog, r.prefs.Get(userID))
	if _, err := r.api.PublishViewContext(ctx, userID, view, ""); err != nil {
		r.logger.Warn("slack_home_publish_error", "user_id", userID, "error", err.Error())
		return
	}
	r.logger.Debug("slack_home_published", "user_id", userID)
}

func (r *Runtime) handleBlockActions(ctx context.Context, ev routedEvent) {
	act := ev.Actions
	if act == nil {
		return
	}
	for _, action := range act.Actions {
		if action == nil || action.ActionID != modelSelectActionID {
			continue
		}
		model := strings.TrimSpace(action.SelectedOption.Value)
		if model == "" {
			model = strings.TrimSpace(action.Value)
		}
		if !r.catalog.Has(model) {
			r.logger.Warn("slack_model_select_invalid", "user_id", act.UserID, "value", model)
			continue
		}
		r.prefs.Set(act.UserID, model)
		r.logger.Info("slack_model_selected", "user_id", act.UserID, "model", model)
		r.confirmModelSelection(ctx, act, model)
		r.publishHome(ctx, act.UserID)
	}
}

// confirmModelSelection sends the ephemeral confirmation. Selections made from
// the App Home carry no channel, so the user's DM stands in.
func (r *Runtime) confirmModelSelection(ctx context.Context, act *blockActionsEvent, model string) {
	text := "Got it. Your replies will use *" + r.catalog.Label(model) + "* (`" + model + "`)."
	channelID := trimmedOr(act.ChannelID, act.UserID)
	if _, err := r.api.PostEphemeralContext(ctx, channelID, act.UserID, slack.MsgOptionText(text, false)); err != nil {
		r.logger.Warn("slack_ephemeral_error", "user_id", act.UserID, "error", err.Error())
	}
}

func buildHomeView(catalog *modelcatalog.Catalog, selected string) slack.HomeTabViewRequest {
	models := catalog.Models()
	options := make([]*slack.OptionBlockObject, 0, len(models))
	var initial *slack.OptionBlockObject
	for _, m := range models {
		option := slack.NewOptionBlockObject(
			m.ID,
			slack.NewTextBlockObject(slack.PlainTextType, m.Label, false, false),
			nil,
		)
		options = append(options, option)
		if m.ID == selected {
			initial = option
		}
	}
	selectElement := slack.NewOptionsSelectBlockElement(
		slack.OptTypeStatic,
		slack.NewTextBlockObject(slack.PlainTextType, "Select a model", false, false),
		modelSelectActionID,
		options...,
	)
	if initial != nil {
		selectElement.InitialOption = initial
	}

	section := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, "*Model*\nUsed for every reply to you. Current: `"+selected+"`", false, false),
		nil,
		slack.NewAccessory(selectElement),
	)
	section.BlockID = modelSelectBlockID

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "Mister Echo", false, false)),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, homeAboutText, false, false), nil, nil),
		slack.NewDividerBlock(),
		section,
		slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType, "Model selections are kept in memory and reset when the bot restarts.", false, false),
		),
	}
	return slack.HomeTabViewRequest{
		Type:   slack.VTHomeTab,
		Blocks: slack.Blocks{BlockSet: blocks},
	}
}
