// Package slacktransport delivers poll messages through the Slack Web API.
package slacktransport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/CedricFinance/paulpoll/domain/entities"
	"github.com/CedricFinance/paulpoll/domain/i18n"
	"github.com/CedricFinance/paulpoll/domain/services"
	"github.com/slack-go/slack"
)

// MessageLimit is the longest text a section block accepts.
const MessageLimit = 3000

// API is the part of *slack.Client the transport uses.
type API interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	DeleteMessageContext(ctx context.Context, channel, messageTimestamp string) (string, string, error)
	PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error)
	OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
}

type Transport struct {
	api    API
	logger *slog.Logger
}

var _ services.Transport = (*Transport)(nil)

func New(api API, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{api: api, logger: logger}
}

func NewFromToken(token string, logger *slog.Logger) *Transport {
	return New(slack.New(token), logger)
}

// InteractionID identifies the user and channel of an interaction. Slack
// cannot answer a button press with a toast, feedback is sent as an
// ephemeral message instead.
func InteractionID(channelID, userID string) string {
	return channelID + "/" + userID
}

func parseInteractionID(id string) (channelID string, userID string, err error) {
	channelID, userID, found := strings.Cut(id, "/")
	if !found || channelID == "" || userID == "" {
		return "", "", fmt.Errorf("%q is not an interaction id", id)
	}
	return channelID, userID, nil
}

func (t *Transport) SendMessage(ctx context.Context, chatID string, msg services.Message) (entities.MessageHandle, error) {
	channel, ts, err := t.api.PostMessageContext(ctx, chatID, MsgOptions(msg)...)
	if err != nil {
		return entities.MessageHandle{}, Classify(err)
	}
	return entities.MessageHandle{ChatID: channel, MessageID: ts}, nil
}

func (t *Transport) EditMessage(ctx context.Context, handle entities.MessageHandle, msg services.Message) error {
	channel, ts, ok := handle.Resolve()
	if !ok {
		return services.NewTransportError(services.KindMessageInvalid, fmt.Errorf("cannot address %s", handle.Key()))
	}
	_, _, _, err := t.api.UpdateMessageContext(ctx, channel, ts, MsgOptions(msg)...)
	return Classify(err)
}

func (t *Transport) DeleteMessage(ctx context.Context, chatID string, messageID string) error {
	_, _, err := t.api.DeleteMessageContext(ctx, chatID, messageID)
	return Classify(err)
}

func (t *Transport) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if text == "" {
		return nil
	}
	channel, user, err := parseInteractionID(callbackID)
	if err != nil {
		return services.NewTransportError(services.KindMessageInvalid, err)
	}
	_, err = t.api.PostEphemeralContext(ctx, channel, user, slack.MsgOptionText(text, false))
	return Classify(err)
}

// AnswerInlineQuery lists the results to the querying user, each with a
// button that shares it in the channel.
func (t *Transport) AnswerInlineQuery(ctx context.Context, queryID string, results []services.InlineResult) error {
	channel, user, err := parseInteractionID(queryID)
	if err != nil {
		return services.NewTransportError(services.KindMessageInvalid, err)
	}

	blocks := make([]slack.Block, 0, len(results))
	for _, result := range results {
		text := "*" + result.Title + "*"
		if result.Description != "" {
			text += "\n" + result.Description
		}
		label := i18n.T(i18n.DefaultLocale, "keyboard.share_here")
		button := slack.NewButtonBlockElement(result.ID, result.ID, slack.NewTextBlockObject(slack.PlainTextType, label, true, false))
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, text, false, false),
			nil,
			slack.NewAccessory(button),
		))
	}
	if len(blocks) == 0 {
		return nil
	}

	_, err = t.api.PostEphemeralContext(ctx, channel, user, slack.MsgOptionBlocks(blocks...))
	return Classify(err)
}

func (t *Transport) OpenPrivateChat(ctx context.Context, userID string) (string, error) {
	channel, _, _, err := t.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{Users: []string{userID}})
	if err != nil {
		return "", Classify(err)
	}
	if channel == nil {
		return "", services.NewTransportError(services.KindChatNotFound, errors.New("no conversation returned"))
	}
	return channel.ID, nil
}

func (t *Transport) MessageLimit() int {
	return MessageLimit
}

func (t *Transport) MaxRows() int {
	return MaxRows
}
