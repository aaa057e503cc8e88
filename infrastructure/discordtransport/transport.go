// Package discordtransport delivers poll messages through the Discord REST
// API.
package discordtransport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/CedricFinance/paulpoll/domain/entities"
	"github.com/CedricFinance/paulpoll/domain/i18n"
	"github.com/CedricFinance/paulpoll/domain/services"
	"github.com/bwmarrin/discordgo"
)

// MessageLimit is the longest content Discord accepts in a message.
const MessageLimit = 2000

// Session is the part of *discordgo.Session the transport uses.
type Session interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// Transport answers interactions it was told about with Track. Discord
// interactions must be answered within three seconds, so the pending ones
// are only kept in memory.
type Transport struct {
	session Session
	logger  *slog.Logger

	mu           sync.Mutex
	interactions map[string]*discordgo.Interaction
}

var _ services.Transport = (*Transport)(nil)

func New(session Session, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{session: session, logger: logger, interactions: map[string]*discordgo.Interaction{}}
}

// Track remembers an interaction until it is answered and returns the id to
// answer it with.
func (t *Transport) Track(interaction *discordgo.Interaction) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interactions[interaction.ID] = interaction
	return interaction.ID
}

func (t *Transport) take(id string) (*discordgo.Interaction, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	interaction, ok := t.interactions[id]
	delete(t.interactions, id)
	return interaction, ok
}

func (t *Transport) SendMessage(ctx context.Context, chatID string, msg services.Message) (entities.MessageHandle, error) {
	sent, err := t.session.ChannelMessageSendComplex(chatID, &discordgo.MessageSend{
		Content:    msg.Body,
		Components: Components(msg.Keyboard),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return entities.MessageHandle{}, Classify(err)
	}
	return entities.MessageHandle{ChatID: sent.ChannelID, MessageID: sent.ID}, nil
}

func (t *Transport) EditMessage(ctx context.Context, handle entities.MessageHandle, msg services.Message) error {
	channel, id, ok := handle.Resolve()
	if !ok {
		return services.NewTransportError(services.KindMessageInvalid, fmt.Errorf("cannot address %s", handle.Key()))
	}

	content := msg.Body
	components := Components(msg.Keyboard)
	edit := discordgo.NewMessageEdit(channel, id)
	edit.Content = &content
	edit.Components = &components

	_, err := t.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	return Classify(err)
}

func (t *Transport) DeleteMessage(ctx context.Context, chatID string, messageID string) error {
	return Classify(t.session.ChannelMessageDelete(chatID, messageID, discordgo.WithContext(ctx)))
}

// AnswerCallback acknowledges a component interaction, with an ephemeral
// message when text is set.
func (t *Transport) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	interaction, ok := t.take(callbackID)
	if !ok {
		return services.NewTransportError(services.KindMessageInvalid, fmt.Errorf("unknown interaction %q", callbackID))
	}

	response := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate}
	if text != "" {
		response = &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Content: text, Flags: discordgo.MessageFlagsEphemeral},
		}
	}
	return Classify(t.session.InteractionRespond(interaction, response, discordgo.WithContext(ctx)))
}

// AnswerInlineQuery replies to a command interaction with the results, each
// with a button that shares it in the channel.
func (t *Transport) AnswerInlineQuery(ctx context.Context, queryID string, results []services.InlineResult) error {
	interaction, ok := t.take(queryID)
	if !ok {
		return services.NewTransportError(services.KindMessageInvalid, fmt.Errorf("unknown interaction %q", queryID))
	}

	content := i18n.T(i18n.DefaultLocale, "command.no_results")
	var keyboard services.Keyboard
	if len(results) > 0 {
		content = ""
		for _, result := range results {
			content += "**" + result.Title + "**"
			if result.Description != "" {
				content += " " + result.Description
			}
			content += "\n"
			keyboard = append(keyboard, []services.Button{{Text: result.Title, Data: result.ID}})
		}
	}

	return Classify(t.session.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    truncate(content, MessageLimit),
			Components: Components(keyboard),
			Flags:      discordgo.MessageFlagsEphemeral,
		},
	}, discordgo.WithContext(ctx)))
}

func (t *Transport) OpenPrivateChat(ctx context.Context, userID string) (string, error) {
	channel, err := t.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", Classify(err)
	}
	if channel == nil {
		return "", services.NewTransportError(services.KindChatNotFound, errors.New("no channel returned"))
	}
	return channel.ID, nil
}

func (t *Transport) MessageLimit() int {
	return MessageLimit
}

func (t *Transport) MaxRows() int {
	return MaxRows
}
