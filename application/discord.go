package application

import (
	"context"
	"log/slog"
	"strings"

	"github.com/CedricFinance/paulpoll/domain/entities"
	"github.com/CedricFinance/paulpoll/domain/i18n"
	"github.com/CedricFinance/paulpoll/domain/services"
	"github.com/CedricFinance/paulpoll/infrastructure/discordtransport"
	"github.com/bwmarrin/discordgo"
)

const (
	CommandPoll       = "poll"
	commandTextOption = "text"
)

var pollCommand = &discordgo.ApplicationCommand{
	Name:        CommandPoll,
	Description: "Create, list and share polls",
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        commandTextOption,
			Description: "Options, question and choices, or a command such as help, list or share",
			Required:    false,
		},
	},
}

type CommandRegistrar interface {
	ApplicationCommandCreate(appID string, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
}

// RegisterCommands registers /poll for a guild, or globally when guildID is
// empty.
func RegisterCommands(s CommandRegistrar, appID string, guildID string) error {
	_, err := s.ApplicationCommandCreate(appID, guildID, pollCommand)
	return err
}

type DiscordHandler struct {
	Bot       *Bot
	Transport *discordtransport.Transport
	Logger    *slog.Logger
}

func NewDiscordHandler(bot *Bot, transport *discordtransport.Transport, logger *slog.Logger) *DiscordHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscordHandler{Bot: bot, Transport: transport, Logger: logger}
}

// OnInteraction is registered with Session.AddHandler.
func (h *DiscordHandler) OnInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := h.Handle(context.Background(), i.Interaction); err != nil {
		h.Logger.Error("cannot handle discord interaction", "interaction_id", i.ID, "error", err)
	}
}

func (h *DiscordHandler) Handle(ctx context.Context, i *discordgo.Interaction) error {
	user := h.Bot.withLocale(interactionUser(i))

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		if data.Name != CommandPoll {
			return nil
		}
		var text string
		for _, option := range data.Options {
			if option.Name == commandTextOption {
				text = option.StringValue()
			}
		}

		id := h.Transport.Track(i)
		reply, err := h.Bot.Command(ctx, CommandRequest{User: user, ChatID: i.ChannelID, InteractionID: id, Text: text})
		if err != nil {
			h.Logger.Error("poll command failed", "user_id", user.ID, "error", err)
			reply = i18n.T(user.Locale, "callback.error")
		}
		if reply == "" {
			reply = i18n.T(user.Locale, "command.done")
		}
		err = h.Transport.AnswerCallback(ctx, id, reply)
		if services.KindOf(err) == services.KindMessageInvalid {
			// The command answered the interaction itself.
			return nil
		}
		return err

	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		return h.Bot.HandleCallback(ctx, CallbackRequest{
			ID:     h.Transport.Track(i),
			User:   user,
			Data:   data.CustomID,
			Origin: componentOrigin(i),
			ChatID: i.ChannelID,
		})
	}
	return nil
}

func interactionUser(i *discordgo.Interaction) entities.User {
	var u *discordgo.User
	switch {
	case i.Member != nil && i.Member.User != nil:
		u = i.Member.User
	case i.User != nil:
		u = i.User
	default:
		return entities.User{}
	}

	locale, _, _ := strings.Cut(string(i.Locale), "-")
	name := u.GlobalName
	if name == "" {
		name = u.Username
	}
	return entities.User{ID: u.ID, Name: name, Locale: locale}
}

// componentOrigin addresses the message of a pressed button, nil for
// ephemeral messages which cannot be edited later.
func componentOrigin(i *discordgo.Interaction) *entities.MessageHandle {
	if i.Message == nil || i.Message.Flags&discordgo.MessageFlagsEphemeral != 0 {
		return nil
	}
	return &entities.MessageHandle{ChatID: i.ChannelID, MessageID: i.Message.ID}
}
