package application

import (
	"log/slog"
	"net/http"

	"github.com/CedricFinance/paulpoll/domain/entities"
	"github.com/CedricFinance/paulpoll/infrastructure/slacktransport"
	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"
)

// Server exposes the Slack webhooks.
type Server struct {
	Bot *Bot
	// SigningSecret verifies Slack requests. Verification is skipped when
	// it is empty, for local development only.
	SigningSecret string
	Logger        *slog.Logger
}

func NewServer(bot *Bot, signingSecret string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Bot: bot, SigningSecret: signingSecret, Logger: logger}
}

func (s *Server) Router() *gin.Engine {
	g := gin.New()
	g.Use(gin.Logger(), gin.Recovery())
	g.GET("/healthz", s.HandleHealth)
	g.POST("/slack/commands", s.HandleSlashCommand)
	g.POST("/slack/actions", s.HandleAction)
	return g
}

func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) parseSlashCommand(r *http.Request) (slack.SlashCommand, error) {
	if s.SigningSecret == "" {
		return ParseSlashCommand(r)
	}
	return SecureParseSlashCommand(r, s.SigningSecret)
}

func (s *Server) parseInteraction(r *http.Request) (slack.InteractionCallback, error) {
	if s.SigningSecret == "" {
		return ParseInteraction(r)
	}
	return SecureParseInteraction(r, s.SigningSecret)
}

func (s *Server) HandleSlashCommand(c *gin.Context) {
	slashCommand, err := s.parseSlashCommand(c.Request)
	if err != nil {
		s.Logger.Warn("rejected slash command", "error", err)
		c.Status(http.StatusUnauthorized)
		return
	}

	user := s.Bot.withLocale(entities.User{ID: slashCommand.UserID, Name: slashCommand.UserName})
	reply, err := s.Bot.Command(c.Request.Context(), CommandRequest{
		User:          user,
		ChatID:        slashCommand.ChannelID,
		InteractionID: slacktransport.InteractionID(slashCommand.ChannelID, slashCommand.UserID),
		Text:          slashCommand.Text,
	})
	if err != nil {
		s.Logger.Error("slash command failed", "user_id", user.ID, "error", err)
		WriteError(c.Writer, user.Locale)
		return
	}
	if reply == "" {
		c.Status(http.StatusOK)
		return
	}
	WriteMessage(c.Writer, reply)
}

func (s *Server) HandleAction(c *gin.Context) {
	callback, err := s.parseInteraction(c.Request)
	if err != nil {
		s.Logger.Warn("rejected interaction", "error", err)
		c.Status(http.StatusUnauthorized)
		return
	}

	data, ok := pressedButton(callback)
	if !ok {
		c.Status(http.StatusOK)
		return
	}

	err = s.Bot.HandleCallback(c.Request.Context(), CallbackRequest{
		ID:     slacktransport.InteractionID(callback.Channel.ID, callback.User.ID),
		User:   entities.User{ID: callback.User.ID, Name: callback.User.Name},
		Data:   data,
		Origin: originOf(callback),
		ChatID: callback.Channel.ID,
	})
	if err != nil {
		// Already answered and logged.
		s.Logger.Debug("interaction failed", "user_id", callback.User.ID)
	}
	c.Status(http.StatusOK)
}
