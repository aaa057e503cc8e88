package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CedricFinance/paulpoll/config"
	"github.com/CedricFinance/paulpoll/database"
	"github.com/CedricFinance/paulpoll/domain/mirrors"
	"github.com/CedricFinance/paulpoll/domain/services"
	"github.com/CedricFinance/paulpoll/domain/updates"
	"github.com/CedricFinance/paulpoll/infrastructure/bancache"
	"github.com/CedricFinance/paulpoll/infrastructure/discordtransport"
	"github.com/CedricFinance/paulpoll/infrastructure/repository"
	"github.com/CedricFinance/paulpoll/infrastructure/slacktransport"
	"github.com/CedricFinance/paulpoll/worker"
	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
)

// App is the fully wired bot.
type App struct {
	Bot       *Bot
	Scheduler *updates.Scheduler
	Worker    *worker.Worker
	Server    *Server
	// Discord and Session are only set for the discord transport.
	Discord *DiscordHandler
	Session *discordgo.Session

	guildID string
	logger  *slog.Logger
	closers []func() error
}

// Components are the parts of an App that do not depend on the platform.
type Components struct {
	Repository services.Repository
	Transport  services.Transport
	Bans       services.BanCache
	Clock      services.Clock
	Logger     *slog.Logger
}

// Build connects to the store and the chat platform selected by cfg.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, dialect, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	closers := []func() error{db.Close}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	parts := Components{
		Repository: repository.New(db, dialect),
		Clock:      services.SystemClock{},
		Logger:     logger,
	}

	var session *discordgo.Session
	switch cfg.GetTransport() {
	case config.TransportDiscord:
		session, err = discordgo.New("Bot " + cfg.GetDiscordToken())
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("discord: %w", err)
		}
		parts.Transport = discordtransport.New(session, logger)
	default:
		parts.Transport = slacktransport.NewFromToken(cfg.GetSlackToken(), logger)
	}

	if url := cfg.GetRedisURL(); url != "" {
		cache, client, err := bancache.OpenRedis(url)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, client.Close)
		parts.Bans = cache
	} else {
		parts.Bans = bancache.NewMemory()
	}

	app := New(parts, cfg)
	app.closers = closers
	if session != nil {
		app.Session = session
		app.Discord = NewDiscordHandler(app.Bot, parts.Transport.(*discordtransport.Transport), logger)
		session.AddHandler(app.Discord.OnInteraction)
	}
	return app, nil
}

// New wires the bot around already connected components.
func New(parts Components, cfg *config.Config) *App {
	logger := parts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := mirrors.NewRegistry(parts.Repository, parts.Clock, logger)
	scheduler := updates.NewScheduler(parts.Repository, registry, parts.Transport, parts.Clock, logger, updates.Config{
		RetryMargin:       cfg.GetRetryMargin(),
		InvalidRetryDelay: cfg.GetInvalidRetryDelay(),
		TransportTimeout:  cfg.GetTransportTimeout(),
		BotURL:            cfg.GetBotURL(),
	})
	bot := NewBot(parts.Repository, registry, scheduler, parts.Transport, parts.Bans, parts.Clock, logger, BotConfig{
		DailyVoteCap:  cfg.GetDailyVoteCap(),
		DefaultLocale: cfg.GetDefaultLocale(),
	})
	notifier := worker.NewNotifier(parts.Repository, scheduler, parts.Transport, parts.Clock, logger)
	jobs := worker.Jobs(scheduler, notifier, worker.Config{
		DrainInterval:        cfg.GetDrainInterval(),
		PruneInterval:        cfg.GetPruneInterval(),
		TicketMaxAge:         cfg.GetTicketMaxAge(),
		NotificationInterval: cfg.GetNotificationInterval(),
	})

	return &App{
		Bot:       bot,
		Scheduler: scheduler,
		Worker:    worker.New(parts.Clock, logger, jobs...),
		Server:    NewServer(bot, cfg.GetSlackSigningSecret(), logger),
		guildID:   cfg.GetDiscordGuildID(),
		logger:    logger,
	}
}

func (a *App) Router() *gin.Engine {
	return a.Server.Router()
}

// OpenDiscord connects to the gateway and registers /poll. It does nothing
// for other transports.
func (a *App) OpenDiscord() error {
	if a.Session == nil {
		return nil
	}
	a.Session.Identify.Intents = discordgo.IntentsGuilds
	if err := a.Session.Open(); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	a.closers = append(a.closers, a.Session.Close)

	if err := RegisterCommands(a.Session, a.Session.State.User.ID, a.guildID); err != nil {
		return fmt.Errorf("discord: register commands: %w", err)
	}
	a.logger.Info("discord session opened", "guild_id", a.guildID)
	return nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenStore connects to the configured database and migrates its schema.
func OpenStore(ctx context.Context, cfg *config.Config) (*sql.DB, database.Dialect, error) {
	dialect, err := database.ParseDialect(cfg.GetDBDriver())
	if err != nil {
		return nil, "", err
	}
	dsn := cfg.GetDBDSN()
	if dsn == "" {
		dsn = database.DSN(dialect, cfg.GetDBUsername(), cfg.GetDBPassword(), cfg.GetDBName(), cfg.GetDBHost())
	}
	db, err := database.Open(dialect, dsn)
	if err != nil {
		return nil, "", err
	}
	if err := database.Migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("migrate: %w", err)
	}
	return db, dialect, nil
}
