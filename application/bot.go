package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/CedricFinance/paulpoll/domain/entities"
	"github.com/CedricFinance/paulpoll/domain/i18n"
	"github.com/CedricFinance/paulpoll/domain/mirrors"
	"github.com/CedricFinance/paulpoll/domain/services"
	"github.com/CedricFinance/paulpoll/domain/updates"
	"github.com/CedricFinance/paulpoll/domain/voting"
)

var ErrDueDateInPast = errors.New("the due date must be in the future")

const inlineResultsLimit = 10

type BotConfig struct {
	// DailyVoteCap bans a user for the rest of the day once their votes
	// exceed it. Zero disables the ban.
	DailyVoteCap  int
	DefaultLocale string
}

// Bot holds the use cases shared by every chat platform.
type Bot struct {
	Repository services.Repository
	Resolver   *voting.Resolver
	Registry   *mirrors.Registry
	Scheduler  *updates.Scheduler
	Transport  services.Transport
	Bans       services.BanCache
	Clock      services.Clock
	Logger     *slog.Logger
	Config     BotConfig
}

func NewBot(repo services.Repository, registry *mirrors.Registry, scheduler *updates.Scheduler, transport services.Transport, bans services.BanCache, clock services.Clock, logger *slog.Logger, cfg BotConfig) *Bot {
	if clock == nil {
		clock = services.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = i18n.DefaultLocale
	}
	return &Bot{
		Repository: repo,
		Resolver:   voting.NewResolver(repo, clock, logger),
		Registry:   registry,
		Scheduler:  scheduler,
		Transport:  transport,
		Bans:       bans,
		Clock:      clock,
		Logger:     logger,
		Config:     cfg,
	}
}

func (b *Bot) withLocale(user entities.User) entities.User {
	if user.Locale == "" {
		user.Locale = b.Config.DefaultLocale
	}
	return user
}

// CreatePoll stores poll for owner and posts its admin mirror in the owner's
// private chat. When originChat is set, the poll is also shared there.
func (b *Bot) CreatePoll(ctx context.Context, owner entities.User, poll entities.Poll, originChat string) (entities.Poll, error) {
	owner = b.withLocale(owner)
	now := b.Clock.Now()

	poll.OwnerID = owner.ID
	poll.Created = true
	poll.CreatedAt = now
	if poll.Locale == "" || poll.Locale == i18n.DefaultLocale {
		poll.Locale = owner.Locale
	}
	if poll.DueDate != nil {
		if !poll.DueDate.After(now) {
			return entities.Poll{}, ErrDueDateInPast
		}
		poll.SetDueDate(*poll.DueDate, now)
	}

	err := b.Repository.WithTx(ctx, func(q services.Queries) error {
		if err := q.SaveUser(ctx, owner); err != nil {
			return err
		}
		if err := q.SavePoll(ctx, &poll); err != nil {
			return err
		}
		_, err := q.IncrementDailyStatistic(ctx, owner.ID, entities.Day(now), entities.StatisticCreatedPolls)
		return err
	})
	if err != nil {
		return entities.Poll{}, fmt.Errorf("save poll: %w", err)
	}
	b.Logger.Info("poll created", "poll_id", poll.ID, "owner_id", owner.ID, "mode", poll.Mode.String())

	chat, err := b.Transport.OpenPrivateChat(ctx, owner.ID)
	if err != nil {
		return poll, fmt.Errorf("open private chat: %w", err)
	}
	if err := b.post(ctx, poll.ID, entities.ReferenceAdmin, chat, owner.ID); err != nil {
		return poll, err
	}
	if originChat != "" && originChat != chat {
		if err := b.post(ctx, poll.ID, entities.ReferenceInline, originChat, ""); err != nil {
			return poll, err
		}
	}
	return poll, nil
}

// post sends a fresh mirror of kind into chatID and registers it.
func (b *Bot) post(ctx context.Context, pollID int64, kind entities.ReferenceKind, chatID string, userID string) error {
	_, msg, err := b.Scheduler.RenderFor(ctx, pollID, kind)
	if err != nil {
		return err
	}
	handle, err := b.Transport.SendMessage(ctx, chatID, msg)
	if err != nil {
		return fmt.Errorf("send %s mirror: %w", kind, err)
	}
	ref, err := b.Registry.Attach(ctx, pollID, kind, handle, userID)
	if err != nil {
		return err
	}
	_, err = b.Registry.RecordSuccess(ctx, ref, updates.Fingerprint(msg))
	return err
}

type CallbackRequest struct {
	// ID answers the interaction through Transport.AnswerCallback.
	ID   string
	User entities.User
	Data string
	// Origin is the mirror the button belongs to, nil when unknown.
	Origin *entities.MessageHandle
	ChatID string
}

// HandleCallback dispatches a button press and always answers it. Failures
// are answered with a generic message and returned.
func (b *Bot) HandleCallback(ctx context.Context, req CallbackRequest) error {
	req.User = b.withLocale(req.User)

	text, err := b.callback(ctx, req)
	if err != nil {
		b.Logger.Error("cannot handle callback", "user_id", req.User.ID, "data", req.Data, "error", err)
		text = i18n.T(req.User.Locale, "callback.error")
	}
	if answerErr := b.Transport.AnswerCallback(ctx, req.ID, text); answerErr != nil {
		b.Logger.Warn("cannot answer callback", "user_id", req.User.ID, "error", answerErr)
	}
	return err
}

func (b *Bot) callback(ctx context.Context, req CallbackRequest) (string, error) {
	day := entities.Day(b.Clock.Now())
	locale := req.User.Locale

	banned, err := b.Bans.IsBanned(ctx, req.User.ID, day)
	if err != nil {
		b.Logger.Warn("cannot read ban cache", "user_id", req.User.ID, "error", err)
	}
	if banned {
		return i18n.T(locale, "callback.banned"), nil
	}

	if err := b.Repository.SaveUser(ctx, req.User); err != nil {
		return "", err
	}
	stats, err := b.Repository.IncrementDailyStatistic(ctx, req.User.ID, day, entities.StatisticCallbacks)
	if err != nil {
		return "", err
	}
	if b.Config.DailyVoteCap > 0 && stats.Votes > b.Config.DailyVoteCap {
		if err := b.Bans.Ban(ctx, req.User.ID, day); err != nil {
			b.Logger.Warn("cannot ban user", "user_id", req.User.ID, "error", err)
		}
		b.Logger.Info("user banned for the day", "user_id", req.User.ID, "votes", stats.Votes)
		return i18n.T(locale, "callback.banned"), nil
	}

	cb, err := entities.ParseCallback(req.Data)
	if err != nil {
		return "", err
	}

	switch cb.Type {
	case entities.CallbackVote:
		return b.vote(ctx, req, cb)
	case entities.CallbackClose, entities.CallbackReopen, entities.CallbackDelete:
		return b.manage(ctx, req.User, cb)
	case entities.CallbackShare, entities.CallbackPickShare:
		return b.share(ctx, req.User, cb.Payload, req.ChatID, "callback.shared")
	case entities.CallbackSubscribe:
		return b.subscribe(ctx, req.User, cb.Payload, req.ChatID, "callback.subscribed")
	}
	return "", fmt.Errorf("callback type %d is not handled", cb.Type)
}

func (b *Bot) vote(ctx context.Context, req CallbackRequest, cb entities.Callback) (string, error) {
	result, err := b.Resolver.Vote(ctx, req.User, cb.Payload, cb.Action)
	if errors.Is(err, services.ErrNotFound) {
		return i18n.T(req.User.Locale, "poll.deleted"), nil
	}
	if err != nil {
		return "", err
	}
	if result.PollChanged {
		if err := b.Scheduler.Notify(ctx, result.PollID, req.Origin); err != nil {
			b.Logger.Error("cannot schedule poll update", "poll_id", result.PollID, "error", err)
		}
	}
	return result.Feedback, nil
}

// manage applies an owner-only action on a poll.
func (b *Bot) manage(ctx context.Context, user entities.User, cb entities.Callback) (string, error) {
	var feedback string
	changed := false

	err := b.Repository.WithTx(ctx, func(q services.Queries) error {
		feedback, changed = "", false

		poll, err := q.LockPoll(ctx, cb.Payload)
		if err != nil {
			return err
		}
		if poll.Deleted {
			return services.PollNotFound{ID: strconv.FormatInt(poll.ID, 10)}
		}
		if !poll.IsOwner(user.ID) {
			feedback = i18n.T(user.Locale, "callback.not_owner")
			return nil
		}

		switch cb.Type {
		case entities.CallbackClose:
			poll.Close()
			feedback = i18n.T(user.Locale, "callback.closed")
		case entities.CallbackReopen:
			if err := poll.Reopen(); err != nil {
				feedback = i18n.T(user.Locale, "command.reopen_hidden")
				return nil
			}
			if poll.DueDate != nil && poll.DueDate.After(b.Clock.Now()) {
				poll.SetDueDate(*poll.DueDate, b.Clock.Now())
			}
			feedback = i18n.T(user.Locale, "callback.reopened")
		case entities.CallbackDelete:
			poll.Deleted = true
			poll.NextNotification = nil
			feedback = i18n.T(user.Locale, "callback.deleted")
		}
		changed = true
		return q.UpdatePoll(ctx, poll)
	})
	if errors.Is(err, services.ErrNotFound) {
		return i18n.T(user.Locale, "poll.deleted"), nil
	}
	if err != nil {
		return "", err
	}

	if changed {
		if err := b.Scheduler.Notify(ctx, cb.Payload, nil); err != nil {
			b.Logger.Error("cannot schedule poll update", "poll_id", cb.Payload, "error", err)
		}
	}
	return feedback, nil
}

// ownedPoll loads a live poll of user.
func (b *Bot) ownedPoll(ctx context.Context, user entities.User, pollID int64) (entities.Poll, string, error) {
	poll, err := b.Repository.FindPollByID(ctx, pollID)
	if errors.Is(err, services.ErrNotFound) {
		return poll, i18n.T(user.Locale, "poll.deleted"), nil
	}
	if err != nil {
		return poll, "", err
	}
	if poll.Deleted {
		return poll, i18n.T(user.Locale, "poll.deleted"), nil
	}
	if !poll.IsOwner(user.ID) {
		return poll, i18n.T(user.Locale, "callback.not_owner"), nil
	}
	return poll, "", nil
}

// share posts an inline mirror of the poll into chatID.
func (b *Bot) share(ctx context.Context, user entities.User, pollID int64, chatID string, doneKey string) (string, error) {
	poll, refusal, err := b.ownedPoll(ctx, user, pollID)
	if err != nil || refusal != "" {
		return refusal, err
	}
	if err := b.post(ctx, poll.ID, entities.ReferenceInline, chatID, ""); err != nil {
		return "", err
	}
	return i18n.T(user.Locale, doneKey), nil
}

// subscribe reminds chatID of the due date of the poll.
func (b *Bot) subscribe(ctx context.Context, user entities.User, pollID int64, chatID string, doneKey string) (string, error) {
	poll, err := b.Repository.FindPollByID(ctx, pollID)
	if errors.Is(err, services.ErrNotFound) || (err == nil && poll.Deleted) {
		return i18n.T(user.Locale, "poll.deleted"), nil
	}
	if err != nil {
		return "", err
	}
	if poll.DueDate == nil || poll.Closed {
		return i18n.T(user.Locale, "command.no_due_date"), nil
	}

	notification := entities.Notification{PollID: poll.ID, ChatID: chatID, CreatedAt: b.Clock.Now()}
	err = b.Repository.SaveNotification(ctx, &notification)
	if err != nil && !errors.Is(err, services.ErrConflict) {
		return "", err
	}
	return i18n.T(user.Locale, doneKey), nil
}

type InlineQueryRequest struct {
	ID    string
	User  entities.User
	Query string
}

// InlineQuery answers with the polls of the user whose name matches the query.
func (b *Bot) InlineQuery(ctx context.Context, req InlineQueryRequest) error {
	polls, err := b.Repository.FindPollsByOwner(ctx, req.User.ID, strings.TrimSpace(req.Query), inlineResultsLimit)
	if err != nil {
		return err
	}

	results := make([]services.InlineResult, 0, len(polls))
	for _, poll := range polls {
		result, err := b.inlineResult(ctx, poll)
		if err != nil {
			return err
		}
		results = append(results, result)
	}
	return b.Transport.AnswerInlineQuery(ctx, req.ID, results)
}

func (b *Bot) inlineResult(ctx context.Context, poll entities.Poll) (services.InlineResult, error) {
	_, msg, err := b.Scheduler.RenderFor(ctx, poll.ID, entities.ReferenceInline)
	if err != nil {
		return services.InlineResult{}, err
	}
	description := poll.Description
	if description == "" {
		description = poll.Mode.String()
	}
	return services.InlineResult{
		ID:          entities.Callback{Type: entities.CallbackPickShare, Payload: poll.ID}.Encode(),
		Title:       poll.Name,
		Description: description,
		Message:     msg,
	}, nil
}

// ChosenInlineResult registers a message that the platform posted on behalf
// of the user from an inline result.
func (b *Bot) ChosenInlineResult(ctx context.Context, resultID string, handle entities.MessageHandle) error {
	cb, err := entities.ParseCallback(resultID)
	if err != nil {
		return err
	}
	if cb.Type != entities.CallbackPickShare {
		return fmt.Errorf("inline result %q does not share a poll", resultID)
	}

	if _, err := b.Registry.Attach(ctx, cb.Payload, entities.ReferenceInline, handle, ""); err != nil {
		return err
	}
	// The poll may have changed between the query and the choice.
	return b.Scheduler.Notify(ctx, cb.Payload, nil)
}

type StartRequest struct {
	User entities.User
	// InteractionID answers share lists, empty when the platform cannot.
	InteractionID string
	Payload       string
}

// Start handles the payload of a deep link. The returned text, if any, is
// the reply to show the user.
func (b *Bot) Start(ctx context.Context, req StartRequest) (string, error) {
	req.User = b.withLocale(req.User)
	locale := req.User.Locale

	link, err := entities.ParseDeepLink(req.Payload)
	if err != nil {
		return i18n.T(locale, "command.invalid_link"), nil
	}
	poll, err := b.Repository.FindPollByUUID(ctx, link.UUID)
	if errors.Is(err, services.ErrNotFound) || (err == nil && poll.Deleted) {
		return i18n.T(locale, "command.invalid_link"), nil
	}
	if err != nil {
		return "", err
	}
	if err := b.Repository.SaveUser(ctx, req.User); err != nil {
		return "", err
	}

	switch link.Action {
	case entities.DeepLinkVote:
		chat, err := b.Transport.OpenPrivateChat(ctx, req.User.ID)
		if err != nil {
			return "", err
		}
		return "", b.post(ctx, poll.ID, entities.ReferencePrivateVote, chat, req.User.ID)

	case entities.DeepLinkShowResults:
		if poll.ResultsHidden() {
			return i18n.T(poll.Locale, "poll.hidden"), nil
		}
		_, msg, err := b.Scheduler.RenderFor(ctx, poll.ID, entities.ReferenceInline)
		if err != nil {
			return "", err
		}
		chat, err := b.Transport.OpenPrivateChat(ctx, req.User.ID)
		if err != nil {
			return "", err
		}
		_, err = b.Transport.SendMessage(ctx, chat, services.Message{Body: msg.Body})
		return "", err

	case entities.DeepLinkSharePoll:
		if req.InteractionID == "" || !poll.IsOwner(req.User.ID) {
			return i18n.T(locale, "command.share_hint", poll.ID, poll.Name), nil
		}
		result, err := b.inlineResult(ctx, poll)
		if err != nil {
			return "", err
		}
		return "", b.Transport.AnswerInlineQuery(ctx, req.InteractionID, []services.InlineResult{result})

	case entities.DeepLinkNewOption:
		if !poll.AllowNewOptions || poll.Closed {
			return i18n.T(locale, "command.no_new_options"), nil
		}
		return i18n.T(locale, "command.new_option", strconv.FormatInt(poll.ID, 10), poll.Name), nil
	}
	return i18n.T(locale, "command.invalid_link"), nil
}

// AddOption appends an option to a poll that accepts new options.
func (b *Bot) AddOption(ctx context.Context, user entities.User, pollID int64, name string) (string, error) {
	user = b.withLocale(user)
	name = CleanText(name)

	var feedback string
	added := false
	err := b.Repository.WithTx(ctx, func(q services.Queries) error {
		feedback, added = "", false

		poll, err := q.LockPoll(ctx, pollID)
		if err != nil {
			return err
		}
		if poll.Deleted {
			return services.PollNotFound{ID: strconv.FormatInt(poll.ID, 10)}
		}
		if !poll.AllowNewOptions || poll.Closed || name == "" {
			feedback = i18n.T(user.Locale, "command.no_new_options")
			return nil
		}

		option := entities.Option{PollID: poll.ID, Index: len(poll.Options), Name: name}
		if err := q.AddOption(ctx, &option); err != nil {
			return err
		}
		added = true
		feedback = i18n.T(user.Locale, "command.option_added")
		return nil
	})
	if errors.Is(err, services.ErrNotFound) {
		return i18n.T(user.Locale, "poll.deleted"), nil
	}
	if err != nil {
		return "", err
	}

	if added {
		b.Logger.Info("option added", "poll_id", pollID, "user_id", user.ID)
		if err := b.Scheduler.Notify(ctx, pollID, nil); err != nil {
			b.Logger.Error("cannot schedule poll update", "poll_id", pollID, "error", err)
		}
	}
	return feedback, nil
}
