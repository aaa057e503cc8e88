package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/CedricFinance/paulpoll/domain/entities"
	"github.com/CedricFinance/paulpoll/domain/i18n"
	"github.com/CedricFinance/paulpoll/domain/services"
	"github.com/CedricFinance/paulpoll/domain/updates"
	"github.com/dustin/go-humanize"
)

// Notifier reminds subscribed chats of upcoming due dates and closes polls
// once they are due.
type Notifier struct {
	repo      services.Repository
	scheduler *updates.Scheduler
	transport services.Transport
	clock     services.Clock
	logger    *slog.Logger
}

func NewNotifier(repo services.Repository, scheduler *updates.Scheduler, transport services.Transport, clock services.Clock, logger *slog.Logger) *Notifier {
	if clock == nil {
		clock = services.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{repo: repo, scheduler: scheduler, transport: transport, clock: clock, logger: logger}
}

// SendNotifications handles every poll whose next reminder is due and
// returns how many advanced on the staircase.
func (n *Notifier) SendNotifications(ctx context.Context) (int, error) {
	polls, err := n.repo.FindPollsDueForNotification(ctx, n.clock.Now())
	if err != nil {
		return 0, err
	}

	advanced := 0
	for _, poll := range polls {
		if err := ctx.Err(); err != nil {
			return advanced, err
		}
		ok, err := n.notify(ctx, poll)
		if err != nil {
			n.logger.Error("cannot send poll notifications", "poll_id", poll.ID, "error", err)
			continue
		}
		if ok {
			advanced++
		}
	}
	return advanced, nil
}

func (n *Notifier) notify(ctx context.Context, poll entities.Poll) (bool, error) {
	if poll.DueDate == nil || poll.NextNotification == nil {
		return false, nil
	}
	due, current := *poll.DueDate, *poll.NextNotification
	reached := !current.Before(due)

	var body string
	if reached {
		body = i18n.T(poll.Locale, "notification.closed", poll.Name)
	} else {
		body = i18n.T(poll.Locale, "notification.reminder", poll.Name, humanize.RelTime(due, n.clock.Now(), "ago", "from now"))
	}

	subscriptions, err := n.repo.GetNotifications(ctx, poll.ID)
	if err != nil {
		return false, err
	}
	for _, subscription := range subscriptions {
		if subscription.Notified(current) {
			continue
		}
		tctx, cancel := context.WithTimeout(ctx, n.scheduler.TransportTimeout())
		_, err := n.transport.SendMessage(tctx, subscription.ChatID, services.Message{Body: body})
		cancel()
		kind := services.KindOf(err)
		switch {
		case kind == services.KindNone:
			if err := n.repo.MarkNotified(ctx, subscription.ID, current); err != nil {
				return false, err
			}
		case kind == services.KindRetryAfter:
			n.logger.Info("reminder rate limited", "poll_id", poll.ID, "retry_after", services.RetryAfterOf(err))
			return false, nil
		case kind == services.KindUnauthorized, kind.IsInvalidMessage():
			n.logger.Info("dropping unreachable subscription", "poll_id", poll.ID, "chat_id", subscription.ChatID, "reason", kind.String())
			if err := n.repo.DeleteNotification(ctx, subscription.ID); err != nil {
				return false, err
			}
		default:
			n.logger.Warn("cannot send reminder", "poll_id", poll.ID, "chat_id", subscription.ChatID, "error", err)
		}
	}

	closed := false
	err = n.repo.WithTx(ctx, func(q services.Queries) error {
		locked, err := q.LockPoll(ctx, poll.ID)
		if err != nil {
			return err
		}
		if locked.NextNotification == nil || !locked.NextNotification.Equal(current) {
			return nil
		}
		if next, ok := entities.NextNotification(due, current); ok {
			locked.NextNotification = &next
		} else {
			locked.Close()
			closed = true
		}
		return q.UpdatePoll(ctx, locked)
	})
	if errors.Is(err, services.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if closed {
		n.logger.Info("poll reached its due date", "poll_id", poll.ID)
		if err := n.scheduler.Notify(ctx, poll.ID, nil); err != nil {
			return true, err
		}
	}
	return true, nil
}
