// Package updates propagates poll changes to every mirror of the poll.
//
// Pending work lives in the single update ticket of a poll. Notify creates
// or bumps the ticket, Drain renders the poll once per mirror kind and edits
// the mirrors, then deletes the ticket unless new changes were folded into
// it meanwhile.
package updates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CedricFinance/paulpoll/domain/entities"
	"github.com/CedricFinance/paulpoll/domain/mirrors"
	"github.com/CedricFinance/paulpoll/domain/render"
	"github.com/CedricFinance/paulpoll/domain/services"
)

type Config struct {
	// RetryMargin is added to every retry-after delay.
	RetryMargin time.Duration
	// InvalidRetryDelay postpones a ticket after the first message-invalid
	// failure of one of its mirrors.
	InvalidRetryDelay time.Duration
	TransportTimeout  time.Duration
	// BatchSize bounds the tickets handled by one Drain.
	BatchSize int
	BotURL    string
}

func DefaultConfig() Config {
	return Config{
		RetryMargin:       time.Second,
		InvalidRetryDelay: 5 * time.Second,
		TransportTimeout:  10 * time.Second,
		BatchSize:         100,
	}
}

type Scheduler struct {
	repo      services.Repository
	registry  *mirrors.Registry
	transport services.Transport
	clock     services.Clock
	logger    *slog.Logger
	cfg       Config
}

func NewScheduler(repo services.Repository, registry *mirrors.Registry, transport services.Transport, clock services.Clock, logger *slog.Logger, cfg Config) *Scheduler {
	if clock == nil {
		clock = services.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.TransportTimeout <= 0 {
		cfg.TransportTimeout = defaults.TransportTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	return &Scheduler{
		repo:      repo,
		registry:  registry,
		transport: transport,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
	}
}

// TransportTimeout bounds every single transport call.
func (s *Scheduler) TransportTimeout() time.Duration {
	return s.cfg.TransportTimeout
}

// Notify records that pollID changed. When origin is set and no update is
// pending yet, the mirror at origin is edited right away.
func (s *Scheduler) Notify(ctx context.Context, pollID int64, origin *entities.MessageHandle) error {
	err := s.notify(ctx, pollID, origin)
	if errors.Is(err, services.ErrNotFound) {
		// The ticket was drained between the insert collision and the
		// increment.
		err = s.notify(ctx, pollID, nil)
	}
	return err
}

func (s *Scheduler) notify(ctx context.Context, pollID int64, origin *entities.MessageHandle) error {
	now := s.clock.Now()
	next := now

	if origin != nil {
		_, err := s.repo.FindUpdate(ctx, pollID, false)
		switch {
		case errors.Is(err, services.ErrNotFound):
			if deferUntil := s.editOrigin(ctx, pollID, *origin); deferUntil.After(next) {
				next = deferUntil
			}
		case err != nil:
			return err
		}
	}

	ticket := entities.Update{PollID: pollID, NextUpdateAt: next, CreatedAt: now}
	err := s.repo.SaveUpdate(ctx, &ticket)
	if !errors.Is(err, services.ErrConflict) {
		return err
	}

	return s.repo.WithTx(ctx, func(q services.Queries) error {
		existing, err := q.FindUpdate(ctx, pollID, true)
		if err != nil {
			return err
		}
		at := existing.NextUpdateAt
		if next.After(at) {
			at = next
		}
		return q.IncrementUpdate(ctx, existing.ID, at)
	})
}

// editOrigin edits the mirror the user interacted with. It returns the time
// before which the poll must not be edited again, zero when unconstrained.
func (s *Scheduler) editOrigin(ctx context.Context, pollID int64, handle entities.MessageHandle) time.Time {
	ref, err := s.registry.Lookup(ctx, handle)
	if err != nil {
		if !errors.Is(err, services.ErrNotFound) {
			s.logger.Warn("cannot find origin mirror", "poll_id", pollID, "error", err)
		}
		return time.Time{}
	}
	if ref.PollID != pollID {
		return time.Time{}
	}

	poll, votes, err := s.load(ctx, pollID)
	if err != nil || poll.Deleted {
		return time.Time{}
	}

	out := render.Render(poll, votes, s.renderContext(ref.Kind))
	s.persistSummarized(ctx, poll, out)

	result := s.Edit(ctx, ref, out.Message)
	s.logResult(poll.ID, ref, result)
	if result.Outcome == OutcomeRetryAfter {
		return s.clock.Now().Add(result.RetryAfter + s.cfg.RetryMargin)
	}
	return time.Time{}
}

// Drain handles every due ticket, oldest first, and returns how many were
// handled. A failing poll is logged and skipped.
func (s *Scheduler) Drain(ctx context.Context) (int, error) {
	tickets, err := s.repo.DueUpdates(ctx, s.clock.Now(), s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list due updates: %w", err)
	}

	handled := 0
	for _, ticket := range tickets {
		if err := ctx.Err(); err != nil {
			return handled, err
		}
		if err := s.drainTicket(ctx, ticket); err != nil {
			s.logger.Error("cannot update poll mirrors", "poll_id", ticket.PollID, "error", err)
			continue
		}
		handled++
	}
	return handled, nil
}

func (s *Scheduler) drainTicket(ctx context.Context, ticket entities.Update) error {
	poll, votes, err := s.load(ctx, ticket.PollID)
	if errors.Is(err, services.ErrNotFound) {
		_, err = s.repo.DeleteUpdate(ctx, ticket.ID, ticket.PendingCount)
		return err
	}
	if err != nil {
		return err
	}
	if poll.Deleted {
		return s.deletePoll(ctx, poll)
	}

	refs, err := s.registry.ForPoll(ctx, poll.ID)
	if err != nil {
		return err
	}

	rendered := map[entities.ReferenceKind]services.Message{}
	var retryAt time.Time
	complete := true

	for _, ref := range refs {
		msg, ok := rendered[ref.Kind]
		if !ok {
			out := render.Render(poll, votes, s.renderContext(ref.Kind))
			poll = s.persistSummarized(ctx, poll, out)
			msg = out.Message
			rendered[ref.Kind] = msg
		}

		result := s.Edit(ctx, ref, msg)
		s.logResult(poll.ID, ref, result)

		switch result.Outcome {
		case OutcomeRetryAfter:
			return s.deferTicket(ctx, ticket, s.clock.Now().Add(result.RetryAfter+s.cfg.RetryMargin))
		case OutcomeRetrySoon:
			complete = false
			if at := s.clock.Now().Add(s.cfg.InvalidRetryDelay); at.After(retryAt) {
				retryAt = at
			}
		case OutcomeTransient:
			complete = false
		}
	}

	if !complete {
		if !retryAt.IsZero() {
			return s.deferTicket(ctx, ticket, retryAt)
		}
		return nil
	}

	deleted, err := s.repo.DeleteUpdate(ctx, ticket.ID, ticket.PendingCount)
	if err != nil {
		return err
	}
	if !deleted {
		s.logger.Debug("poll changed during update, ticket kept", "poll_id", poll.ID)
	}
	return nil
}

func (s *Scheduler) deferTicket(ctx context.Context, ticket entities.Update, at time.Time) error {
	err := s.repo.DeferUpdate(ctx, ticket.ID, at)
	if errors.Is(err, services.ErrNotFound) {
		return nil
	}
	return err
}

// deletePoll rewrites every mirror of a deleted poll, then removes the poll.
// The poll stays in place while a mirror could not be reached.
func (s *Scheduler) deletePoll(ctx context.Context, poll entities.Poll) error {
	refs, err := s.registry.ForPoll(ctx, poll.ID)
	if err != nil {
		return err
	}

	for _, ref := range refs {
		result := s.Delete(ctx, poll, ref)
		s.logResult(poll.ID, ref, result)
		if result.Outcome != OutcomeDetached {
			return nil
		}
	}

	if err := s.repo.DeletePoll(ctx, poll.ID); err != nil {
		return err
	}
	s.logger.Info("poll deleted", "poll_id", poll.ID)
	return nil
}

// Prune removes tickets created before maxAge ago, whatever their state.
func (s *Scheduler) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	n, err := s.repo.PruneUpdates(ctx, s.clock.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("pruned stale update tickets", "count", n)
	}
	return n, nil
}

// RenderFor renders a poll the way its mirrors of kind show it.
func (s *Scheduler) RenderFor(ctx context.Context, pollID int64, kind entities.ReferenceKind) (entities.Poll, services.Message, error) {
	poll, votes, err := s.load(ctx, pollID)
	if err != nil {
		return entities.Poll{}, services.Message{}, err
	}
	out := render.Render(poll, votes, s.renderContext(kind))
	poll = s.persistSummarized(ctx, poll, out)
	return poll, out.Message, nil
}

func (s *Scheduler) load(ctx context.Context, pollID int64) (entities.Poll, []entities.Vote, error) {
	poll, err := s.repo.FindPollByID(ctx, pollID)
	if err != nil {
		return entities.Poll{}, nil, err
	}
	votes, err := s.repo.GetAllVotes(ctx, pollID)
	if err != nil {
		return entities.Poll{}, nil, err
	}
	return poll, votes, nil
}

func (s *Scheduler) renderContext(kind entities.ReferenceKind) render.Context {
	return render.Context{
		Now:     s.clock.Now(),
		Limits:  render.LimitsFor(s.transport.MessageLimit()),
		Kind:    kind,
		BotURL:  s.cfg.BotURL,
		MaxRows: s.transport.MaxRows(),
	}
}

func (s *Scheduler) persistSummarized(ctx context.Context, poll entities.Poll, out render.Output) entities.Poll {
	if !out.PermanentlySummarize {
		return poll
	}
	poll.MarkPermanentlySummarized()
	if err := s.repo.MarkPermanentlySummarized(ctx, poll.ID); err != nil {
		s.logger.Warn("cannot mark poll as summarized", "poll_id", poll.ID, "error", err)
	}
	return poll
}

func (s *Scheduler) logResult(pollID int64, ref entities.Reference, result EditResult) {
	switch result.Outcome {
	case OutcomeEdited, OutcomeUnchanged:
		return
	case OutcomeTransient:
		s.logger.Warn("mirror edit failed", "poll_id", pollID, "reference_id", ref.ID, "error", result.Err)
	default:
		s.logger.Info("mirror edit", "poll_id", pollID, "reference_id", ref.ID, "outcome", result.Outcome.String(), "error", result.Err)
	}
}
