// Package voting applies vote intents to the stored vote state of a poll.
package voting

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/CedricFinance/paulpoll/domain/entities"
	"github.com/CedricFinance/paulpoll/domain/i18n"
	"github.com/CedricFinance/paulpoll/domain/services"
)

type Result struct {
	PollID int64
	// PollChanged is true when the mirrors of the poll must be refreshed.
	PollChanged bool
	Feedback    string
	// Dropped is set when a concurrent request won a race and the intent was
	// discarded. The voter may simply click again.
	Dropped bool
}

type Resolver struct {
	repo   services.Repository
	clock  services.Clock
	logger *slog.Logger
}

func NewResolver(repo services.Repository, clock services.Clock, logger *slog.Logger) *Resolver {
	if clock == nil {
		clock = services.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{repo: repo, clock: clock, logger: logger}
}

// Vote applies action on optionID for user inside a single transaction.
func (r *Resolver) Vote(ctx context.Context, user entities.User, optionID int64, action entities.VoteAction) (Result, error) {
	var result Result

	err := r.repo.WithTx(ctx, func(q services.Queries) error {
		result = Result{}

		option, err := q.FindOptionByID(ctx, optionID)
		if errors.Is(err, services.ErrNotFound) {
			return services.PollNotFound{ID: "option " + strconv.FormatInt(optionID, 10)}
		}
		if err != nil {
			return err
		}

		poll, err := q.FindPollByID(ctx, option.PollID)
		if err != nil {
			return err
		}
		result.PollID = poll.ID
		if poll.Deleted {
			return services.PollNotFound{ID: strconv.FormatInt(poll.ID, 10)}
		}
		if poll.Closed {
			result.Feedback = i18n.T(user.Locale, "poll.closed")
			return nil
		}

		if err := q.SaveUser(ctx, user); err != nil {
			return err
		}

		votes, err := q.GetUserVotes(ctx, poll.ID, user.ID, true)
		if err != nil {
			return err
		}

		v := voter{q: q, poll: poll, user: user, votes: votes, now: r.clock.Now()}
		var feedback string
		switch poll.Mode {
		case entities.ModeSingle:
			feedback, err = v.single(ctx, option, action)
		case entities.ModeBlock, entities.ModeLimited:
			feedback, err = v.block(ctx, option, action)
		case entities.ModeCumulative, entities.ModeCount:
			feedback, err = v.cumulative(ctx, option, action)
		case entities.ModeDoodle:
			feedback, err = v.doodle(ctx, option, action)
		case entities.ModePriority:
			feedback, err = v.priority(ctx, option, action)
		default:
			feedback = i18n.T(user.Locale, "vote.unknown_action")
		}
		if err != nil {
			return err
		}
		result.Feedback = feedback
		result.PollChanged = v.changed

		if v.changed {
			_, err = q.IncrementDailyStatistic(ctx, user.ID, entities.Day(v.now), entities.StatisticVotes)
			return err
		}
		return nil
	})

	var notFound services.PollNotFound
	switch {
	case err == nil:
		return result, nil
	case errors.As(err, &notFound):
		return Result{}, err
	case services.IsDroppable(err):
		r.logger.Info("vote dropped", "option_id", optionID, "user_id", user.ID, "error", err)
		return Result{PollID: result.PollID, Dropped: true}, nil
	}
	return Result{}, err
}

// voter holds the state of one intent while it is being applied.
type voter struct {
	q       services.Queries
	poll    entities.Poll
	user    entities.User
	votes   []entities.Vote
	now     time.Time
	changed bool
}

func (v *voter) t(key string, args ...interface{}) string {
	return i18n.T(v.user.Locale, key, args...)
}

func (v *voter) voteFor(optionID int64) (entities.Vote, bool) {
	for _, vote := range v.votes {
		if vote.OptionID == optionID {
			return vote, true
		}
	}
	return entities.Vote{}, false
}

func (v *voter) create(ctx context.Context, option entities.Option, init func(*entities.Vote)) error {
	vote := entities.NewVote(v.user.ID, v.poll.ID, option.ID)
	vote.CreatedAt = v.now
	if init != nil {
		init(&vote)
	}
	if err := v.q.SaveVote(ctx, &vote); err != nil {
		return err
	}
	v.votes = append(v.votes, vote)
	v.changed = true
	return nil
}

func (v *voter) update(ctx context.Context, vote entities.Vote) error {
	if err := v.q.UpdateVote(ctx, vote); err != nil {
		return err
	}
	v.changed = true
	return nil
}

func (v *voter) remove(ctx context.Context, vote entities.Vote) error {
	if err := v.q.DeleteVote(ctx, vote.ID); err != nil {
		return err
	}
	v.changed = true
	return nil
}

func (v *voter) single(ctx context.Context, option entities.Option, action entities.VoteAction) (string, error) {
	if action != entities.ActionVote {
		return v.t("vote.unknown_action"), nil
	}

	if len(v.votes) == 0 {
		return v.t("vote.registered"), v.create(ctx, option, nil)
	}

	// Leftovers of a mode change are removed so at most one vote remains.
	for _, extra := range v.votes[1:] {
		if err := v.remove(ctx, extra); err != nil {
			return "", err
		}
	}

	existing := v.votes[0]
	if existing.OptionID == option.ID {
		return v.t("vote.removed"), v.remove(ctx, existing)
	}
	existing.OptionID = option.ID
	return v.t("vote.changed"), v.update(ctx, existing)
}

// block toggles one vote per option, bounded by the vote limit in limited mode.
func (v *voter) block(ctx context.Context, option entities.Option, action entities.VoteAction) (string, error) {
	if action != entities.ActionVote {
		return v.t("vote.unknown_action"), nil
	}

	if existing, ok := v.voteFor(option.ID); ok {
		return v.t("vote.removed"), v.remove(ctx, existing)
	}

	if v.poll.Mode.HasVoteLimit() && len(v.votes) >= v.poll.VoteLimit {
		return v.t("vote.no_left"), nil
	}
	if err := v.create(ctx, option, nil); err != nil {
		return "", err
	}
	if v.poll.Mode.HasVoteLimit() {
		return v.t("vote.votes_left", v.poll.VoteLimit-len(v.votes)), nil
	}
	return v.t("vote.registered"), nil
}

func (v *voter) cumulative(ctx context.Context, option entities.Option, action entities.VoteAction) (string, error) {
	existing, found := v.voteFor(option.ID)

	switch action {
	case entities.ActionVote, entities.ActionYes:
		total := 0
		for _, vote := range v.votes {
			total += vote.Count
		}
		limited := v.poll.Mode.HasVoteLimit()
		if limited && total >= v.poll.VoteLimit {
			return v.t("vote.no_left"), nil
		}

		var err error
		if found {
			existing.Count++
			err = v.update(ctx, existing)
		} else {
			err = v.create(ctx, option, nil)
		}
		if err != nil {
			return "", err
		}
		if limited {
			return v.t("vote.votes_left", v.poll.VoteLimit-total-1), nil
		}
		return v.t("vote.registered"), nil

	case entities.ActionNo:
		if !found {
			return v.t("vote.nothing_to_remove"), nil
		}
		existing.Count--
		if existing.Count <= 0 {
			return v.t("vote.removed"), v.remove(ctx, existing)
		}
		return v.t("vote.removed"), v.update(ctx, existing)
	}

	return v.t("vote.unknown_action"), nil
}

func (v *voter) doodle(ctx context.Context, option entities.Option, action entities.VoteAction) (string, error) {
	answer := action.Answer()
	if answer == entities.AnswerNone {
		return v.t("vote.unknown_action"), nil
	}
	label := v.t("doodle." + string(answer))

	existing, found := v.voteFor(option.ID)
	if !found {
		return v.t("vote.answer_set", label), v.create(ctx, option, func(vote *entities.Vote) {
			vote.Answer = answer
		})
	}
	if existing.Answer == answer {
		return v.t("vote.answer_unchanged", label), nil
	}
	existing.Answer = answer
	return v.t("vote.answer_set", label), v.update(ctx, existing)
}

// priority moves an option one step up or down the voter's ranking. Priority
// 0 is the top of the ranking.
func (v *voter) priority(ctx context.Context, option entities.Option, action entities.VoteAction) (string, error) {
	var d int
	switch action {
	case entities.ActionIncreasePriority:
		d = -1
	case entities.ActionDecreasePriority:
		d = 1
	default:
		return v.t("vote.unknown_action"), nil
	}

	if err := v.seedPriorities(ctx); err != nil {
		return "", err
	}

	acting, found := v.voteFor(option.ID)
	if !found {
		return "", services.ErrNotFound
	}
	p := acting.PriorityValue()

	var sibling entities.Vote
	found = false
	for _, vote := range v.votes {
		if vote.Priority != nil && *vote.Priority == p+d {
			sibling, found = vote, true
			break
		}
	}
	if !found {
		return v.t("vote.priority_edge"), nil
	}

	// (user, poll, priority) is unique and checked per statement, so the
	// acting vote is parked on the sentinel while the sibling takes its place.
	acting.SetPriority(entities.PrioritySentinel)
	if err := v.update(ctx, acting); err != nil {
		return "", err
	}
	sibling.SetPriority(p)
	if err := v.update(ctx, sibling); err != nil {
		return "", err
	}
	acting.SetPriority(p + d)
	if err := v.update(ctx, acting); err != nil {
		return "", err
	}
	return v.t("vote.priority_changed"), nil
}

// seedPriorities gives every option without a vote the next free priority,
// in option order, so priorities always cover 0..len(options)-1.
func (v *voter) seedPriorities(ctx context.Context) error {
	next := len(v.votes)
	for _, option := range v.poll.Options {
		if _, ok := v.voteFor(option.ID); ok {
			continue
		}
		priority := next
		err := v.create(ctx, option, func(vote *entities.Vote) {
			vote.SetPriority(priority)
		})
		if err != nil {
			return err
		}
		next++
	}
	return nil
}
