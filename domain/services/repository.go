package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CedricFinance/paulpoll/domain/entities"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a row is missing, including rows that a
	// concurrent transaction removed between a read and a write.
	ErrNotFound = errors.New("not found")
	// ErrConflict wraps unique-constraint violations.
	ErrConflict = errors.New("unique constraint violated")
	// ErrDeadlock wraps deadlocks, lock wait timeouts and serialisation failures.
	ErrDeadlock = errors.New("transaction deadlocked")
)

type Queries interface {
	FindPollByID(ctx context.Context, id int64) (entities.Poll, error)
	FindPollByUUID(ctx context.Context, id uuid.UUID) (entities.Poll, error)
	// LockPoll reads a poll and holds its row lock until the transaction ends.
	LockPoll(ctx context.Context, id int64) (entities.Poll, error)
	SavePoll(ctx context.Context, poll *entities.Poll) error
	UpdatePoll(ctx context.Context, poll entities.Poll) error
	// MarkPermanentlySummarized sets the summarized flag and nothing else.
	MarkPermanentlySummarized(ctx context.Context, id int64) error
	DeletePoll(ctx context.Context, id int64) error
	AddOption(ctx context.Context, option *entities.Option) error
	FindOptionByID(ctx context.Context, id int64) (entities.Option, error)
	FindPollsByOwner(ctx context.Context, ownerID string, search string, limit int) ([]entities.Poll, error)
	FindPollsDueForNotification(ctx context.Context, now time.Time) ([]entities.Poll, error)

	GetAllVotes(ctx context.Context, pollID int64) ([]entities.Vote, error)
	GetUserVotes(ctx context.Context, pollID int64, userID string, lock bool) ([]entities.Vote, error)
	SaveVote(ctx context.Context, vote *entities.Vote) error
	UpdateVote(ctx context.Context, vote entities.Vote) error
	DeleteVote(ctx context.Context, id int64) error

	SaveReference(ctx context.Context, ref *entities.Reference) error
	FindReferenceByHandle(ctx context.Context, handle entities.MessageHandle) (entities.Reference, error)
	GetReferences(ctx context.Context, pollID int64) ([]entities.Reference, error)
	UpdateReference(ctx context.Context, ref entities.Reference) error
	DeleteReference(ctx context.Context, id int64) error

	FindUpdate(ctx context.Context, pollID int64, lock bool) (entities.Update, error)
	SaveUpdate(ctx context.Context, update *entities.Update) error
	IncrementUpdate(ctx context.Context, id int64, nextUpdateAt time.Time) error
	DeferUpdate(ctx context.Context, id int64, nextUpdateAt time.Time) error
	DueUpdates(ctx context.Context, now time.Time, limit int) ([]entities.Update, error)
	// DeleteUpdate removes the ticket only if no event was folded into it
	// since pendingCount was read.
	DeleteUpdate(ctx context.Context, id int64, pendingCount int) (bool, error)
	PruneUpdates(ctx context.Context, createdBefore time.Time) (int64, error)

	SaveUser(ctx context.Context, user entities.User) error
	FindUser(ctx context.Context, id string) (entities.User, error)
	IncrementDailyStatistic(ctx context.Context, userID string, day string, field entities.StatisticField) (entities.DailyStatistic, error)

	SaveNotification(ctx context.Context, notification *entities.Notification) error
	GetNotifications(ctx context.Context, pollID int64) ([]entities.Notification, error)
	// MarkNotified records that the chat got the reminder of step.
	MarkNotified(ctx context.Context, id int64, step time.Time) error
	DeleteNotification(ctx context.Context, id int64) error
}

type Repository interface {
	Queries
	// WithTx runs fn in a single transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(q Queries) error) error
}

type PollNotFound struct {
	ID string
}

func (e PollNotFound) Error() string {
	return fmt.Sprintf("no poll with id %q", e.ID)
}

func (e PollNotFound) Is(target error) bool {
	return target == ErrNotFound
}

// IsDroppable reports store failures after which an intent is dropped and
// the user is expected to retry.
func IsDroppable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrDeadlock) || errors.Is(err, ErrNotFound)
}
