// Package mirrors keeps track of the messages that display a poll.
package mirrors

import (
	"context"
	"errors"
	"log/slog"

	"github.com/CedricFinance/paulpoll/domain/entities"
	"github.com/CedricFinance/paulpoll/domain/services"
)

type Registry struct {
	repo   services.Repository
	clock  services.Clock
	logger *slog.Logger
}

func NewRegistry(repo services.Repository, clock services.Clock, logger *slog.Logger) *Registry {
	if clock == nil {
		clock = services.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{repo: repo, clock: clock, logger: logger}
}

// Attach records a mirror of pollID. Attaching a handle that is already
// known returns the existing mirror unchanged, so late deliveries of inline
// results can be replayed safely.
func (r *Registry) Attach(ctx context.Context, pollID int64, kind entities.ReferenceKind, handle entities.MessageHandle, userID string) (entities.Reference, error) {
	ref := entities.NewReference(pollID, kind, handle, userID)
	ref.CreatedAt = r.clock.Now()

	err := r.repo.SaveReference(ctx, &ref)
	if errors.Is(err, services.ErrConflict) {
		return r.repo.FindReferenceByHandle(ctx, ref.Handle)
	}
	if err != nil {
		return entities.Reference{}, err
	}

	r.logger.Debug("mirror attached", "poll_id", pollID, "reference_id", ref.ID, "kind", kind)
	return ref, nil
}

// Detach is idempotent.
func (r *Registry) Detach(ctx context.Context, ref entities.Reference) error {
	return r.repo.DeleteReference(ctx, ref.ID)
}

// ForPoll lists the mirrors of a poll in registration order.
func (r *Registry) ForPoll(ctx context.Context, pollID int64) ([]entities.Reference, error) {
	return r.repo.GetReferences(ctx, pollID)
}

// Lookup finds the mirror addressed by handle. Chat addressed handles also
// match the inline mirror minted from the same message.
func (r *Registry) Lookup(ctx context.Context, handle entities.MessageHandle) (entities.Reference, error) {
	ref, err := r.repo.FindReferenceByHandle(ctx, handle)
	if errors.Is(err, services.ErrNotFound) && handle.InlineID == "" {
		return r.repo.FindReferenceByHandle(ctx, handle.Inline())
	}
	return ref, err
}

// GarbageCollect detaches ref when the transport reported that its message
// is gone or unreachable. It returns whether the mirror was detached.
func (r *Registry) GarbageCollect(ctx context.Context, ref entities.Reference, kind services.ErrorKind) (bool, error) {
	if !kind.IsInvalidMessage() && kind != services.KindUnauthorized {
		return false, nil
	}
	if err := r.Detach(ctx, ref); err != nil {
		return false, err
	}
	r.logger.Info("mirror detached", "poll_id", ref.PollID, "reference_id", ref.ID, "reason", kind.String())
	return true, nil
}

// RecordFailure counts one more invalid-message failure on ref.
func (r *Registry) RecordFailure(ctx context.Context, ref entities.Reference) (entities.Reference, error) {
	ref.Failures++
	return ref, r.repo.UpdateReference(ctx, ref)
}

// RecordSuccess clears the failure count and remembers the fingerprint of
// the rendered message.
func (r *Registry) RecordSuccess(ctx context.Context, ref entities.Reference, fingerprint string) (entities.Reference, error) {
	if ref.Failures == 0 && ref.RenderedHash == fingerprint {
		return ref, nil
	}
	ref.Failures = 0
	ref.RenderedHash = fingerprint
	return ref, r.repo.UpdateReference(ctx, ref)
}
