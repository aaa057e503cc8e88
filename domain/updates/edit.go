package updates

import (
	"context"
	"fmt"
	"time"

	"github.com/CedricFinance/paulpoll/domain/entities"
	"github.com/CedricFinance/paulpoll/domain/render"
	"github.com/CedricFinance/paulpoll/domain/services"
	"github.com/OneOfOne/xxhash"
)

type Outcome int

const (
	// OutcomeEdited means the mirror now shows the message.
	OutcomeEdited Outcome = iota
	// OutcomeUnchanged means the mirror already showed the message and no
	// edit was sent.
	OutcomeUnchanged
	OutcomeRetryAfter
	// OutcomeRetrySoon is the first message-invalid failure of a mirror.
	OutcomeRetrySoon
	OutcomeDetached
	OutcomeTransient
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEdited:
		return "edited"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeRetryAfter:
		return "retry-after"
	case OutcomeRetrySoon:
		return "retry-soon"
	case OutcomeDetached:
		return "detached"
	case OutcomeTransient:
		return "transient"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

type EditResult struct {
	Outcome    Outcome
	RetryAfter time.Duration
	Err        error
}

// Fingerprint identifies the rendered content of a message.
func Fingerprint(msg services.Message) string {
	h := xxhash.NewS64(0)
	h.Write([]byte(msg.Body))
	for _, row := range msg.Keyboard {
		h.Write([]byte{0x1e})
		for _, button := range row {
			fmt.Fprintf(h, "\x1f%d\x1f%s\x1f%s", button.Kind, button.Text, button.Data)
		}
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// Edit writes msg on the mirror and applies the delivery policy to the
// transport's answer. Mirrors already showing msg are not edited again.
func (s *Scheduler) Edit(ctx context.Context, ref entities.Reference, msg services.Message) EditResult {
	fingerprint := Fingerprint(msg)
	if ref.RenderedHash == fingerprint {
		return EditResult{Outcome: OutcomeUnchanged}
	}

	tctx, cancel := context.WithTimeout(ctx, s.cfg.TransportTimeout)
	err := s.transport.EditMessage(tctx, ref.Handle, msg)
	cancel()

	kind := services.KindOf(err)
	switch {
	case kind == services.KindNone, kind == services.KindNotModified, kind == services.KindAuthorRequired:
		if _, err := s.registry.RecordSuccess(ctx, ref, fingerprint); err != nil {
			s.logger.Warn("cannot record mirror delivery", "reference_id", ref.ID, "error", err)
		}
		return EditResult{Outcome: OutcomeEdited}

	case kind == services.KindRetryAfter:
		return EditResult{Outcome: OutcomeRetryAfter, RetryAfter: services.RetryAfterOf(err), Err: err}

	case kind.IsInvalidMessage() && ref.Failures == 0:
		if _, recordErr := s.registry.RecordFailure(ctx, ref); recordErr != nil {
			s.logger.Warn("cannot record mirror failure", "reference_id", ref.ID, "error", recordErr)
		}
		return EditResult{Outcome: OutcomeRetrySoon, Err: err}

	case kind.IsInvalidMessage(), kind == services.KindUnauthorized:
		if _, detachErr := s.registry.GarbageCollect(ctx, ref, kind); detachErr != nil {
			return EditResult{Outcome: OutcomeTransient, Err: detachErr}
		}
		return EditResult{Outcome: OutcomeDetached, Err: err}
	}

	return EditResult{Outcome: OutcomeTransient, Err: err}
}

// Delete writes the deleted notice on the mirror and detaches it. A
// retry-after answer is waited out and the edit tried again.
func (s *Scheduler) Delete(ctx context.Context, poll entities.Poll, ref entities.Reference) EditResult {
	msg := render.Deleted(poll)

	for {
		tctx, cancel := context.WithTimeout(ctx, s.cfg.TransportTimeout)
		err := s.transport.EditMessage(tctx, ref.Handle, msg)
		cancel()

		kind := services.KindOf(err)
		switch {
		case kind == services.KindRetryAfter:
			if err := s.clock.Sleep(ctx, services.RetryAfterOf(err)+s.cfg.RetryMargin); err != nil {
				return EditResult{Outcome: OutcomeTransient, Err: err}
			}
			continue

		case kind == services.KindNone, kind == services.KindNotModified, kind == services.KindAuthorRequired,
			kind.IsInvalidMessage(), kind == services.KindUnauthorized:
			if detachErr := s.registry.Detach(ctx, ref); detachErr != nil {
				return EditResult{Outcome: OutcomeTransient, Err: detachErr}
			}
			return EditResult{Outcome: OutcomeDetached, Err: err}
		}

		return EditResult{Outcome: OutcomeTransient, Err: err}
	}
}
