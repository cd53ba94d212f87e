package batch

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"batchedit/internal/domain"
)

// EditFunc performs one external edit call for a single source image and
// returns the edited payload or a normalized failure.
type EditFunc func(ctx context.Context, src domain.ImagePayload, prompt string) (domain.ImagePayload, error)

// Stop is the cooperative cancellation token for a run. It is polled by the
// controller between items only; an edit call already in flight is never
// aborted.
type Stop struct {
	raised atomic.Bool
}

// NewStop returns a fresh, unraised token.
func NewStop() *Stop {
	return &Stop{}
}

// Raise requests the run to halt before the next item. Idempotent.
func (s *Stop) Raise() {
	s.raised.Store(true)
}

// Raised reports whether a stop has been requested.
func (s *Stop) Raised() bool {
	return s.raised.Load()
}

// Controller executes one run of the batch against the external edit
// operation. At most one edit call is in flight at any time: the loop does
// not start item N+1 until item N's call has resolved.
type Controller struct {
	store  *Store
	logger zerolog.Logger
}

// NewController binds a controller to its store.
func NewController(store *Store, logger zerolog.Logger) *Controller {
	return &Controller{store: store, logger: logger}
}

// Run processes every pending item in batch order.
//
// It fails with domain.ErrInvalidRequest, mutating nothing, when the trimmed
// prompt is empty or the batch has no items. Items that are not pending are
// skipped, which is what makes redo work: a completed or error item is only
// reprocessed after the caller resets it to pending.
//
// A single item's failure is recorded on that item and never aborts the
// batch. The stop token and ctx are observed between items only; whichever
// call is in flight still resolves and its outcome is applied. On every exit
// path any item left processing is repaired back to pending.
func (c *Controller) Run(ctx context.Context, edit EditFunc, stop *Stop) (domain.RunOutcome, error) {
	prompt := strings.TrimSpace(c.store.Prompt())
	if prompt == "" || c.store.Len() == 0 {
		return "", domain.ErrInvalidRequest
	}

	defer c.store.ResetProcessingToPending()

	for _, item := range c.store.Snapshot() {
		if c.halted(ctx, stop) {
			break
		}
		if item.Status != domain.StatusPending {
			continue
		}

		c.store.SetProcessing(item.ID)
		result, err := edit(ctx, item.Source, prompt)
		if err != nil {
			c.logger.Warn().Err(err).Str("item_id", item.ID).Str("filename", item.Filename).Msg("batch: item edit failed")
			c.store.SetError(item.ID, err.Error())
			continue
		}
		c.store.SetCompleted(item.ID, result)
		c.logger.Debug().Str("item_id", item.ID).Str("mime", result.MIME).Msg("batch: item edited")
	}

	if c.halted(ctx, stop) {
		return domain.RunStopped, nil
	}
	return domain.RunCompleted, nil
}

// halted reports whether the run should stop before touching the next item.
// Context cancellation (process shutdown) is treated like a raised stop.
func (c *Controller) halted(ctx context.Context, stop *Stop) bool {
	if stop != nil && stop.Raised() {
		return true
	}
	return ctx.Err() != nil
}
