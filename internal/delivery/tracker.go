// internal/delivery/tracker.go
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/solatis/campaignkeeper/internal/types"
)

/*
 * Tracker applies receipts to persisted messages.
 *
 * Per receipt: lock the vendor message id, load, Apply, persist if anything
 * changed, unlock. The lock makes racing receipts for one message serialize;
 * the store's optimistic version check catches writers that bypass the lock
 * (another instance after a Redis TTL expiry), and the tracker retries.
 *
 * Batches: receipts are grouped by vendor message id and each group is
 * applied in ascending occurredAt order (ties by lifecycle order), so a
 * batch converges to the same state whatever its array order. Groups run
 * concurrently up to Concurrency. One receipt failing never affects another;
 * results come back in input order, one per receipt.
 */

// DefaultConcurrency bounds parallel message groups within one batch.
const DefaultConcurrency = 8

// maxVersionRetries bounds reload-and-retry on optimistic version conflicts.
const maxVersionRetries = 3

// Store is the persistence boundary for message delivery state.
type Store interface {
	// GetByVendorID loads a message; ErrMessageNotFound when unknown.
	GetByVendorID(ctx context.Context, id types.VendorMessageID) (types.Message, error)
	// UpdateDelivery persists state and stamps if m.Version still matches the
	// stored version, then increments it. ErrVersionConflict otherwise.
	UpdateDelivery(ctx context.Context, m types.Message) error
}

// Result is the per-receipt outcome of Tracker.Apply/ApplyBatch.
// Err is set only for unexpected failures (unknown message, storage, lock);
// Outcome is meaningful only when Err is nil.
type Result struct {
	Receipt   types.Receipt        `json:"receipt"`
	MessageID types.MessageID      `json:"messageId,omitempty"`
	Outcome   types.ReceiptOutcome `json:"outcome,omitempty"`
	State     types.DeliveryState  `json:"state,omitempty"`
	Err       error                `json:"-"`
}

// Config configures a Tracker.
type Config struct {
	Concurrency int
	// OnResult, when set, is called once per processed receipt (metrics).
	OnResult func(Result)
}

// Tracker applies receipts to stored messages.
type Tracker struct {
	store       Store
	locker      Locker
	concurrency int
	onResult    func(Result)
	logger      *slog.Logger
}

// NewTracker creates a tracker. A nil locker uses an in-process KeyedLocker.
func NewTracker(store Store, locker Locker, cfg Config, logger *slog.Logger) *Tracker {
	if locker == nil {
		locker = NewKeyedLocker()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:       store,
		locker:      locker,
		concurrency: cfg.Concurrency,
		onResult:    cfg.OnResult,
		logger:      logger.With("component", "delivery"),
	}
}

// Apply applies one receipt.
func (t *Tracker) Apply(ctx context.Context, r types.Receipt) Result {
	res := t.apply(ctx, r)
	if t.onResult != nil {
		t.onResult(res)
	}
	return res
}

func (t *Tracker) apply(ctx context.Context, r types.Receipt) Result {
	res := Result{Receipt: r}

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	if r.VendorMessageID == "" {
		res.Err = fmt.Errorf("%w: empty vendor message id", types.ErrMessageNotFound)
		return res
	}

	unlock, err := t.locker.Lock(ctx, string(r.VendorMessageID))
	if err != nil {
		res.Err = err
		return res
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		m, err := t.store.GetByVendorID(ctx, r.VendorMessageID)
		if err != nil {
			res.Err = err
			return res
		}
		res.MessageID = m.ID

		next, outcome := Apply(m, r)
		res.Outcome = outcome
		res.State = next.State

		if outcome == types.OutcomeRejectedInvalid {
			t.logger.Warn("rejected invalid delivery transition",
				"vendor_message_id", r.VendorMessageID,
				"message_id", m.ID,
				"current_state", m.State,
				"received_status", r.Status,
				"occurred_at", r.OccurredAt)
		}

		if !changed(m, next) {
			return res
		}

		err = t.store.UpdateDelivery(ctx, next)
		if err == nil {
			t.logger.Debug("receipt applied",
				"vendor_message_id", r.VendorMessageID,
				"outcome", outcome,
				"state", next.State)
			return res
		}
		if !errors.Is(err, types.ErrVersionConflict) || attempt+1 >= maxVersionRetries {
			res.Outcome = ""
			res.State = ""
			res.Err = err
			return res
		}
		t.logger.Debug("version conflict, reloading message",
			"vendor_message_id", r.VendorMessageID, "attempt", attempt+1)
	}
}

// ApplyBatch applies receipts independently and returns one Result per
// receipt, in input order.
func (t *Tracker) ApplyBatch(ctx context.Context, receipts []types.Receipt) []Result {
	results := make([]Result, len(receipts))

	groups := lo.GroupBy(lo.Range(len(receipts)), func(i int) types.VendorMessageID {
		return receipts[i].VendorMessageID
	})

	sem := make(chan struct{}, t.concurrency)
	var wg sync.WaitGroup

	for _, key := range slices.Sorted(maps.Keys(groups)) {
		indices := groups[key]
		sort.SliceStable(indices, func(a, b int) bool {
			return receiptBefore(receipts[indices[a]], receipts[indices[b]])
		})

		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				for _, i := range indices {
					results[i] = Result{Receipt: receipts[i], Err: ctx.Err()}
				}
				return
			}

			for _, i := range indices {
				results[i] = t.Apply(ctx, receipts[i])
			}
		}()
	}
	wg.Wait()

	counts := lo.CountValuesBy(results, func(r Result) string {
		if r.Err != nil {
			return "error"
		}
		return string(r.Outcome)
	})
	t.logger.Info("receipt batch processed",
		"receipts", len(receipts), "messages", len(groups), "outcomes", counts)

	return results
}

// receiptBefore orders receipts for one message: occurredAt, then lifecycle.
func receiptBefore(a, b types.Receipt) bool {
	if !a.OccurredAt.Equal(b.OccurredAt) {
		return a.OccurredAt.Before(b.OccurredAt)
	}
	return lifecycleIndex(a.Status) < lifecycleIndex(b.Status)
}

func lifecycleIndex(s types.DeliveryState) int {
	i := slices.Index(types.DeliveryStates, s)
	if i < 0 {
		return len(types.DeliveryStates)
	}
	return i
}

// changed reports whether Apply produced anything worth persisting.
func changed(before, after types.Message) bool {
	if before.State != after.State || len(before.Stamps) != len(after.Stamps) {
		return true
	}
	for s, st := range after.Stamps {
		prev, ok := before.Stamps[s]
		if !ok || prev.Inferred != st.Inferred || !prev.At.Equal(st.At) {
			return true
		}
	}
	return false
}
