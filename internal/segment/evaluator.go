// internal/segment/evaluator.go
package segment

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"
	"log/slog"
	"sort"

	"github.com/solatis/campaignkeeper/internal/rules"
	"github.com/solatis/campaignkeeper/internal/types"
)

/*
 * Segment evaluation over a customer population.
 *
 * Count and Select are pure folds over whatever Population they are handed:
 * the evaluator never reads or writes storage itself, so the same code runs
 * against a database cursor and an in-memory fixture.
 *
 * Ordering: Select sorts by the SortKey (if any) and breaks ties by customer
 * id ascending, so pages are deterministic. Count always equals the length
 * of an unlimited Select over the same predicate and population.
 *
 * Memory: with a Limit, only the best Offset+Limit matches are retained
 * (bounded max-heap); an unlimited Select holds every match.
 *
 * Cancellation is cooperative: the context is checked between batches, never
 * inside one.
 */

// DefaultBatchSize is the population batch size when none is configured.
const DefaultBatchSize = 500

// SelectOptions controls Select paging and ordering.
type SelectOptions struct {
	Limit   int           // 0 = unlimited
	Offset  int           // matches to skip
	SortKey rules.SortKey // zero = customer id order
}

// Evaluator applies compiled predicates to populations.
// Safe for concurrent use; holds no per-call state.
type Evaluator struct {
	batchSize int
	logger    *slog.Logger
}

// NewEvaluator creates an evaluator scanning populations in batches of
// batchSize (DefaultBatchSize when <= 0).
func NewEvaluator(batchSize int, logger *slog.Logger) *Evaluator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{batchSize: batchSize, logger: logger.With("component", "segment")}
}

// Count returns how many customers in pop satisfy pred.
func (e *Evaluator) Count(ctx context.Context, pred rules.Predicate, pop Population) (int, error) {
	count := 0
	err := e.scan(ctx, pop, func(c types.Customer) {
		if pred(c) {
			count++
		}
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Select returns the ids of matching customers, ordered and paged per opts.
func (e *Evaluator) Select(ctx context.Context, pred rules.Predicate, pop Population, opts SelectOptions) ([]types.CustomerID, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, fmt.Errorf("%w: limit=%d offset=%d", types.ErrInvalidPage, opts.Limit, opts.Offset)
	}

	less := orderBy(opts.SortKey)

	var matches []types.Customer
	var bounded *boundedHeap
	if opts.Limit > 0 {
		// Offset+Limit saturates instead of overflowing negative.
		capacity := math.MaxInt
		if opts.Offset <= math.MaxInt-opts.Limit {
			capacity = opts.Offset + opts.Limit
		}
		bounded = &boundedHeap{less: less, capacity: capacity}
	}

	err := e.scan(ctx, pop, func(c types.Customer) {
		if !pred(c) {
			return
		}
		if bounded != nil {
			bounded.offer(c)
			return
		}
		matches = append(matches, c)
	})
	if err != nil {
		return nil, err
	}

	if bounded != nil {
		matches = bounded.items
	}
	sort.Slice(matches, func(i, j int) bool { return less(matches[i], matches[j]) })

	if opts.Offset >= len(matches) {
		return []types.CustomerID{}, nil
	}
	matches = matches[opts.Offset:]
	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}

	ids := make([]types.CustomerID, len(matches))
	for i, c := range matches {
		ids[i] = c.ID
	}
	return ids, nil
}

// scan feeds every customer of pop to fn, checking ctx between batches.
// Population failures wrap ErrPopulationUnavailable; cancellation returns
// the context error unwrapped.
func (e *Evaluator) scan(ctx context.Context, pop Population, fn func(types.Customer)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	batches := 0
	err := pop.Scan(ctx, e.batchSize, func(batch []types.Customer) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, c := range batch {
			fn(c)
		}
		batches++
		return nil
	})

	switch {
	case err == nil:
		e.logger.Debug("population scanned", "batches", batches)
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", types.ErrPopulationUnavailable, err)
	}
}

// orderBy returns the Select ordering: sort key, then customer id.
func orderBy(key rules.SortKey) func(a, b types.Customer) bool {
	return func(a, b types.Customer) bool {
		if cmp := key.Compare(a, b); cmp != 0 {
			return cmp < 0
		}
		return a.ID < b.ID
	}
}

// boundedHeap keeps the capacity smallest customers under less.
// The heap root is the largest retained item, evicted first.
type boundedHeap struct {
	items    []types.Customer
	less     func(a, b types.Customer) bool
	capacity int
}

func (h *boundedHeap) Len() int           { return len(h.items) }
func (h *boundedHeap) Less(i, j int) bool { return h.less(h.items[j], h.items[i]) }
func (h *boundedHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *boundedHeap) Push(x any)         { h.items = append(h.items, x.(types.Customer)) }

func (h *boundedHeap) Pop() any {
	last := h.items[len(h.items)-1]
	h.items = h.items[:len(h.items)-1]
	return last
}

// offer adds c if it ranks within the capacity smallest seen so far.
func (h *boundedHeap) offer(c types.Customer) {
	if len(h.items) < h.capacity {
		heap.Push(h, c)
		return
	}
	if h.less(c, h.items[0]) {
		h.items[0] = c
		heap.Fix(h, 0)
	}
}
