// internal/delivery/machine.go
package delivery

import (
	"time"

	"github.com/solatis/campaignkeeper/internal/types"
)

/*
 * Delivery state machine.
 *
 * Lifecycle graph (directed, monotonic per message):
 *
 *   queued -> sent -> delivered -> opened -> clicked
 *               \          \
 *                \          -> bounced
 *                 -> bounced
 *   queued, sent -> failed
 *   any non-terminal state -> unsubscribed
 *
 * Apply is a pure function of (message, receipt). Checks run in order:
 *   1. Unknown status: Rejected-InvalidTransition
 *   2. Same status and occurredAt as a confirmed stamp: Ignored-Duplicate
 *   3. Status already on the message's traversed path: Ignored-Stale. A late
 *      confirmation replaces an inferred stamp's time; state never moves.
 *   4. Status ranked at or below the current state on the success path
 *      (bounced after opened or clicked): Ignored-Stale.
 *   5. Status reachable from the current state: Applied. Skipped states are
 *      stamped as inferred with the receipt's occurredAt (catch-up along the
 *      shortest path, so clicked from queued infers sent, delivered, opened).
 *   6. Otherwise: Rejected-InvalidTransition (contradicts a branch already
 *      taken, e.g. delivered after a bounce from sent).
 *
 * The traversed path is the set of stamped states, which is why every
 * transition stamps every state it passes through.
 */

// transitions lists direct successors, in preference order for catch-up.
var transitions = map[types.DeliveryState][]types.DeliveryState{
	types.StateQueued:    {types.StateSent, types.StateFailed, types.StateUnsubscribed},
	types.StateSent:      {types.StateDelivered, types.StateBounced, types.StateFailed, types.StateUnsubscribed},
	types.StateDelivered: {types.StateOpened, types.StateBounced, types.StateUnsubscribed},
	types.StateOpened:    {types.StateClicked, types.StateUnsubscribed},
	types.StateClicked:   {types.StateUnsubscribed},
}

// successRank orders queued < sent < delivered < {opened, bounced} < clicked.
// failed and unsubscribed are off this ordering.
var successRank = map[types.DeliveryState]int{
	types.StateQueued:    0,
	types.StateSent:      1,
	types.StateDelivered: 2,
	types.StateOpened:    3,
	types.StateBounced:   3,
	types.StateClicked:   4,
}

// behind reports whether to ranks at or below from on the success path.
func behind(from, to types.DeliveryState) bool {
	f, ok := successRank[from]
	if !ok {
		return false
	}
	t, ok := successRank[to]
	return ok && t <= f
}

// Path returns the states entered when moving from -> to along the shortest
// route, ending with to. Returns nil when to is unreachable or equals from.
func Path(from, to types.DeliveryState) []types.DeliveryState {
	if from == to {
		return nil
	}

	prev := map[types.DeliveryState]types.DeliveryState{}
	seen := map[types.DeliveryState]bool{from: true}
	queue := []types.DeliveryState{from}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range transitions[cur] {
			if seen[next] {
				continue
			}
			seen[next] = true
			prev[next] = cur
			if next == to {
				return unwind(prev, from, to)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

func unwind(prev map[types.DeliveryState]types.DeliveryState, from, to types.DeliveryState) []types.DeliveryState {
	var path []types.DeliveryState
	for s := to; s != from; s = prev[s] {
		path = append(path, s)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Apply applies receipt r to message m and returns the resulting message and
// outcome. m is never modified; the returned message shares no state with it.
func Apply(m types.Message, r types.Receipt) (types.Message, types.ReceiptOutcome) {
	if !r.Status.Valid() {
		return m, types.OutcomeRejectedInvalid
	}

	stamp, stamped := m.Stamps[r.Status]
	if stamped && !stamp.Inferred && stamp.At.Equal(r.OccurredAt) {
		return m, types.OutcomeIgnoredDuplicate
	}

	if stamped || r.Status == m.State {
		if stamped && !stamp.Inferred {
			return m, types.OutcomeIgnoredStale
		}
		// Late confirmation of an inferred (or unstamped current) milestone.
		next := m.Clone()
		next.Stamps[r.Status] = types.Stamp{At: r.OccurredAt}
		return next, types.OutcomeIgnoredStale
	}

	if m.State.Terminal() {
		return m, types.OutcomeRejectedInvalid
	}
	if behind(m.State, r.Status) {
		return m, types.OutcomeIgnoredStale
	}

	path := Path(m.State, r.Status)
	if path == nil {
		return m, types.OutcomeRejectedInvalid
	}

	next := m.Clone()
	for _, s := range path[:len(path)-1] {
		if _, ok := next.Stamps[s]; !ok {
			next.Stamps[s] = types.Stamp{At: r.OccurredAt, Inferred: true}
		}
	}
	next.Stamps[r.Status] = types.Stamp{At: r.OccurredAt}
	next.State = r.Status
	return next, types.OutcomeApplied
}

// NewQueued builds the initial record for one recipient of a campaign send,
// stamped queued at createdAt.
func NewQueued(campaignID types.CampaignID, customerID types.CustomerID, channel types.Channel, createdAt time.Time) types.Message {
	return types.Message{
		ID:         types.NewMessageID(),
		CampaignID: campaignID,
		CustomerID: customerID,
		Channel:    channel,
		State:      types.StateQueued,
		Stamps:     map[types.DeliveryState]types.Stamp{types.StateQueued: {At: createdAt}},
		CreatedAt:  createdAt,
	}
}
