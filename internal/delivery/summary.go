// internal/delivery/summary.go
package delivery

import "github.com/solatis/campaignkeeper/internal/types"

/*
 * Campaign aggregation.
 *
 * Milestones are counted from stamps, not current state: a clicked message
 * was also sent, delivered and opened. This keeps opened <= delivered and
 * makes the rates meaningful. Terminal failure states (bounced, failed,
 * unsubscribed) are counted the same way.
 *
 * Rates: opens and clicks over delivered, bounces over sent. A zero
 * denominator yields 0.
 */

// Summary is the analytics view of one campaign's messages.
type Summary struct {
	Total        int     `json:"total"`
	Queued       int     `json:"queued"` // still in queued state
	Sent         int     `json:"sent"`
	Delivered    int     `json:"delivered"`
	Opened       int     `json:"opened"`
	Clicked      int     `json:"clicked"`
	Bounced      int     `json:"bounced"`
	Failed       int     `json:"failed"`
	Unsubscribed int     `json:"unsubscribed"`
	OpenRate     float64 `json:"openRate"`
	ClickRate    float64 `json:"clickRate"`
	BounceRate   float64 `json:"bounceRate"`
}

// Summarize folds message states into campaign analytics. Pure and
// deterministic: the same messages always produce the same Summary.
func Summarize(messages []types.Message) Summary {
	var s Summary
	for _, m := range messages {
		s.Add(m)
	}
	s.computeRates()
	return s
}

// Add counts one message. Callers streaming messages must call Finish once
// all messages are added.
func (s *Summary) Add(m types.Message) {
	s.Total++
	if m.State == types.StateQueued {
		s.Queued++
	}
	if reached(m, types.StateSent) {
		s.Sent++
	}
	if reached(m, types.StateDelivered) {
		s.Delivered++
	}
	if reached(m, types.StateOpened) {
		s.Opened++
	}
	if reached(m, types.StateClicked) {
		s.Clicked++
	}
	if reached(m, types.StateBounced) {
		s.Bounced++
	}
	if reached(m, types.StateFailed) {
		s.Failed++
	}
	if reached(m, types.StateUnsubscribed) {
		s.Unsubscribed++
	}
}

// Finish computes rates after streaming Adds.
func (s *Summary) Finish() {
	s.computeRates()
}

func (s *Summary) computeRates() {
	s.OpenRate = rate(s.Opened, s.Delivered)
	s.ClickRate = rate(s.Clicked, s.Delivered)
	s.BounceRate = rate(s.Bounced, s.Sent)
}

// reached treats the current state as reached even without a stamp.
func reached(m types.Message, s types.DeliveryState) bool {
	return m.State == s || m.Reached(s)
}

func rate(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
