package delivery

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/solatis/campaignkeeper/internal/types"
)

var validate = validator.New()

// ValidateReceipt checks a receipt's shape before it reaches the tracker.
// Unknown statuses pass: the state machine rejects them as invalid
// transitions, which is an outcome rather than an error.
func ValidateReceipt(r types.Receipt) error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidReceipt, err)
	}
	return nil
}

// Report is the wire form of a Result.
type Report struct {
	VendorMessageID types.VendorMessageID `json:"vendorMessageId"`
	MessageID       types.MessageID       `json:"messageId,omitempty"`
	Outcome         types.ReceiptOutcome  `json:"outcome,omitempty"`
	State           types.DeliveryState   `json:"state,omitempty"`
	Error           string                `json:"error,omitempty"`
}

// Report converts r to its wire form.
func (r Result) Report() Report {
	rep := Report{
		VendorMessageID: r.Receipt.VendorMessageID,
		MessageID:       r.MessageID,
		Outcome:         r.Outcome,
		State:           r.State,
	}
	if r.Err != nil {
		rep.Error = r.Err.Error()
	}
	return rep
}

// ApplyValidated validates every receipt, applies the valid ones as one
// batch and returns one Result per input receipt, in input order. Invalid
// receipts get an ErrInvalidReceipt result and never reach the store.
func (t *Tracker) ApplyValidated(ctx context.Context, receipts []types.Receipt) []Result {
	results := make([]Result, len(receipts))
	valid := make([]types.Receipt, 0, len(receipts))
	index := make([]int, 0, len(receipts))

	for i, r := range receipts {
		if err := ValidateReceipt(r); err != nil {
			results[i] = Result{Receipt: r, Err: err}
			if t.onResult != nil {
				t.onResult(results[i])
			}
			continue
		}
		valid = append(valid, r)
		index = append(index, i)
	}

	for j, res := range t.ApplyBatch(ctx, valid) {
		results[index[j]] = res
	}
	return results
}
