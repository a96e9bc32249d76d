package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/solatis/campaignkeeper/internal/types"
)

func TestValidateReceipt(t *testing.T) {
	tests := []struct {
		name    string
		receipt types.Receipt
		wantErr bool
	}{
		{"valid", receipt(types.StateDelivered, 1), false},
		{"unknown status passes", receipt("teleported", 1), false},
		{"missing vendor id", types.Receipt{Status: types.StateSent, OccurredAt: t0}, true},
		{"missing status", types.Receipt{VendorMessageID: "vm-1", OccurredAt: t0}, true},
		{"missing occurredAt", types.Receipt{VendorMessageID: "vm-1", Status: types.StateSent}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateReceipt(tt.receipt)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateReceipt() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, types.ErrInvalidReceipt) {
				t.Errorf("ValidateReceipt() error = %v, want ErrInvalidReceipt", err)
			}
		})
	}
}

func TestTracker_ApplyValidated(t *testing.T) {
	store := newMemStore(message("vm-1"))
	var observed int
	tr := NewTracker(store, nil, Config{OnResult: func(Result) { observed++ }}, nil)

	receipts := []types.Receipt{
		receiptFor("vm-1", types.StateSent, 1),
		{VendorMessageID: "vm-1", Status: types.StateDelivered},
		receiptFor("vm-1", types.StateDelivered, 2),
	}
	results := tr.ApplyValidated(context.Background(), receipts)

	if len(results) != 3 {
		t.Fatalf("ApplyValidated() returned %d results, want 3", len(results))
	}
	if results[0].Outcome != types.OutcomeApplied || results[2].Outcome != types.OutcomeApplied {
		t.Errorf("ApplyValidated() outcomes = %v, %v, want applied", results[0].Outcome, results[2].Outcome)
	}
	if !errors.Is(results[1].Err, types.ErrInvalidReceipt) {
		t.Errorf("ApplyValidated()[1].Err = %v, want ErrInvalidReceipt", results[1].Err)
	}
	if observed != 3 {
		t.Errorf("OnResult calls = %d, want 3", observed)
	}

	rep := results[1].Report()
	if rep.Error == "" || rep.Outcome != "" {
		t.Errorf("Report() = %+v, want error and no outcome", rep)
	}
}

func TestResult_Report(t *testing.T) {
	r := Result{
		Receipt:   types.Receipt{VendorMessageID: "vm-9", OccurredAt: time.Now()},
		MessageID: "m-9",
		Outcome:   types.OutcomeIgnoredStale,
		State:     types.StateOpened,
	}
	want := Report{VendorMessageID: "vm-9", MessageID: "m-9", Outcome: types.OutcomeIgnoredStale, State: types.StateOpened}
	if got := r.Report(); got != want {
		t.Errorf("Report() = %+v, want %+v", got, want)
	}
}
