package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/campaignkeeper/internal/delivery"
	"github.com/solatis/campaignkeeper/internal/types"
)

func TestObserveReceipt(t *testing.T) {
	m := New()

	m.ObserveReceipt(delivery.Result{Outcome: types.OutcomeApplied})
	m.ObserveReceipt(delivery.Result{Outcome: types.OutcomeApplied})
	m.ObserveReceipt(delivery.Result{Outcome: types.OutcomeIgnoredDuplicate})
	m.ObserveReceipt(delivery.Result{Err: types.ErrMessageNotFound})

	tests := []struct {
		outcome string
		want    float64
	}{
		{string(types.OutcomeApplied), 2},
		{string(types.OutcomeIgnoredDuplicate), 1},
		{"error", 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(m.receipts.WithLabelValues(tt.outcome)); got != tt.want {
			t.Errorf("receipts_total{outcome=%q} = %v, want %v", tt.outcome, got, tt.want)
		}
	}
}

func TestObserveEvaluation(t *testing.T) {
	m := New()
	m.ObserveEvaluation("count", time.Now(), nil)
	m.ObserveEvaluation("count", time.Now(), errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.evaluations.WithLabelValues("count", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evaluations.WithLabelValues("count", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.evalDuration))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveBatch("webhook", 3)
	m.AddMaterialized(7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, "campaignkeeper_messages_materialized_total 7"), text)
	assert.True(t, strings.Contains(text, `campaignkeeper_receipt_batch_size_count{source="webhook"} 1`), text)
	assert.True(t, strings.Contains(text, "go_goroutines"), text)
}
