package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/campaignkeeper/internal/core/auth"
	"github.com/solatis/campaignkeeper/internal/core/metrics"
	"github.com/solatis/campaignkeeper/internal/delivery"
	"github.com/solatis/campaignkeeper/internal/types"
)

var secret = []byte(strings.Repeat("w", 32))

// memStore is a delivery.Store over a map keyed by vendor id.
type memStore struct {
	mu       sync.Mutex
	messages map[types.VendorMessageID]types.Message
}

func (s *memStore) GetByVendorID(_ context.Context, id types.VendorMessageID) (types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return types.Message{}, types.ErrMessageNotFound
	}
	return m.Clone(), nil
}

func (s *memStore) get(id types.VendorMessageID) types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[id]
}

func (s *memStore) UpdateDelivery(_ context.Context, m types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.messages[m.VendorMessageID].Version != m.Version {
		return types.ErrVersionConflict
	}
	m.Version++
	s.messages[m.VendorMessageID] = m
	return nil
}

type testServer struct {
	srv   *httptest.Server
	store *memStore
}

func newTestServer(t *testing.T, health func(context.Context) error) *testServer {
	t.Helper()

	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	store := &memStore{messages: map[types.VendorMessageID]types.Message{}}
	for _, id := range []types.VendorMessageID{"vm-1", "vm-2"} {
		m := delivery.NewQueued(types.NewCampaignID(), types.CustomerID("c-"+string(id)), types.ChannelEmail, at)
		m.VendorMessageID = id
		store.messages[id] = m
	}

	m := metrics.New()
	router := NewRouter(Config{
		Tracker:  delivery.NewTracker(store, nil, delivery.Config{OnResult: m.ObserveReceipt}, nil),
		Verifier: auth.NewSignatureVerifier(map[string][]byte{"mailer": secret}),
		Metrics:  m,
		MaxBatch: 3,
		Health:   health,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, store: store}
}

func (ts *testServer) post(t *testing.T, vendor, body, signature string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/v1/receipts/"+vendor, bytes.NewBufferString(body))
	require.NoError(t, err)
	if signature != "" {
		req.Header.Set(auth.SignatureHeader, signature)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func signed(body string) string {
	return auth.Sign(secret, []byte(body))
}

func TestReceipts_SingleObject(t *testing.T) {
	ts := newTestServer(t, nil)
	body := `{"vendorMessageId": "vm-1", "status": "delivered", "occurredAt": "2025-06-01T09:00:00Z"}`

	resp, out := ts.post(t, "mailer", body, signed(body))
	require.Equal(t, http.StatusOK, resp.StatusCode, out)
	assert.Equal(t, 1.0, out["applied"])

	m := ts.store.get("vm-1")
	assert.Equal(t, types.StateDelivered, m.State)
	assert.True(t, m.Stamps[types.StateSent].Inferred)
	assert.NotEmpty(t, resp.Header.Get("Content-Type"))
}

func TestReceipts_ArrayWithAliasesAndFailures(t *testing.T) {
	ts := newTestServer(t, nil)
	body := `[
		{"vendorMessageId": "vm-2", "status": "open", "occurredAt": "2025-06-01T09:05:00Z"},
		{"vendorMessageId": "vm-404", "status": "delivered", "occurredAt": "2025-06-01T09:00:00Z"},
		{"vendorMessageId": "vm-1", "status": "Bounce"}
	]`

	resp, out := ts.post(t, "mailer", body, signed(body))
	require.Equal(t, http.StatusOK, resp.StatusCode, out)

	results := out["results"].([]any)
	require.Len(t, results, 3)
	first := results[0].(map[string]any)
	assert.Equal(t, string(types.OutcomeApplied), first["outcome"])
	assert.Equal(t, string(types.StateOpened), first["state"])
	assert.Contains(t, results[1].(map[string]any)["error"], "message not found")
	assert.Contains(t, results[2].(map[string]any)["error"], "invalid receipt")
	assert.Equal(t, 1.0, out["applied"])

	assert.Equal(t, types.StateQueued, ts.store.get("vm-1").State, "invalid receipt never applied")
}

func TestReceipts_Rejections(t *testing.T) {
	ts := newTestServer(t, nil)
	body := `{"vendorMessageId": "vm-1", "status": "sent", "occurredAt": "2025-06-01T09:00:00Z"}`
	four := `[` + strings.Repeat(body+",", 3) + body + `]`

	tests := []struct {
		name      string
		vendor    string
		body      string
		signature string
		want      int
	}{
		{"unknown vendor", "smsco", body, signed(body), http.StatusNotFound},
		{"missing signature", "mailer", body, "", http.StatusUnauthorized},
		{"bad signature", "mailer", body, signed(body + " "), http.StatusUnauthorized},
		{"malformed json", "mailer", `{"vendorMessageId":`, signed(`{"vendorMessageId":`), http.StatusBadRequest},
		{"empty array", "mailer", `[]`, signed(`[]`), http.StatusBadRequest},
		{"over batch limit", "mailer", four, signed(four), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := ts.post(t, tt.vendor, tt.body, tt.signature)
			if resp.StatusCode != tt.want {
				t.Errorf("POST status = %v, want %v (%v)", resp.StatusCode, tt.want, out)
			}
			assert.NotEmpty(t, out["error"])
		})
	}
	assert.Equal(t, types.StateQueued, ts.store.get("vm-1").State)
}

func TestHealthAndMetrics(t *testing.T) {
	var down atomic.Bool
	ts := newTestServer(t, func(context.Context) error {
		if down.Load() {
			return errors.New("db down")
		}
		return nil
	})

	resp, err := http.Get(ts.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down.Store(true)
	resp, err = http.Get(ts.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	body := `{"vendorMessageId": "vm-1", "status": "sent", "occurredAt": "2025-06-01T09:00:00Z"}`
	ts.post(t, "mailer", body, signed(body))

	resp, err = http.Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `campaignkeeper_receipts_total{outcome="applied"} 1`)
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   types.DeliveryState
		want types.DeliveryState
	}{
		{"delivered", types.StateDelivered},
		{" Open ", types.StateOpened},
		{"hard_bounce", types.StateBounced},
		{"spam_report", types.StateUnsubscribed},
		{"teleported", "teleported"},
	}
	for _, tt := range tests {
		if got := normalizeStatus(tt.in); got != tt.want {
			t.Errorf("normalizeStatus(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
