// Package webhook serves vendor delivery-receipt callbacks over HTTP, plus
// health and Prometheus endpoints.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/lo"

	"github.com/solatis/campaignkeeper/internal/core/auth"
	"github.com/solatis/campaignkeeper/internal/core/metrics"
	"github.com/solatis/campaignkeeper/internal/delivery"
	"github.com/solatis/campaignkeeper/internal/types"
)

// maxBodyBytes caps one callback body.
const maxBodyBytes = 5 << 20

// statusAliases maps vendor event names onto delivery states.
var statusAliases = map[string]types.DeliveryState{
	"processed":        types.StateSent,
	"injection":        types.StateSent,
	"delivery":         types.StateDelivered,
	"open":             types.StateOpened,
	"click":            types.StateClicked,
	"bounce":           types.StateBounced,
	"hard_bounce":      types.StateBounced,
	"dropped":          types.StateFailed,
	"unsubscribe":      types.StateUnsubscribed,
	"list_unsubscribe": types.StateUnsubscribed,
	"spam_report":      types.StateUnsubscribed,
}

// Config configures the router. Health reports readiness for /healthz and
// nil means always healthy; a nil Metrics disables /metrics.
type Config struct {
	Tracker  *delivery.Tracker
	Verifier *auth.SignatureVerifier
	Metrics  *metrics.Metrics
	MaxBatch int
	Health   func(ctx context.Context) error
	Logger   *slog.Logger
}

type handler struct {
	cfg    Config
	logger *slog.Logger
}

// NewRouter builds the HTTP handler.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = types.MaxReceiptBatchSize
	}
	h := &handler{cfg: cfg, logger: logger.With("component", "webhook")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}
	r.Post("/v1/receipts/{vendor}", h.receipts)
	return r
}

// requestLogger logs one line per request through slog.
func (h *handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(started),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Health != nil {
		if err := h.cfg.Health(r.Context()); err != nil {
			h.logger.Warn("health check failed", "error", err)
			respondError(w, http.StatusServiceUnavailable, "unhealthy")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type receiptsResponse struct {
	Applied int               `json:"applied"`
	Results []delivery.Report `json:"results"`
}

func (h *handler) receipts(w http.ResponseWriter, r *http.Request) {
	vendor := chi.URLParam(r, "vendor")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	if err := h.cfg.Verifier.Verify(vendor, body, r.Header.Get(auth.SignatureHeader)); err != nil {
		code := http.StatusUnauthorized
		if errors.Is(err, auth.ErrUnknownVendor) {
			code = http.StatusNotFound
		}
		h.logger.Warn("rejected webhook", "vendor", vendor, "error", err)
		respondError(w, code, err.Error())
		return
	}

	receipts, err := decodeReceipts(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(receipts) == 0 {
		respondError(w, http.StatusBadRequest, "no receipts")
		return
	}
	if len(receipts) > h.cfg.MaxBatch {
		respondError(w, http.StatusRequestEntityTooLarge, "batch exceeds maximum receipts")
		return
	}
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.ObserveBatch("webhook", len(receipts))
	}

	results := h.cfg.Tracker.ApplyValidated(r.Context(), receipts)

	resp := receiptsResponse{Results: lo.Map(results, func(res delivery.Result, _ int) delivery.Report {
		return res.Report()
	})}
	resp.Applied = lo.CountBy(results, func(res delivery.Result) bool {
		return res.Err == nil && res.Outcome == types.OutcomeApplied
	})

	h.logger.Info("webhook receipts processed",
		"vendor", vendor, "receipts", len(receipts), "applied", resp.Applied,
		"request_id", middleware.GetReqID(r.Context()))
	respondJSON(w, http.StatusOK, resp)
}

// decodeReceipts accepts one receipt object or an array of them and
// normalizes vendor status aliases.
func decodeReceipts(body []byte) ([]types.Receipt, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty body")
	}

	var receipts []types.Receipt
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &receipts); err != nil {
			return nil, errors.New("invalid receipt array: " + err.Error())
		}
	} else {
		var one types.Receipt
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, errors.New("invalid receipt: " + err.Error())
		}
		receipts = []types.Receipt{one}
	}

	for i := range receipts {
		receipts[i].Status = normalizeStatus(receipts[i].Status)
	}
	return receipts, nil
}

func normalizeStatus(s types.DeliveryState) types.DeliveryState {
	key := strings.ToLower(strings.TrimSpace(string(s)))
	if alias, ok := statusAliases[key]; ok {
		return alias
	}
	return types.DeliveryState(key)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
