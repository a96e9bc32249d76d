package api

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/solatis/campaignkeeper/internal/delivery"
	"github.com/solatis/campaignkeeper/internal/types"
)

// auditRecord is one line of the daily receipt audit file.
type auditRecord struct {
	ReceivedAt time.Time            `json:"receivedAt"`
	Receipt    types.Receipt        `json:"receipt"`
	Outcome    types.ReceiptOutcome `json:"outcome"`
	MessageID  types.MessageID      `json:"messageId"`
}

// ReportReceipts applies a batch of vendor receipts.
// Receipts succeed or fail independently; results are in request order.
// The JSONL audit is a best-effort debugging aid, not authoritative: the
// message table is the source of truth.
func (s *Service) ReportReceipts(ctx context.Context, req *ReportReceiptsRequest) (*ReportReceiptsResponse, error) {
	if len(req.Receipts) == 0 {
		return nil, invalidArgument("receipts are required")
	}
	if len(req.Receipts) > s.cfg.MaxBatchSize {
		return nil, invalidArgument("batch size exceeds maximum of %d receipts", s.cfg.MaxBatchSize)
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveBatch("grpc", len(req.Receipts))
	}

	// All receipts in a batch go to the same file even if processing spans midnight.
	now := time.Now().UTC()
	filename := filepath.Join(s.cfg.DataDir, "receipts", now.Format("2006-01-02.jsonl"))

	results := s.deps.Tracker.ApplyValidated(ctx, req.Receipts)

	resp := &ReportReceiptsResponse{Results: make([]delivery.Report, len(results))}
	for i, r := range results {
		resp.Results[i] = r.Report()
		if r.Err == nil && r.Outcome == types.OutcomeApplied {
			resp.Applied++
		}
	}

	s.writeAudit(filename, s.getJSONLMutex(filename), now, results)
	return resp, nil
}

// writeAudit appends every receipt that reached a message. Failures are
// logged and otherwise ignored.
func (s *Service) writeAudit(filename string, mu *sync.Mutex, receivedAt time.Time, results []delivery.Result) {
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		s.logger.Warn("receipt audit unavailable", "file", filename, "error", err)
		return
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		_ = enc.Encode(auditRecord{
			ReceivedAt: receivedAt,
			Receipt:    r.Receipt,
			Outcome:    r.Outcome,
			MessageID:  r.MessageID,
		})
	}
}
