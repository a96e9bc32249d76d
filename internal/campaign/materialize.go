// Package campaign turns a campaign's segment into per-recipient messages.
package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/solatis/campaignkeeper/internal/delivery"
	"github.com/solatis/campaignkeeper/internal/rules"
	"github.com/solatis/campaignkeeper/internal/segment"
	"github.com/solatis/campaignkeeper/internal/types"
)

/*
 * Materialization.
 *
 * Materialize resolves the campaign's persisted segment tree against the
 * current catalog (CompilePersisted: drift is fatal, never a silently smaller
 * audience), selects every matching customer in id order and inserts one
 * queued Message per recipient. Inserts are idempotent per (campaign,
 * customer), so re-running after a partial failure or after new customers
 * joined the segment only adds the missing recipients.
 *
 * RecordDispatch attaches the vendor message id once the vendor accepts a
 * message; receipts are keyed by it from then on.
 */

// insertChunk bounds one InsertQueued transaction.
const insertChunk = 500

// CampaignSource loads campaigns.
type CampaignSource interface {
	Get(ctx context.Context, id types.CampaignID) (types.Campaign, error)
}

// SegmentSource loads persisted segment definitions.
type SegmentSource interface {
	Get(ctx context.Context, id types.SegmentID) (types.SegmentDefinition, error)
}

// MessageSink stores messages created by materialization and dispatch.
type MessageSink interface {
	InsertQueued(ctx context.Context, msgs []types.Message) (int, error)
	SetVendorMessageID(ctx context.Context, id types.MessageID, vendorID types.VendorMessageID) error
}

// Deps are the collaborators of a Materializer.
type Deps struct {
	Engine     *rules.Engine
	Evaluator  *segment.Evaluator
	Population segment.Population
	Campaigns  CampaignSource
	Segments   SegmentSource
	Messages   MessageSink
}

// Result reports one materialization.
type Result struct {
	CampaignID  types.CampaignID `json:"campaignId"`
	SegmentID   types.SegmentID  `json:"segmentId"`
	Description string           `json:"description"`
	Recipients  int              `json:"recipients"`
	Created     int              `json:"created"`
	Existing    int              `json:"existing"`
}

// Materializer creates queued messages for campaigns.
type Materializer struct {
	deps   Deps
	now    func() time.Time
	logger *slog.Logger
}

// NewMaterializer creates a materializer.
func NewMaterializer(deps Deps, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{deps: deps, now: time.Now, logger: logger.With("component", "campaign")}
}

// Materialize creates a queued message for every current member of the
// campaign's segment that does not have one yet.
func (m *Materializer) Materialize(ctx context.Context, id types.CampaignID) (Result, error) {
	c, err := m.deps.Campaigns.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	def, err := m.deps.Segments.Get(ctx, c.SegmentID)
	if err != nil {
		return Result{}, err
	}

	seg, err := m.deps.Engine.CompilePersisted(def.Tree)
	if err != nil {
		return Result{}, fmt.Errorf("campaign %s segment %s: %w", c.ID, def.ID, err)
	}

	recipients, err := m.deps.Evaluator.Select(ctx, seg.Predicate, m.deps.Population, segment.SelectOptions{})
	if err != nil {
		return Result{}, fmt.Errorf("campaign %s: %w", c.ID, err)
	}

	res := Result{
		CampaignID:  c.ID,
		SegmentID:   def.ID,
		Description: seg.Description,
		Recipients:  len(recipients),
	}

	createdAt := m.now().UTC()
	for _, chunk := range lo.Chunk(recipients, insertChunk) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		msgs := lo.Map(chunk, func(customerID types.CustomerID, _ int) types.Message {
			return delivery.NewQueued(c.ID, customerID, c.Channel, createdAt)
		})
		n, err := m.deps.Messages.InsertQueued(ctx, msgs)
		if err != nil {
			return res, fmt.Errorf("campaign %s: %w", c.ID, err)
		}
		res.Created += n
	}
	res.Existing = res.Recipients - res.Created

	m.logger.Info("campaign materialized",
		"campaign_id", c.ID,
		"segment_id", def.ID,
		"recipients", res.Recipients,
		"created", res.Created,
		"existing", res.Existing)
	return res, nil
}

// RecordDispatch attaches the vendor's id to a message.
func (m *Materializer) RecordDispatch(ctx context.Context, id types.MessageID, vendorID types.VendorMessageID) error {
	if vendorID == "" {
		return fmt.Errorf("vendor message id required for %s", id)
	}
	if err := m.deps.Messages.SetVendorMessageID(ctx, id, vendorID); err != nil {
		return err
	}
	m.logger.Debug("message dispatched", "message_id", id, "vendor_message_id", vendorID)
	return nil
}
