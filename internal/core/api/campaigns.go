package api

import (
	"context"
	"strings"
	"time"

	"github.com/solatis/campaignkeeper/internal/delivery"
	"github.com/solatis/campaignkeeper/internal/types"
)

// summaryBatchSize bounds messages held per ScanCampaign batch.
const summaryBatchSize = 1000

// CreateCampaign stores a campaign targeting an existing saved segment.
func (s *Service) CreateCampaign(ctx context.Context, req *CreateCampaignRequest) (*CreateCampaignResponse, error) {
	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		return nil, invalidArgument("name is required")
	case req.SegmentID == "":
		return nil, invalidArgument("segmentId is required")
	case !req.Channel.Valid():
		return nil, invalidArgument("unknown channel %q", req.Channel)
	}

	if _, err := s.deps.Segments.Get(ctx, req.SegmentID); err != nil {
		return nil, s.toStatus("create campaign", err)
	}

	c, err := s.deps.Campaigns.Create(ctx, name, req.SegmentID, req.Channel)
	if err != nil {
		return nil, s.toStatus("create campaign", err)
	}
	s.logger.Info("campaign created", "campaign_id", c.ID, "segment_id", c.SegmentID, "channel", c.Channel)
	return &CreateCampaignResponse{Campaign: c}, nil
}

// MaterializeCampaign queues a message for every current segment member.
// Safe to call repeatedly; existing recipients are not duplicated.
func (s *Service) MaterializeCampaign(ctx context.Context, req *MaterializeCampaignRequest) (*MaterializeCampaignResponse, error) {
	if _, err := types.ParseCampaignID(string(req.CampaignID)); err != nil {
		return nil, invalidArgument("campaignId must be a UUID: %v", err)
	}

	started := time.Now()
	res, err := s.deps.Materializer.Materialize(ctx, req.CampaignID)
	s.observe("materialize", started, err)
	if err != nil {
		return nil, s.toStatus("materialize campaign", err)
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.AddMaterialized(res.Created)
	}
	return &MaterializeCampaignResponse{Result: res}, nil
}

// RecordDispatch attaches the vendor's message id once the vendor accepted a
// send. Receipts are matched on this id.
func (s *Service) RecordDispatch(ctx context.Context, req *RecordDispatchRequest) (*RecordDispatchResponse, error) {
	if _, err := types.ParseMessageID(string(req.MessageID)); err != nil {
		return nil, invalidArgument("messageId must be a UUID: %v", err)
	}
	if req.VendorMessageID == "" {
		return nil, invalidArgument("vendorMessageId is required")
	}
	if err := s.deps.Materializer.RecordDispatch(ctx, req.MessageID, req.VendorMessageID); err != nil {
		return nil, s.toStatus("record dispatch", err)
	}
	return &RecordDispatchResponse{}, nil
}

// SummarizeCampaign aggregates delivery milestones across a campaign.
func (s *Service) SummarizeCampaign(ctx context.Context, req *SummarizeCampaignRequest) (*SummarizeCampaignResponse, error) {
	if _, err := types.ParseCampaignID(string(req.CampaignID)); err != nil {
		return nil, invalidArgument("campaignId must be a UUID: %v", err)
	}
	if _, err := s.deps.Campaigns.Get(ctx, req.CampaignID); err != nil {
		return nil, s.toStatus("summarize campaign", err)
	}

	var summary delivery.Summary
	err := s.deps.Messages.ScanCampaign(ctx, req.CampaignID, summaryBatchSize, func(batch []types.Message) error {
		for _, m := range batch {
			summary.Add(m)
		}
		return nil
	})
	if err != nil {
		return nil, s.toStatus("summarize campaign", err)
	}
	summary.Finish()

	return &SummarizeCampaignResponse{CampaignID: req.CampaignID, Summary: summary}, nil
}
