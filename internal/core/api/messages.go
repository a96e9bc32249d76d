package api

import (
	"encoding/json"

	"github.com/solatis/campaignkeeper/internal/campaign"
	"github.com/solatis/campaignkeeper/internal/delivery"
	"github.com/solatis/campaignkeeper/internal/rules"
	"github.com/solatis/campaignkeeper/internal/types"
)

// Request and response messages of campaignkeeper.v1.CampaignAPI. Rule
// trees travel as raw JSON and are decoded once with types.DecodeNode.

type CompileSegmentRequest struct {
	Tree json.RawMessage `json:"tree"`
}

type CompileSegmentResponse struct {
	Valid       bool                     `json:"valid"`
	Errors      []rules.ValidationError  `json:"errors,omitempty"`
	Description string                   `json:"description,omitempty"`
	Cost        int                      `json:"cost,omitempty"`
	Fields      []string                 `json:"fields,omitempty"`
}

// PreviewSegmentRequest previews either an inline tree or a saved segment.
type PreviewSegmentRequest struct {
	Tree      json.RawMessage `json:"tree,omitempty"`
	SegmentID types.SegmentID `json:"segmentId,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Offset    int             `json:"offset,omitempty"`
	SortBy    string          `json:"sortBy,omitempty"` // "field" or "-field"
}

type PreviewSegmentResponse struct {
	Count       int                `json:"count"`
	CustomerIDs []types.CustomerID `json:"customerIds"`
	Description string             `json:"description"`
}

type GenerateSegmentRequest struct {
	Text string `json:"text"`
}

type GenerateSegmentResponse struct {
	Tree        json.RawMessage          `json:"tree"`
	Valid       bool                     `json:"valid"`
	Errors      []rules.ValidationError  `json:"errors,omitempty"`
	Description string                   `json:"description,omitempty"`
}

// SaveSegmentRequest creates a segment, or replaces one when ID is set.
type SaveSegmentRequest struct {
	ID   types.SegmentID `json:"id,omitempty"`
	Name string          `json:"name"`
	Tree json.RawMessage `json:"tree"`
}

type SaveSegmentResponse struct {
	Segment     types.SegmentDefinition `json:"segment"`
	Description string                  `json:"description"`
}

type ListSegmentsRequest struct {
	IfNoneMatch string `json:"ifNoneMatch,omitempty"`
}

type ListSegmentsResponse struct {
	Segments    []types.SegmentDefinition `json:"segments,omitempty"`
	ETag        string                    `json:"etag"`
	NotModified bool                      `json:"notModified,omitempty"`
}

type CreateCampaignRequest struct {
	Name      string          `json:"name"`
	SegmentID types.SegmentID `json:"segmentId"`
	Channel   types.Channel   `json:"channel"`
}

type CreateCampaignResponse struct {
	Campaign types.Campaign `json:"campaign"`
}

type MaterializeCampaignRequest struct {
	CampaignID types.CampaignID `json:"campaignId"`
}

type MaterializeCampaignResponse struct {
	Result campaign.Result `json:"result"`
}

type RecordDispatchRequest struct {
	MessageID       types.MessageID       `json:"messageId"`
	VendorMessageID types.VendorMessageID `json:"vendorMessageId"`
}

type RecordDispatchResponse struct{}

type ReportReceiptsRequest struct {
	Receipts []types.Receipt `json:"receipts"`
}

type ReportReceiptsResponse struct {
	Applied int               `json:"applied"`
	Results []delivery.Report `json:"results"`
}

type SummarizeCampaignRequest struct {
	CampaignID types.CampaignID `json:"campaignId"`
}

type SummarizeCampaignResponse struct {
	CampaignID types.CampaignID `json:"campaignId"`
	Summary    delivery.Summary `json:"summary"`
}
