package api

import (
	"context"

	"google.golang.org/grpc"
)

// Client calls campaignkeeper.v1.CampaignAPI over the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CompileSegment(ctx context.Context, req *CompileSegmentRequest, opts ...grpc.CallOption) (*CompileSegmentResponse, error) {
	return invoke[CompileSegmentResponse](ctx, c, "CompileSegment", req, opts)
}

func (c *Client) PreviewSegment(ctx context.Context, req *PreviewSegmentRequest, opts ...grpc.CallOption) (*PreviewSegmentResponse, error) {
	return invoke[PreviewSegmentResponse](ctx, c, "PreviewSegment", req, opts)
}

func (c *Client) GenerateSegment(ctx context.Context, req *GenerateSegmentRequest, opts ...grpc.CallOption) (*GenerateSegmentResponse, error) {
	return invoke[GenerateSegmentResponse](ctx, c, "GenerateSegment", req, opts)
}

func (c *Client) SaveSegment(ctx context.Context, req *SaveSegmentRequest, opts ...grpc.CallOption) (*SaveSegmentResponse, error) {
	return invoke[SaveSegmentResponse](ctx, c, "SaveSegment", req, opts)
}

func (c *Client) ListSegments(ctx context.Context, req *ListSegmentsRequest, opts ...grpc.CallOption) (*ListSegmentsResponse, error) {
	return invoke[ListSegmentsResponse](ctx, c, "ListSegments", req, opts)
}

func (c *Client) CreateCampaign(ctx context.Context, req *CreateCampaignRequest, opts ...grpc.CallOption) (*CreateCampaignResponse, error) {
	return invoke[CreateCampaignResponse](ctx, c, "CreateCampaign", req, opts)
}

func (c *Client) MaterializeCampaign(ctx context.Context, req *MaterializeCampaignRequest, opts ...grpc.CallOption) (*MaterializeCampaignResponse, error) {
	return invoke[MaterializeCampaignResponse](ctx, c, "MaterializeCampaign", req, opts)
}

func (c *Client) RecordDispatch(ctx context.Context, req *RecordDispatchRequest, opts ...grpc.CallOption) (*RecordDispatchResponse, error) {
	return invoke[RecordDispatchResponse](ctx, c, "RecordDispatch", req, opts)
}

func (c *Client) ReportReceipts(ctx context.Context, req *ReportReceiptsRequest, opts ...grpc.CallOption) (*ReportReceiptsResponse, error) {
	return invoke[ReportReceiptsResponse](ctx, c, "ReportReceipts", req, opts)
}

func (c *Client) SummarizeCampaign(ctx context.Context, req *SummarizeCampaignRequest, opts ...grpc.CallOption) (*SummarizeCampaignResponse, error) {
	return invoke[SummarizeCampaignResponse](ctx, c, "SummarizeCampaign", req, opts)
}
