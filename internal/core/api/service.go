// Package api provides the gRPC CampaignAPI service: segment authoring and
// preview, campaign materialization, receipt ingestion and analytics.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"google.golang.org/grpc"

	"github.com/solatis/campaignkeeper/internal/campaign"
	"github.com/solatis/campaignkeeper/internal/core/config"
	"github.com/solatis/campaignkeeper/internal/core/metrics"
	"github.com/solatis/campaignkeeper/internal/delivery"
	"github.com/solatis/campaignkeeper/internal/rules"
	"github.com/solatis/campaignkeeper/internal/segment"
	"github.com/solatis/campaignkeeper/internal/types"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "campaignkeeper.v1.CampaignAPI"

// defaultPreviewLimit applies when PreviewSegment omits a limit.
const defaultPreviewLimit = 20

// maxPreviewLimit caps ids returned by one preview.
const maxPreviewLimit = 1000

// maxPreviewOffset caps how deep a preview may page.
const maxPreviewOffset = 1_000_000

// CampaignAPIServer is the server API of campaignkeeper.v1.CampaignAPI.
type CampaignAPIServer interface {
	CompileSegment(context.Context, *CompileSegmentRequest) (*CompileSegmentResponse, error)
	PreviewSegment(context.Context, *PreviewSegmentRequest) (*PreviewSegmentResponse, error)
	GenerateSegment(context.Context, *GenerateSegmentRequest) (*GenerateSegmentResponse, error)
	SaveSegment(context.Context, *SaveSegmentRequest) (*SaveSegmentResponse, error)
	ListSegments(context.Context, *ListSegmentsRequest) (*ListSegmentsResponse, error)
	CreateCampaign(context.Context, *CreateCampaignRequest) (*CreateCampaignResponse, error)
	MaterializeCampaign(context.Context, *MaterializeCampaignRequest) (*MaterializeCampaignResponse, error)
	RecordDispatch(context.Context, *RecordDispatchRequest) (*RecordDispatchResponse, error)
	ReportReceipts(context.Context, *ReportReceiptsRequest) (*ReportReceiptsResponse, error)
	SummarizeCampaign(context.Context, *SummarizeCampaignRequest) (*SummarizeCampaignResponse, error)
}

// SegmentRepository persists segment definitions. Implemented by *db.SegmentStore.
type SegmentRepository interface {
	Create(ctx context.Context, name string, tree types.Node) (types.SegmentDefinition, error)
	Update(ctx context.Context, id types.SegmentID, name string, tree types.Node) error
	Get(ctx context.Context, id types.SegmentID) (types.SegmentDefinition, error)
	List(ctx context.Context) ([]types.SegmentDefinition, error)
}

// CampaignRepository persists campaigns. Implemented by *db.CampaignStore.
type CampaignRepository interface {
	Create(ctx context.Context, name string, segmentID types.SegmentID, channel types.Channel) (types.Campaign, error)
	Get(ctx context.Context, id types.CampaignID) (types.Campaign, error)
}

// MessageScanner streams a campaign's messages. Implemented by *db.MessageStore.
type MessageScanner interface {
	ScanCampaign(ctx context.Context, id types.CampaignID, batchSize int, fn func([]types.Message) error) error
}

// Deps are the collaborators of a Service. Translator and Metrics may be nil.
type Deps struct {
	Engine       *rules.Engine
	Evaluator    *segment.Evaluator
	Population   segment.Population
	Translator   rules.Translator
	Segments     SegmentRepository
	Campaigns    CampaignRepository
	Messages     MessageScanner
	Materializer *campaign.Materializer
	Tracker      *delivery.Tracker
	Metrics      *metrics.Metrics
}

// Service implements CampaignAPIServer.
// Thin orchestration layer delegating to rules, segment, delivery and campaign.
type Service struct {
	deps         Deps
	cfg          *config.CampaignAPIConfig
	logger       *slog.Logger
	jsonlMutexes map[string]*sync.Mutex
	mutexLock    sync.Mutex
}

var _ CampaignAPIServer = (*Service)(nil)

// NewService creates the service. Auto-creates the receipt audit directory.
func NewService(deps Deps, cfg *config.CampaignAPIConfig, logger *slog.Logger) (*Service, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("cfg cannot be nil")
	case deps.Engine == nil:
		return nil, fmt.Errorf("engine cannot be nil")
	case deps.Evaluator == nil || deps.Population == nil:
		return nil, fmt.Errorf("evaluator and population cannot be nil")
	case deps.Segments == nil || deps.Campaigns == nil || deps.Messages == nil:
		return nil, fmt.Errorf("repositories cannot be nil")
	case deps.Materializer == nil || deps.Tracker == nil:
		return nil, fmt.Errorf("materializer and tracker cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Join(cfg.DataDir, "receipts"), 0755); err != nil {
		return nil, err
	}

	return &Service{
		deps:         deps,
		cfg:          cfg,
		logger:       logger.With("component", "api"),
		jsonlMutexes: make(map[string]*sync.Mutex),
	}, nil
}

// getJSONLMutex returns the mutex for a daily audit file, creating it on
// first use. The map grows by one entry per day.
func (s *Service) getJSONLMutex(filename string) *sync.Mutex {
	s.mutexLock.Lock()
	defer s.mutexLock.Unlock()

	if _, ok := s.jsonlMutexes[filename]; !ok {
		s.jsonlMutexes[filename] = &sync.Mutex{}
	}
	return s.jsonlMutexes[filename]
}

// RegisterCampaignAPIServer registers srv on s.
func RegisterCampaignAPIServer(s grpc.ServiceRegistrar, srv CampaignAPIServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes campaignkeeper.v1.CampaignAPI for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CampaignAPIServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CompileSegment", CampaignAPIServer.CompileSegment),
		unary("PreviewSegment", CampaignAPIServer.PreviewSegment),
		unary("GenerateSegment", CampaignAPIServer.GenerateSegment),
		unary("SaveSegment", CampaignAPIServer.SaveSegment),
		unary("ListSegments", CampaignAPIServer.ListSegments),
		unary("CreateCampaign", CampaignAPIServer.CreateCampaign),
		unary("MaterializeCampaign", CampaignAPIServer.MaterializeCampaign),
		unary("RecordDispatch", CampaignAPIServer.RecordDispatch),
		unary("ReportReceipts", CampaignAPIServer.ReportReceipts),
		unary("SummarizeCampaign", CampaignAPIServer.SummarizeCampaign),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "campaignkeeper/v1/campaign_api",
}

// unary builds the MethodDesc for one request/response method.
func unary[Req, Resp any](name string, call func(CampaignAPIServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			server := srv.(CampaignAPIServer)
			if interceptor == nil {
				return call(server, ctx, req)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
				return call(server, ctx, req.(*Req))
			})
		},
	}
}
