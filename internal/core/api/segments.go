package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/solatis/campaignkeeper/internal/rules"
	"github.com/solatis/campaignkeeper/internal/segment"
	"github.com/solatis/campaignkeeper/internal/types"
)

// decodeTree parses a request tree. Shape errors are INVALID_ARGUMENT;
// semantic problems are left to the compiler.
func decodeTree(raw json.RawMessage) (types.Node, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, invalidArgument("tree is required")
	}
	node, err := types.DecodeNode(raw)
	if err != nil {
		return nil, invalidArgument("%v", err)
	}
	return node, nil
}

// CompileSegment validates a tree. Validation problems are a normal result
// (Valid=false with every error), not an RPC failure.
func (s *Service) CompileSegment(ctx context.Context, req *CompileSegmentRequest) (*CompileSegmentResponse, error) {
	tree, err := decodeTree(req.Tree)
	if err != nil {
		return nil, err
	}

	seg, err := s.deps.Engine.Compile(tree)
	if err != nil {
		var verrs rules.ValidationErrors
		if errors.As(err, &verrs) {
			return &CompileSegmentResponse{Valid: false, Errors: verrs}, nil
		}
		return nil, s.toStatus("compile segment", err)
	}

	return &CompileSegmentResponse{
		Valid:       true,
		Description: seg.Description,
		Cost:        seg.Cost,
		Fields:      seg.Fields,
	}, nil
}

// PreviewSegment counts the audience of an inline tree or saved segment and
// returns one page of matching customer ids.
func (s *Service) PreviewSegment(ctx context.Context, req *PreviewSegmentRequest) (*PreviewSegmentResponse, error) {
	hasTree := len(req.Tree) > 0 && string(req.Tree) != "null"
	if hasTree == (req.SegmentID != "") {
		return nil, invalidArgument("exactly one of tree or segmentId is required")
	}

	limit := req.Limit
	switch {
	case limit < 0 || req.Offset < 0:
		return nil, invalidArgument("limit and offset must not be negative")
	case req.Offset > maxPreviewOffset:
		return nil, invalidArgument("offset exceeds maximum of %d", maxPreviewOffset)
	case limit == 0:
		limit = defaultPreviewLimit
	case limit > maxPreviewLimit:
		return nil, invalidArgument("limit exceeds maximum of %d", maxPreviewLimit)
	}

	sortKey, err := s.deps.Engine.Catalog().ParseSortKey(req.SortBy)
	if err != nil {
		return nil, s.toStatus("preview segment", err)
	}

	seg, err := s.resolveSegment(ctx, req.Tree, req.SegmentID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	resp, err := s.preview(ctx, seg, segment.SelectOptions{Limit: limit, Offset: req.Offset, SortKey: sortKey})
	s.observe("preview", started, err)
	if err != nil {
		return nil, s.toStatus("preview segment", err)
	}
	return resp, nil
}

func (s *Service) preview(ctx context.Context, seg *rules.Segment, opts segment.SelectOptions) (*PreviewSegmentResponse, error) {
	count, err := s.deps.Evaluator.Count(ctx, seg.Predicate, s.deps.Population)
	if err != nil {
		return nil, err
	}
	ids, err := s.deps.Evaluator.Select(ctx, seg.Predicate, s.deps.Population, opts)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []types.CustomerID{}
	}
	return &PreviewSegmentResponse{Count: count, CustomerIDs: ids, Description: seg.Description}, nil
}

// resolveSegment compiles an inline tree, or a saved segment through
// CompilePersisted so catalog drift surfaces as FAILED_PRECONDITION.
func (s *Service) resolveSegment(ctx context.Context, raw json.RawMessage, id types.SegmentID) (*rules.Segment, error) {
	if id != "" {
		def, err := s.deps.Segments.Get(ctx, id)
		if err != nil {
			return nil, s.toStatus("load segment", err)
		}
		seg, err := s.deps.Engine.CompilePersisted(def.Tree)
		if err != nil {
			return nil, s.toStatus("compile segment", err)
		}
		return seg, nil
	}

	tree, err := decodeTree(raw)
	if err != nil {
		return nil, err
	}
	seg, err := s.deps.Engine.Compile(tree)
	if err != nil {
		return nil, s.toStatus("compile segment", err)
	}
	return seg, nil
}

// GenerateSegment asks the rule generator for a tree and validates it. The
// generated tree comes back even when invalid so the caller can fix it.
func (s *Service) GenerateSegment(ctx context.Context, req *GenerateSegmentRequest) (*GenerateSegmentResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, invalidArgument("text is required")
	}
	if s.deps.Translator == nil {
		return nil, s.toStatus("generate segment", types.ErrTranslatorUnavailable)
	}

	tree, seg, err := s.deps.Engine.CompileText(ctx, s.deps.Translator, req.Text)
	var verrs rules.ValidationErrors
	if err != nil && !errors.As(err, &verrs) {
		return nil, s.toStatus("generate segment", err)
	}

	raw, merr := json.Marshal(tree)
	if merr != nil {
		return nil, s.toStatus("generate segment", merr)
	}
	resp := &GenerateSegmentResponse{Tree: raw, Valid: seg != nil, Errors: verrs}
	if seg != nil {
		resp.Description = seg.Description
	}
	return resp, nil
}

// SaveSegment validates and stores a segment. Only valid trees are saved, so
// a stored tree failing later can only mean catalog drift.
func (s *Service) SaveSegment(ctx context.Context, req *SaveSegmentRequest) (*SaveSegmentResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalidArgument("name is required")
	}
	tree, err := decodeTree(req.Tree)
	if err != nil {
		return nil, err
	}
	seg, err := s.deps.Engine.Compile(tree)
	if err != nil {
		return nil, s.toStatus("save segment", err)
	}

	var def types.SegmentDefinition
	if req.ID == "" {
		def, err = s.deps.Segments.Create(ctx, name, tree)
	} else if err = s.deps.Segments.Update(ctx, req.ID, name, tree); err == nil {
		def, err = s.deps.Segments.Get(ctx, req.ID)
	}
	if err != nil {
		return nil, s.toStatus("save segment", err)
	}

	s.logger.Info("segment saved", "segment_id", def.ID, "name", name, "cost", seg.Cost)
	return &SaveSegmentResponse{Segment: def, Description: seg.Description}, nil
}

// ListSegments returns every saved segment with an ETag over ids and update
// times. A matching IfNoneMatch returns NotModified and no segments.
func (s *Service) ListSegments(ctx context.Context, req *ListSegmentsRequest) (*ListSegmentsResponse, error) {
	defs, err := s.deps.Segments.List(ctx)
	if err != nil {
		return nil, s.toStatus("list segments", err)
	}

	etag := computeETag(defs)
	if req.IfNoneMatch != "" && req.IfNoneMatch == etag {
		return &ListSegmentsResponse{ETag: etag, NotModified: true}, nil
	}
	return &ListSegmentsResponse{Segments: defs, ETag: etag}, nil
}

// computeETag hashes sorted segment ids and update times, so the same
// segment set always yields the same tag.
func computeETag(defs []types.SegmentDefinition) string {
	keys := make([]string, len(defs))
	for i, d := range defs {
		keys[i] = string(d.ID) + "@" + d.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Service) observe(op string, started time.Time, err error) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveEvaluation(op, started, err)
	}
}
