package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/solatis/campaignkeeper/internal/types"
)

// SegmentStore persists named rule trees. Trees are stored as JSON in the
// shape types.DecodeNode reads.
type SegmentStore struct {
	q   *Queries
	now func() time.Time
}

// NewSegmentStore creates a segment store over loaded queries.
func NewSegmentStore(q *Queries) *SegmentStore {
	return &SegmentStore{q: q, now: time.Now}
}

type segmentRow struct {
	SegmentID string `db:"segment_id"`
	Name      string `db:"name"`
	Tree      string `db:"tree"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

func (r segmentRow) toDefinition() (types.SegmentDefinition, error) {
	tree, err := types.DecodeNode([]byte(r.Tree))
	if err != nil {
		return types.SegmentDefinition{}, fmt.Errorf("segment %s: %w", r.SegmentID, err)
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return types.SegmentDefinition{}, err
	}
	updated, err := parseTime(r.UpdatedAt)
	if err != nil {
		return types.SegmentDefinition{}, err
	}
	return types.SegmentDefinition{
		ID:        types.SegmentID(r.SegmentID),
		Name:      r.Name,
		Tree:      tree,
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

// Create stores a new segment. Callers validate the tree first.
func (s *SegmentStore) Create(ctx context.Context, name string, tree types.Node) (types.SegmentDefinition, error) {
	encoded, err := json.Marshal(tree)
	if err != nil {
		return types.SegmentDefinition{}, fmt.Errorf("failed to encode tree: %w", err)
	}

	now := s.now().UTC()
	def := types.SegmentDefinition{
		ID:        types.NewSegmentID(),
		Name:      name,
		Tree:      tree,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.q.ExecContext(ctx, "insert-segment",
		string(def.ID), name, string(encoded), formatTime(now), formatTime(now)); err != nil {
		return types.SegmentDefinition{}, fmt.Errorf("failed to insert segment: %w", err)
	}
	return def, nil
}

// Update replaces a segment's name and tree.
func (s *SegmentStore) Update(ctx context.Context, id types.SegmentID, name string, tree types.Node) error {
	encoded, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("failed to encode tree: %w", err)
	}
	res, err := s.q.ExecContext(ctx, "update-segment", name, string(encoded), formatTime(s.now()), string(id))
	if err != nil {
		return fmt.Errorf("failed to update segment %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", types.ErrSegmentNotFound, id)
	}
	return nil
}

// Get loads a segment by id.
func (s *SegmentStore) Get(ctx context.Context, id types.SegmentID) (types.SegmentDefinition, error) {
	var row segmentRow
	err := s.q.GetContext(ctx, "get-segment", &row, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.SegmentDefinition{}, fmt.Errorf("%w: %s", types.ErrSegmentNotFound, id)
	}
	if err != nil {
		return types.SegmentDefinition{}, fmt.Errorf("failed to load segment %s: %w", id, err)
	}
	return row.toDefinition()
}

// List returns all segments ordered by name.
func (s *SegmentStore) List(ctx context.Context) ([]types.SegmentDefinition, error) {
	var rows []segmentRow
	if err := s.q.SelectContext(ctx, "list-segments", &rows); err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	defs := make([]types.SegmentDefinition, 0, len(rows))
	for _, r := range rows {
		d, err := r.toDefinition()
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, nil
}
