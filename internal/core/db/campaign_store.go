package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/solatis/campaignkeeper/internal/types"
)

// CampaignStore persists campaigns.
type CampaignStore struct {
	q   *Queries
	now func() time.Time
}

// NewCampaignStore creates a campaign store over loaded queries.
func NewCampaignStore(q *Queries) *CampaignStore {
	return &CampaignStore{q: q, now: time.Now}
}

type campaignRow struct {
	CampaignID string `db:"campaign_id"`
	Name       string `db:"name"`
	SegmentID  string `db:"segment_id"`
	Channel    string `db:"channel"`
	CreatedAt  string `db:"created_at"`
}

// Create stores a new campaign targeting segmentID.
func (s *CampaignStore) Create(ctx context.Context, name string, segmentID types.SegmentID, channel types.Channel) (types.Campaign, error) {
	if !channel.Valid() {
		return types.Campaign{}, fmt.Errorf("unknown channel %q", channel)
	}
	c := types.Campaign{
		ID:        types.NewCampaignID(),
		Name:      name,
		SegmentID: segmentID,
		Channel:   channel,
		CreatedAt: s.now().UTC(),
	}
	if _, err := s.q.ExecContext(ctx, "insert-campaign",
		string(c.ID), name, string(segmentID), string(channel), formatTime(c.CreatedAt)); err != nil {
		return types.Campaign{}, fmt.Errorf("failed to insert campaign: %w", err)
	}
	return c, nil
}

// Get loads a campaign by id.
func (s *CampaignStore) Get(ctx context.Context, id types.CampaignID) (types.Campaign, error) {
	var row campaignRow
	err := s.q.GetContext(ctx, "get-campaign", &row, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Campaign{}, fmt.Errorf("%w: %s", types.ErrCampaignNotFound, id)
	}
	if err != nil {
		return types.Campaign{}, fmt.Errorf("failed to load campaign %s: %w", id, err)
	}
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return types.Campaign{}, err
	}
	return types.Campaign{
		ID:        types.CampaignID(row.CampaignID),
		Name:      row.Name,
		SegmentID: types.SegmentID(row.SegmentID),
		Channel:   types.Channel(row.Channel),
		CreatedAt: created,
	}, nil
}
