package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/campaignkeeper/internal/types"
)

// openTestDB returns a migrated sqlite database in a temp dir.
func openTestDB(t *testing.T) (*sqlx.DB, *Queries) {
	t.Helper()

	database, err := Open("sqlite://" + filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if _, err := MigrateUp(database); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	queries, err := LoadQueries(database)
	if err != nil {
		t.Fatalf("LoadQueries() error = %v", err)
	}
	return database, queries
}

var testTime = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func seedCampaign(t *testing.T, q *Queries) types.Campaign {
	t.Helper()
	ctx := context.Background()

	seg, err := NewSegmentStore(q).Create(ctx, "everyone", &types.RuleGroup{ID: "root", Logic: types.LogicAnd})
	if err != nil {
		t.Fatalf("SegmentStore.Create() error = %v", err)
	}
	c, err := NewCampaignStore(q).Create(ctx, "launch", seg.ID, types.ChannelEmail)
	if err != nil {
		t.Fatalf("CampaignStore.Create() error = %v", err)
	}
	return c
}

func queuedMessage(campaignID types.CampaignID, customerID types.CustomerID) types.Message {
	return types.Message{
		ID:         types.NewMessageID(),
		CampaignID: campaignID,
		CustomerID: customerID,
		Channel:    types.ChannelEmail,
		State:      types.StateQueued,
		Stamps:     map[types.DeliveryState]types.Stamp{types.StateQueued: {At: testTime}},
		CreatedAt:  testTime,
	}
}
