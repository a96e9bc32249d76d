package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/campaignkeeper/internal/types"
)

func TestSegmentStore_RoundTripsTree(t *testing.T) {
	_, q := openTestDB(t)
	ctx := context.Background()
	store := NewSegmentStore(q)

	tree := &types.RuleGroup{ID: "root", Logic: types.LogicAnd, Children: []types.Node{
		&types.Rule{ID: "r1", Field: "spend", Operator: types.OpGreaterThan, Value: 500.0},
		&types.RuleGroup{ID: "g1", Logic: types.LogicOr, Children: []types.Node{
			&types.Rule{ID: "r2", Field: "city", Operator: types.OpIn, Value: []any{"Paris", "Lyon"}},
		}},
	}}

	created, err := store.Create(ctx, "big spenders", tree)
	require.NoError(t, err)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "big spenders", got.Name)
	assert.Equal(t, tree, got.Tree)

	require.NoError(t, store.Update(ctx, created.ID, "renamed", &types.RuleGroup{ID: "root", Logic: types.LogicOr}))
	got, err = store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, types.LogicOr, got.Tree.(*types.RuleGroup).Logic)

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSegmentStore_NotFound(t *testing.T) {
	_, q := openTestDB(t)
	ctx := context.Background()
	store := NewSegmentStore(q)

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrSegmentNotFound)

	err = store.Update(ctx, "missing", "x", &types.RuleGroup{ID: "root", Logic: types.LogicAnd})
	assert.ErrorIs(t, err, types.ErrSegmentNotFound)
}

func TestCampaignStore(t *testing.T) {
	_, q := openTestDB(t)
	ctx := context.Background()

	c := seedCampaign(t, q)
	got, err := NewCampaignStore(q).Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Name, got.Name)
	assert.Equal(t, c.SegmentID, got.SegmentID)
	assert.Equal(t, types.ChannelEmail, got.Channel)

	_, err = NewCampaignStore(q).Get(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrCampaignNotFound)

	_, err = NewCampaignStore(q).Create(ctx, "bad", c.SegmentID, "pigeon")
	assert.Error(t, err)
}
