package types

import (
	"encoding/json"
	"time"
)

// SegmentID identifies a persisted segment definition.
type SegmentID string

// SegmentDefinition is a named, persisted rule tree. The tree is the durable
// source of truth; compiled predicates are rebuilt from it on demand.
type SegmentDefinition struct {
	ID        SegmentID `json:"id"`
	Name      string    `json:"name"`
	Tree      Node      `json:"tree"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UnmarshalJSON decodes the tree through DecodeNode.
func (d *SegmentDefinition) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        SegmentID       `json:"id"`
		Name      string          `json:"name"`
		Tree      json.RawMessage `json:"tree"`
		CreatedAt time.Time       `json:"createdAt"`
		UpdatedAt time.Time       `json:"updatedAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	tree, err := DecodeNode(raw.Tree)
	if err != nil {
		return err
	}
	*d = SegmentDefinition{
		ID:        raw.ID,
		Name:      raw.Name,
		Tree:      tree,
		CreatedAt: raw.CreatedAt,
		UpdatedAt: raw.UpdatedAt,
	}
	return nil
}

// Campaign sends one message per member of its segment over one channel.
type Campaign struct {
	ID        CampaignID `json:"id"`
	Name      string     `json:"name"`
	SegmentID SegmentID  `json:"segmentId"`
	Channel   Channel    `json:"channel"`
	CreatedAt time.Time  `json:"createdAt"`
}
