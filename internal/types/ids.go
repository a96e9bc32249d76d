package types

import "github.com/google/uuid"

// NewMessageID generates a UUIDv7 message identifier.
// Time-ordered IDs keep inserts for one materialization clustered in B-tree pages.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewMessageID() MessageID {
	return MessageID(uuid.Must(uuid.NewV7()).String())
}

// NewCampaignID generates a UUIDv7 campaign identifier.
func NewCampaignID() CampaignID {
	return CampaignID(uuid.Must(uuid.NewV7()).String())
}

// ParseMessageID validates and converts a string to MessageID.
func ParseMessageID(s string) (MessageID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return MessageID(s), nil
}

// ParseCampaignID validates and converts a string to CampaignID.
func ParseCampaignID(s string) (CampaignID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return CampaignID(s), nil
}

// NewSegmentID generates a UUIDv7 segment identifier.
func NewSegmentID() SegmentID {
	return SegmentID(uuid.Must(uuid.NewV7()).String())
}
