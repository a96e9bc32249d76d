package types

import "errors"

// Sentinel errors for CampaignKeeper operations.
var (
	// ErrMalformedNode indicates a rule tree node that is neither a rule nor a group.
	ErrMalformedNode = errors.New("malformed rule tree node")

	// ErrCoercionFailed indicates a value cannot be converted to a field's semantic type.
	ErrCoercionFailed = errors.New("type coercion failed")

	// ErrCatalogDrift indicates a persisted, previously valid rule tree no longer
	// validates against the current field catalog. Fatal: silently skipping the
	// missing field would change who is in the segment.
	ErrCatalogDrift = errors.New("persisted rule tree no longer matches field catalog")

	// ErrPopulationUnavailable indicates the customer population source failed.
	ErrPopulationUnavailable = errors.New("customer population unavailable")

	// ErrInvalidSortKey indicates a select sort key that is not a catalog field.
	ErrInvalidSortKey = errors.New("invalid sort key")

	// ErrInvalidPage indicates a negative limit or offset.
	ErrInvalidPage = errors.New("invalid limit or offset")

	// ErrMessageNotFound indicates no message carries the receipt's vendor message id.
	ErrMessageNotFound = errors.New("message not found")

	// ErrVersionConflict indicates a concurrent writer updated the message first.
	ErrVersionConflict = errors.New("message version conflict")

	// ErrLockTimeout indicates the per-message lock could not be acquired in time.
	ErrLockTimeout = errors.New("timed out acquiring message lock")

	// ErrCampaignNotFound indicates an unknown campaign id.
	ErrCampaignNotFound = errors.New("campaign not found")

	// ErrSegmentNotFound indicates an unknown segment id.
	ErrSegmentNotFound = errors.New("segment not found")

	// ErrAlreadyDispatched indicates a message already carries a different vendor id.
	ErrAlreadyDispatched = errors.New("message already dispatched")

	// ErrInvalidReceipt indicates a receipt missing required fields.
	ErrInvalidReceipt = errors.New("invalid receipt")

	// ErrTranslatorUnavailable indicates the natural-language rule generator failed.
	ErrTranslatorUnavailable = errors.New("rule translator unavailable")
)
