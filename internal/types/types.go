// Package types provides domain models shared across CampaignKeeper components.
//
// Wire-format agnostic: rule trees, customers, messages and receipts are plain
// Go values. JSON tags describe the boundary shape used by the gRPC codec, the
// webhook router and the stores; proto/HTTP/SQL conversion happens at those
// boundaries, never here.
//
// ID utilities in ids.go import uuid; everything else is standard library only.
package types

// CampaignID identifies a campaign. UUIDv7 when generated by CampaignKeeper.
type CampaignID string

// CustomerID identifies a customer in the population. Opaque to the core;
// ordering of CustomerID values is plain byte-wise string ordering.
type CustomerID string

// MessageID identifies one (campaign, recipient) Message record.
type MessageID string

// VendorMessageID is the opaque identifier a delivery vendor assigns to a
// message once it accepts it. Unique per message; receipts are keyed by it.
type VendorMessageID string

// Customer is one record of the segmentable population.
// Attributes holds the catalog-declared fields; nested maps back dotted field
// names such as "address.city".
type Customer struct {
	ID         CustomerID     `json:"id"`
	Attributes map[string]any `json:"attributes"`
}

// Resource limits enforced by the rule compiler and the receipt boundary.
const (
	// MaxTreeDepth bounds rule tree nesting so compilation recursion stays shallow.
	// 16 levels is far beyond anything a rule builder UI produces.
	MaxTreeDepth = 16

	// MaxFieldPathDepth bounds dotted field names ("a.b.c") in the catalog.
	MaxFieldPathDepth = 8

	// MaxInOperatorValues limits in/notIn literal lists.
	// 256 values covers postal-code and SKU style lists without quadratic scans.
	MaxInOperatorValues = 256

	// MaxTreeCost is the default ceiling for the summed rule cost of a tree.
	MaxTreeCost = 50000

	// MaxReceiptBatchSize is the default ceiling for one receipt batch.
	MaxReceiptBatchSize = 1000
)
