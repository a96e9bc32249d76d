// Package config provides configuration management for CampaignKeeper services.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/solatis/campaignkeeper/internal/types"
)

// Config is the full service configuration.
type Config struct {
	CampaignAPI  CampaignAPIConfig
	Segmentation SegmentationConfig
	Catalog      CatalogConfig
}

// CampaignAPIConfig holds configuration for the gRPC campaign API and the
// vendor webhook listener.
type CampaignAPIConfig struct {
	Host           string
	Port           int
	HTTPPort       int
	MaxConnections int
	RequestTimeout time.Duration
	MaxBatchSize   int
	DataDir        string
	RedisURL       string        // empty: in-process message locks
	LockTTL        time.Duration // Redis lock expiry
	TranslatorURL  string        // empty: GenerateSegment unavailable
}

// SegmentationConfig holds rule compiler and evaluator settings. Policies are
// kept as strings here and parsed by the rules package.
type SegmentationConfig struct {
	EmptyRootPolicy     string
	EmptyGroupPolicy    string
	MaxTreeCost         int
	PopulationBatchSize int
}

// CatalogConfig lists the segmentable customer fields.
type CatalogConfig struct {
	Fields []types.FieldDescriptor `mapstructure:"fields"`
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		CampaignAPI: CampaignAPIConfig{
			Host:           "0.0.0.0",
			Port:           50061,
			HTTPPort:       8080,
			MaxConnections: 1000,
			RequestTimeout: 30 * time.Second,
			MaxBatchSize:   types.MaxReceiptBatchSize,
			DataDir:        "./data",
			LockTTL:        10 * time.Second,
		},
		Segmentation: SegmentationConfig{
			EmptyRootPolicy:     "match_all",
			EmptyGroupPolicy:    "identity",
			MaxTreeCost:         types.MaxTreeCost,
			PopulationBatchSize: 500,
		},
		Catalog: CatalogConfig{Fields: DefaultCatalogFields()},
	}
}

// DefaultCatalogFields is the catalog used when the config file declares none.
func DefaultCatalogFields() []types.FieldDescriptor {
	return []types.FieldDescriptor{
		{Name: "email", Type: types.FieldString},
		{Name: "firstName", Type: types.FieldString},
		{Name: "city", Type: types.FieldString},
		{Name: "address.country", Type: types.FieldString},
		{Name: "totalSpend", Type: types.FieldNumber},
		{Name: "orderCount", Type: types.FieldNumber},
		{Name: "lastOrderDate", Type: types.FieldDate},
		{Name: "signupDate", Type: types.FieldDate},
		{Name: "emailOptIn", Type: types.FieldBoolean},
		{Name: "smsOptIn", Type: types.FieldBoolean},
		{Name: "tier", Type: types.FieldEnum, Values: []string{"bronze", "silver", "gold", "platinum"}},
	}
}

// HMACSecrets extracts API key HMAC secrets from environment variables.
// Supports CK_HMAC_SECRET (single) and CK_HMAC_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
// Secret IDs are UUIDv7 (32 hex chars without hyphens) matching API key format.
func HMACSecrets() (map[string][]byte, error) {
	return envSecrets("CK_HMAC_SECRET", ParseHMACSecretWithID)
}

// WebhookSecrets extracts per-vendor webhook signing secrets.
// Supports CK_WEBHOOK_SECRET and CK_WEBHOOK_SECRET_N, each <vendor>:<base64_secret>.
// Returns map of vendor -> decoded secret bytes.
func WebhookSecrets() (map[string][]byte, error) {
	return envSecrets("CK_WEBHOOK_SECRET", ParseWebhookSecret)
}

// envSecrets reads prefix and prefix_1, prefix_2, ... until the first gap.
// Multiple secrets enable rotation: old and new keys valid during migration.
func envSecrets(prefix string, parse func(string) (string, []byte, error)) (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	add := func(key, val string) error {
		id, decoded, err := parse(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[id]; exists {
			return fmt.Errorf("duplicate secret_id '%s' found in environment variables (check %s and %s_* for conflicts)", id, prefix, prefix)
		}
		secrets[id] = decoded
		return nil
	}

	if val := os.Getenv(prefix); val != "" {
		if err := add(prefix, val); err != nil {
			return nil, err
		}
	}

	for i := 1; ; i++ {
		key := fmt.Sprintf("%s_%d", prefix, i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		if err := add(key, val); err != nil {
			return nil, err
		}
	}

	return secrets, nil
}

// ParseHMACSecret decodes a base64-encoded secret of at least 32 bytes.
func ParseHMACSecret(envValue string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(envValue))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(decoded) < 32 {
		return nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(decoded))
	}
	return decoded, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 hex chars (UUIDv7 without hyphens).
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	secretID = parts[0]
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars (UUIDv7 without hyphens)")
	}
	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = ParseHMACSecret(parts[1])
	if err != nil {
		return "", nil, err
	}
	return secretID, secret, nil
}

var vendorName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ParseWebhookSecret parses vendor:base64_secret format. Vendor names are
// lowercase and appear in webhook URLs (/v1/receipts/{vendor}).
func ParseWebhookSecret(envValue string) (vendor string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <vendor>:<base64_secret>")
	}

	vendor = parts[0]
	if !vendorName.MatchString(vendor) {
		return "", nil, fmt.Errorf("vendor must match %s", vendorName)
	}

	secret, err = ParseHMACSecret(parts[1])
	if err != nil {
		return "", nil, err
	}
	return vendor, secret, nil
}
