package config

import (
	"testing"
)

// TestAcceptanceCriteria covers the secret and precedence guarantees operators rely on.
func TestAcceptanceCriteria(t *testing.T) {
	t.Run("AC1: CK_HMAC_SECRET accessible via HMACSecrets", func(t *testing.T) {
		t.Setenv("CK_HMAC_SECRET", "0123456789abcdef0123456789abcdef:"+testSecret1)

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("AC1 FAIL: HMACSecrets error: %v", err)
		}
		if _, ok := secrets["0123456789abcdef0123456789abcdef"]; !ok {
			t.Fatal("AC1 FAIL: Secret not accessible")
		}
	})

	t.Run("AC2: Config file with hmac_secret rejected with clear error", func(t *testing.T) {
		path := writeConfig(t, `campaign_api:
  host: "localhost"
  port: 8080
  hmac_secret: "should_be_rejected"
`)
		_, err := LoadConfig(path)
		if err == nil {
			t.Fatal("AC2 FAIL: Expected error for secret in config file")
		}
		if err.Error() != "HMAC secrets not allowed in config files (use CK_HMAC_SECRET environment variable)" {
			t.Fatalf("AC2 FAIL: Wrong error message: %v", err)
		}
	})

	t.Run("AC3: Config file with webhook_secret rejected", func(t *testing.T) {
		path := writeConfig(t, "webhook_secret: nope\n")
		if _, err := LoadConfig(path); err == nil {
			t.Fatal("AC3 FAIL: Expected error for webhook secret in config file")
		}
	})

	t.Run("AC4: Environment overrides config file", func(t *testing.T) {
		t.Setenv("CK_CAMPAIGN_API_PORT", "8080")
		path := writeConfig(t, `campaign_api:
  port: 9090
`)
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("AC4 FAIL: LoadConfig error: %v", err)
		}
		if cfg.CampaignAPI.Port != 8080 {
			t.Fatalf("AC4 FAIL: Environment should override config file. Expected 8080, got %d", cfg.CampaignAPI.Port)
		}
	})
}
