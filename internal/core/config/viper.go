package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/solatis/campaignkeeper/internal/rules"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	d := DefaultConfig()
	v.SetDefault("campaign_api.host", d.CampaignAPI.Host)
	v.SetDefault("campaign_api.port", d.CampaignAPI.Port)
	v.SetDefault("campaign_api.http_port", d.CampaignAPI.HTTPPort)
	v.SetDefault("campaign_api.max_connections", d.CampaignAPI.MaxConnections)
	v.SetDefault("campaign_api.request_timeout", "30s")
	v.SetDefault("campaign_api.max_batch_size", d.CampaignAPI.MaxBatchSize)
	v.SetDefault("campaign_api.data_dir", d.CampaignAPI.DataDir)
	v.SetDefault("campaign_api.redis_url", "")
	v.SetDefault("campaign_api.lock_ttl", "10s")
	v.SetDefault("campaign_api.translator_url", "")
	v.SetDefault("segmentation.empty_root_policy", d.Segmentation.EmptyRootPolicy)
	v.SetDefault("segmentation.empty_group_policy", d.Segmentation.EmptyGroupPolicy)
	v.SetDefault("segmentation.max_tree_cost", d.Segmentation.MaxTreeCost)
	v.SetDefault("segmentation.population_batch_size", d.Segmentation.PopulationBatchSize)

	// Bind environment variables with CK_ prefix
	v.SetEnvPrefix("CK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets must be environment-only per 12-factor principles
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		CampaignAPI: CampaignAPIConfig{
			Host:           v.GetString("campaign_api.host"),
			Port:           v.GetInt("campaign_api.port"),
			HTTPPort:       v.GetInt("campaign_api.http_port"),
			MaxConnections: v.GetInt("campaign_api.max_connections"),
			RequestTimeout: v.GetDuration("campaign_api.request_timeout"),
			MaxBatchSize:   v.GetInt("campaign_api.max_batch_size"),
			DataDir:        v.GetString("campaign_api.data_dir"),
			RedisURL:       v.GetString("campaign_api.redis_url"),
			LockTTL:        v.GetDuration("campaign_api.lock_ttl"),
			TranslatorURL:  v.GetString("campaign_api.translator_url"),
		},
		Segmentation: SegmentationConfig{
			EmptyRootPolicy:     v.GetString("segmentation.empty_root_policy"),
			EmptyGroupPolicy:    v.GetString("segmentation.empty_group_policy"),
			MaxTreeCost:         v.GetInt("segmentation.max_tree_cost"),
			PopulationBatchSize: v.GetInt("segmentation.population_batch_size"),
		},
	}

	if v.IsSet("catalog.fields") {
		if err := v.UnmarshalKey("catalog", &cfg.Catalog); err != nil {
			return nil, fmt.Errorf("failed to decode catalog: %w", err)
		}
	} else {
		cfg.Catalog.Fields = DefaultCatalogFields()
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port ranges, positive limits and parseable policies.
func validateConfig(cfg *Config) error {
	api := cfg.CampaignAPI
	if api.Port <= 0 || api.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", api.Port)
	}
	if api.HTTPPort <= 0 || api.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535, got %d", api.HTTPPort)
	}
	if api.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", api.MaxConnections)
	}
	if api.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", api.RequestTimeout)
	}
	if api.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size must be positive, got %d", api.MaxBatchSize)
	}
	if api.LockTTL <= 0 {
		return fmt.Errorf("lock_ttl must be positive, got %v", api.LockTTL)
	}

	seg := cfg.Segmentation
	if _, err := rules.ParseEmptyGroupPolicy(seg.EmptyRootPolicy); err != nil {
		return fmt.Errorf("segmentation.empty_root_policy: %w", err)
	}
	if _, err := rules.ParseEmptyGroupPolicy(seg.EmptyGroupPolicy); err != nil {
		return fmt.Errorf("segmentation.empty_group_policy: %w", err)
	}
	if seg.MaxTreeCost <= 0 {
		return fmt.Errorf("max_tree_cost must be positive, got %d", seg.MaxTreeCost)
	}
	if seg.PopulationBatchSize <= 0 {
		return fmt.Errorf("population_batch_size must be positive, got %d", seg.PopulationBatchSize)
	}

	if _, err := rules.NewCatalog(cfg.Catalog.Fields); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.IsSet("hmac_secret") || v.IsSet("campaign_api.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use CK_HMAC_SECRET environment variable)")
	}
	if v.IsSet("webhook_secret") || v.IsSet("campaign_api.webhook_secret") {
		return fmt.Errorf("webhook secrets not allowed in config files (use CK_WEBHOOK_SECRET environment variable)")
	}
	return nil
}
