package config

import (
	"fmt"
	"log/slog"

	"github.com/solatis/campaignkeeper/internal/rules"
)

// CompileOptions converts segmentation settings to rule compiler options.
func (s SegmentationConfig) CompileOptions() (rules.Options, error) {
	root, err := rules.ParseEmptyGroupPolicy(s.EmptyRootPolicy)
	if err != nil {
		return rules.Options{}, err
	}
	group, err := rules.ParseEmptyGroupPolicy(s.EmptyGroupPolicy)
	if err != nil {
		return rules.Options{}, err
	}
	return rules.Options{
		RootPolicy:  root,
		GroupPolicy: group,
		MaxCost:     s.MaxTreeCost,
	}, nil
}

// NewEngine builds the rule engine from the catalog and segmentation settings.
func (c *Config) NewEngine(logger *slog.Logger) (*rules.Engine, error) {
	catalog, err := rules.NewCatalog(c.Catalog.Fields)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	opts, err := c.Segmentation.CompileOptions()
	if err != nil {
		return nil, err
	}
	return rules.NewEngine(catalog, opts, logger), nil
}
