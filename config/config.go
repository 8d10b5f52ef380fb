// Package config loads learner settings from layered sources: built-in
// defaults, an optional YAML file and environment variables, in rising
// precedence. The loaded struct converts itself into learner options.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/n0madic/go-page-bandits/ads"
	"github.com/n0madic/go-page-bandits/allocation"
	"github.com/n0madic/go-page-bandits/content"
	"github.com/n0madic/go-page-bandits/learner"
)

// envPrefix namespaces the environment overrides, e.g.
// PAGEBANDITS_ALLOCATION_STRATEGY=greedy.
const envPrefix = "PAGEBANDITS_"

// AllocationConfig covers the news allocation settings.
type AllocationConfig struct {
	SlotProminences []float64 `koanf:"slot_prominences" validate:"omitempty,min=1,dive,gte=0,lte=1"`
	Strategy        string    `koanf:"strategy" validate:"oneof=greedy relaxed-lp exact-ilp compressed-lp full"`
	Technique       string    `koanf:"technique" validate:"oneof=rand_1 rand_2 rand_3"`
	SlotOrder       string    `koanf:"slot_order" validate:"oneof=greedy ordered randomized"`
	DiversityBounds []float64 `koanf:"diversity_bounds" validate:"omitempty,dive,gte=0"`
	ErrorTrials     int       `koanf:"error_trials" validate:"gte=0"`
}

// GridConfig covers the state-bucket grid split points.
type GridConfig struct {
	RowPivots []float64 `koanf:"row_pivots" validate:"omitempty,min=1"`
	ColPivots []float64 `koanf:"col_pivots" validate:"omitempty,min=1"`
}

// AdsConfig covers the advertisement allocation settings.
type AdsConfig struct {
	Enabled         bool      `koanf:"enabled"`
	SlotProminences []float64 `koanf:"slot_prominences" validate:"omitempty,min=1,dive,gte=0,lte=1"`
	Mode            string    `koanf:"mode" validate:"oneof=full-ilp restricted-ilp"`
	Policy          string    `koanf:"policy" validate:"oneof=greedy pdda wpdda"`
	MaximizeForBids bool      `koanf:"maximize_for_bids"`
}

// Config is the complete learner configuration.
type Config struct {
	Categories    []string         `koanf:"categories" validate:"required,min=1,dive,required"`
	InterestDecay bool             `koanf:"interest_decay"`
	Seed          uint64           `koanf:"seed"`
	Seeded        bool             `koanf:"seeded"`
	Allocation    AllocationConfig `koanf:"allocation"`
	Grid          GridConfig       `koanf:"grid"`
	Ads           AdsConfig        `koanf:"ads"`
}

// Default returns the built-in configuration, matching the zero-option
// learner.
func Default() *Config {
	return &Config{
		InterestDecay: false,
		Allocation: AllocationConfig{
			SlotProminences: []float64{1, 1, 1, 1, 1},
			Strategy:        "relaxed-lp",
			Technique:       "rand_1",
			SlotOrder:       "greedy",
		},
		Grid: GridConfig{
			RowPivots: []float64{1},
			ColPivots: []float64{0.01, 1},
		},
		Ads: AdsConfig{
			Enabled:         true,
			SlotProminences: []float64{1, 1},
			Mode:            "full-ilp",
			Policy:          "wpdda",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and PAGEBANDITS_* environment variables, then
// validates it. Unknown enum values fail here, not at learner construction.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps PAGEBANDITS_ALLOCATION_STRATEGY to allocation.strategy while
// keeping underscores inside leaf names (interest_decay, slot_prominences).
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	for _, section := range []string{"allocation", "grid", "ads"} {
		if strings.HasPrefix(s, section+"_") {
			return section + "." + s[len(section)+1:]
		}
	}
	return s
}

// Validate checks field constraints and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// CategorySet converts the configured category names.
func (c *Config) CategorySet() []content.Category {
	out := make([]content.Category, len(c.Categories))
	for i, s := range c.Categories {
		out[i] = content.Category(s)
	}
	return out
}

// Options converts the configuration into learner options.
func (c *Config) Options() ([]learner.Option, error) {
	strategy, err := allocation.ParseStrategy(c.Allocation.Strategy)
	if err != nil {
		return nil, err
	}
	technique, err := allocation.ParseTechnique(c.Allocation.Technique)
	if err != nil {
		return nil, err
	}
	slotOrder, err := allocation.ParseSlotOrder(c.Allocation.SlotOrder)
	if err != nil {
		return nil, err
	}

	opts := []learner.Option{
		learner.WithSlotProminences(c.Allocation.SlotProminences),
		learner.WithStrategy(strategy),
		learner.WithTechnique(technique),
		learner.WithSlotOrder(slotOrder),
		learner.WithPivots(c.Grid.RowPivots, c.Grid.ColPivots),
		learner.WithInterestDecay(c.InterestDecay),
	}
	if c.Allocation.DiversityBounds != nil {
		opts = append(opts, learner.WithDiversityBounds(c.Allocation.DiversityBounds))
	}
	if c.Allocation.ErrorTrials > 0 {
		opts = append(opts, learner.WithErrorTrials(c.Allocation.ErrorTrials))
	}
	if c.Seeded {
		opts = append(opts, learner.WithRandomSeed(c.Seed))
	}

	if !c.Ads.Enabled {
		opts = append(opts, learner.WithoutAds())
		return opts, nil
	}
	mode, err := ads.ParseConstraintMode(c.Ads.Mode)
	if err != nil {
		return nil, err
	}
	policy, err := ads.ParseDisplayPolicy(c.Ads.Policy)
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		learner.WithAdSlotProminences(c.Ads.SlotProminences),
		learner.WithAdsMode(mode),
		learner.WithAdsPolicy(policy),
		learner.WithBidMaximization(c.Ads.MaximizeForBids),
	)
	return opts, nil
}
