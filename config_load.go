package billing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/verilens-labs/billing-engine/internal/logging"
)

// LoadConfig reads and parses a config file from the given path.
// Supported formats: JSON (.json), YAML (.yaml, .yml). Fields the file
// omits keep their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	return &cfg, nil
}

// ValidateConfig validates a Config for correctness.
func ValidateConfig(cfg Config) error {
	if cfg.DefaultModel == "" {
		return fmt.Errorf("default_model is required")
	}
	if cfg.Rates.ExchangeRate <= 0 {
		return fmt.Errorf("rates.exchange_rate must be positive, got %v", cfg.Rates.ExchangeRate)
	}
	if cfg.Rates.PointsPerUnit <= 0 {
		return fmt.Errorf("rates.points_per_unit must be positive, got %v", cfg.Rates.PointsPerUnit)
	}
	if cfg.Rates.BatchDiscount <= 0 || cfg.Rates.BatchDiscount > 1 {
		return fmt.Errorf("rates.batch_discount must be in (0, 1], got %v", cfg.Rates.BatchDiscount)
	}

	// Deep mode must be strictly more expensive than standard: both the
	// multiplier and the floor.
	if cfg.Rates.Deep.ProfitMultiplier <= cfg.Rates.Standard.ProfitMultiplier {
		return fmt.Errorf("deep profit multiplier (%v) must exceed standard (%v)",
			cfg.Rates.Deep.ProfitMultiplier, cfg.Rates.Standard.ProfitMultiplier)
	}
	if cfg.Rates.Deep.MinPoints <= cfg.Rates.Standard.MinPoints {
		return fmt.Errorf("deep min points (%d) must exceed standard (%d)",
			cfg.Rates.Deep.MinPoints, cfg.Rates.Standard.MinPoints)
	}
	if cfg.Rates.Standard.MinPoints < 0 {
		return fmt.Errorf("standard min points must be non-negative, got %d", cfg.Rates.Standard.MinPoints)
	}
	if cfg.Rates.Standard.ProfitMultiplier <= 0 {
		return fmt.Errorf("standard profit multiplier must be positive, got %v", cfg.Rates.Standard.ProfitMultiplier)
	}

	// The deep output model must dominate the standard one, for the same
	// reason the multiplier ordering is enforced.
	if cfg.Estimator.Deep.BaseUnits <= cfg.Estimator.Standard.BaseUnits {
		return fmt.Errorf("deep estimator base units (%d) must exceed standard (%d)",
			cfg.Estimator.Deep.BaseUnits, cfg.Estimator.Standard.BaseUnits)
	}
	if cfg.Estimator.Deep.UnitsPerMinute <= cfg.Estimator.Standard.UnitsPerMinute {
		return fmt.Errorf("deep estimator units/minute (%v) must exceed standard (%v)",
			cfg.Estimator.Deep.UnitsPerMinute, cfg.Estimator.Standard.UnitsPerMinute)
	}
	if cfg.Estimator.VideoUnitsPerSecond < 0 || cfg.Estimator.PromptOverheadUnits < 0 {
		return fmt.Errorf("estimator constants must be non-negative")
	}

	for kind, points := range cfg.FixedPrices {
		if points <= 0 {
			return fmt.Errorf("fixed price for %q must be positive, got %d", kind, points)
		}
	}

	seen := make(map[string]bool, len(cfg.Tiers))
	featured := 0
	for _, t := range cfg.Tiers {
		if t.ID == "" {
			return fmt.Errorf("tier with empty id")
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate tier id %q", t.ID)
		}
		seen[t.ID] = true
		if t.BasePoints <= 0 {
			return fmt.Errorf("tier %q must grant points", t.ID)
		}
		if t.PriceUSD <= 0 {
			return fmt.Errorf("tier %q must have a positive price", t.ID)
		}
		if t.Featured {
			featured++
		}
	}
	// Not every deployment highlights a tier, and a promo may highlight
	// two, so this is a warning rather than an error.
	if len(cfg.Tiers) > 0 && featured != 1 {
		logging.Logger.Warn("expected exactly one featured tier", "featured", featured)
	}

	return nil
}
