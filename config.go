package billing

import "github.com/verilens-labs/billing-engine/pricing"

// Config holds every billing constant in one place: currency conversion,
// per-mode multipliers and floors, estimator coefficients, the fixed-price
// table, and the tier catalog. Both the pre-flight estimation path and the
// authoritative charge path read this single value, so the two can never
// drift apart.
type Config struct {
	// DefaultModel is the catalog entry used when a charge names a model
	// the catalog does not know.
	DefaultModel string `json:"default_model" yaml:"default_model"`
	// Rates are the currency and points conversion constants.
	Rates pricing.Rates `json:"rates" yaml:"rates"`
	// Estimator holds the pre-flight token estimation coefficients.
	Estimator pricing.EstimatorParams `json:"estimator" yaml:"estimator"`
	// FixedPrices is the flat-fee table for non-usage-priced services.
	FixedPrices pricing.FixedPrices `json:"fixed_prices" yaml:"fixed_prices"`
	// Tiers is the purchasable point bundle catalog, smallest first.
	Tiers pricing.Tiers `json:"tiers" yaml:"tiers"`
}

// DefaultConfig returns the production constants shipped with the binary.
// A config file only needs to override what differs.
func DefaultConfig() Config {
	return Config{
		DefaultModel: "gemini-2.5-flash",
		Rates: pricing.Rates{
			ExchangeRate:  0.95,
			PointsPerUnit: 100,
			BatchDiscount: 0.5,
			Standard:      pricing.ModeRates{ProfitMultiplier: 2.0, MinPoints: 5},
			Deep:          pricing.ModeRates{ProfitMultiplier: 3.0, MinPoints: 10},
		},
		Estimator: pricing.EstimatorParams{
			VideoUnitsPerSecond:   300,
			CharsPerUnit:          4,
			ReadingCharsPerMinute: 1000,
			PromptOverheadUnits:   2000,
			Standard:              pricing.OutputParams{BaseUnits: 1500, UnitsPerMinute: 60},
			Deep:                  pricing.OutputParams{BaseUnits: 4000, UnitsPerMinute: 150},
		},
		FixedPrices: pricing.DefaultFixedPrices(),
		Tiers:       pricing.DefaultTiers(),
	}
}
