package pricing

import (
	"errors"
	"fmt"
	"math"
)

// Mode selects the analysis depth. Deep mode carries a higher profit
// multiplier and a higher minimum charge than standard mode.
type Mode string

// Analysis mode constants used in charge requests and estimator calls.
const (
	ModeStandard Mode = "standard"
	ModeDeep     Mode = "deep"
)

// Valid reports whether m is a known analysis mode.
func (m Mode) Valid() bool {
	return m == ModeStandard || m == ModeDeep
}

// ErrNegativeUsage is returned by Compute when a usage count is negative.
// A well-behaved vendor API never reports negative consumption, so this is
// a contract violation on the caller's side.
var ErrNegativeUsage = errors.New("pricing: negative usage count")

// Usage carries the raw consumption counters reported by a completed
// generation call: prompt units in, candidate units out. It is produced
// once per analysis and consumed immediately; only the derived points
// charge is ever persisted.
type Usage struct {
	PromptUnits    int `json:"prompt_units"`
	CandidateUnits int `json:"candidate_units"`
}

// ModeRates holds the per-mode billing knobs.
type ModeRates struct {
	// ProfitMultiplier scales the base points before ceiling rounding.
	ProfitMultiplier float64 `json:"profit_multiplier" yaml:"profit_multiplier"`
	// MinPoints is the minimum charge for any analysis in this mode.
	MinPoints int `json:"min_points" yaml:"min_points"`
}

// Rates holds the currency and points conversion constants shared by the
// estimation path and the authoritative billing path. A single Rates value
// is loaded at startup and never mutated, so concurrent Compute calls need
// no coordination.
type Rates struct {
	// ExchangeRate converts vendor reference currency (USD) to the
	// platform's local currency.
	ExchangeRate float64 `json:"exchange_rate" yaml:"exchange_rate"`
	// PointsPerUnit converts one local currency unit into points.
	PointsPerUnit float64 `json:"points_per_unit" yaml:"points_per_unit"`
	// BatchDiscount multiplies both cost terms for deferred batch
	// processing. 1.0 disables the discount.
	BatchDiscount float64 `json:"batch_discount" yaml:"batch_discount"`

	Standard ModeRates `json:"standard" yaml:"standard"`
	Deep     ModeRates `json:"deep" yaml:"deep"`
}

// ForMode returns the ModeRates for m. Unknown modes fall back to standard.
func (r Rates) ForMode(m Mode) ModeRates {
	if m == ModeDeep {
		return r.Deep
	}
	return r.Standard
}

// Cost is the full breakdown of a single charge computation.
// Immutable once returned.
type Cost struct {
	// RawUSD is the vendor-side cost in reference currency.
	RawUSD float64 `json:"raw_usd"`
	// LocalCost is RawUSD converted via the exchange rate.
	LocalCost float64 `json:"local_cost"`
	// BasePoints is LocalCost converted to points, before the profit
	// multiplier and rounding.
	BasePoints float64 `json:"base_points"`
	// FinalPoints is the integer points charge: ceil(BasePoints ×
	// multiplier), floored at the mode minimum.
	FinalPoints int `json:"final_points"`
	// Model is the catalog entry the computation priced against. When the
	// requested model was unknown this is the configured default model.
	Model string `json:"model"`
	// ModelFallback is true when the requested model was not in the
	// catalog and default pricing was substituted. Callers should surface
	// this (metric, log) rather than tolerate it silently.
	ModelFallback bool `json:"model_fallback,omitempty"`
}

// Calculator converts post-call usage into an integer points charge.
// It is a pure computation over an immutable catalog and rate table.
// Ceiling rounding means the platform never absorbs a fractional-point
// loss, and a per-mode floor prevents trivially cheap analyses.
type Calculator struct {
	Catalog      Catalog
	Rates        Rates
	DefaultModel string
}

// Compute prices actual usage for the given mode and model.
//
// The steps are fixed: model lookup (unknown → default pricing), per-term
// batch discount, USD cost per million units, exchange-rate conversion,
// points conversion, profit multiplier, ceiling rounding, mode floor.
// Negative usage counts return ErrNegativeUsage.
func (c Calculator) Compute(u Usage, mode Mode, batch bool, modelID string) (Cost, error) {
	if u.PromptUnits < 0 || u.CandidateUnits < 0 {
		return Cost{}, fmt.Errorf("%w: prompt=%d candidates=%d", ErrNegativeUsage, u.PromptUnits, u.CandidateUnits)
	}

	price, resolved, fallback := c.Catalog.Resolve(modelID, c.DefaultModel)

	bm := 1.0
	if batch {
		bm = c.Rates.BatchDiscount
	}

	inputUSD := float64(u.PromptUnits) / 1_000_000 * price.InputPerMUnits * bm
	outputUSD := float64(u.CandidateUnits) / 1_000_000 * price.OutputPerMUnits * bm

	cost := Cost{
		Model:         resolved,
		ModelFallback: fallback,
	}
	cost.RawUSD = inputUSD + outputUSD
	cost.LocalCost = cost.RawUSD * c.Rates.ExchangeRate
	cost.BasePoints = cost.LocalCost * c.Rates.PointsPerUnit

	mr := c.Rates.ForMode(mode)
	points := int(math.Ceil(cost.BasePoints * mr.ProfitMultiplier))
	if points < mr.MinPoints {
		points = mr.MinPoints
	}
	cost.FinalPoints = points
	return cost, nil
}
