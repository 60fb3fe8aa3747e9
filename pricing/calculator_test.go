package pricing

import (
	"errors"
	"math"
	"testing"
)

// testRates mirrors the production constants used in billing docs: USD →
// EUR at 0.95, 100 points per EUR, 50% batch discount.
func testRates() Rates {
	return Rates{
		ExchangeRate:  0.95,
		PointsPerUnit: 100,
		BatchDiscount: 0.5,
		Standard:      ModeRates{ProfitMultiplier: 2.0, MinPoints: 5},
		Deep:          ModeRates{ProfitMultiplier: 3.0, MinPoints: 10},
	}
}

func testCalculator() Calculator {
	return Calculator{
		Catalog: Catalog{
			"gemini-2.5-flash": {InputPerMUnits: 0.50, OutputPerMUnits: 2.00},
			"gemini-2.5-pro":   {InputPerMUnits: 1.25, OutputPerMUnits: 10.00},
		},
		Rates:        testRates(),
		DefaultModel: "gemini-2.5-flash",
	}
}

// approxEqual returns true if a and b differ by less than epsilon.
func approxEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

// ---- Reference vectors ---------------------------------------------------

// 100k prompt + 20k candidate units on gemini-2.5-flash:
// raw 0.09 USD → 0.0855 EUR → 8.55 base points → ×2.0 → ceil → 18.
func TestComputeStandardVector(t *testing.T) {
	c := testCalculator()

	got, err := c.Compute(Usage{PromptUnits: 100_000, CandidateUnits: 20_000}, ModeStandard, false, "gemini-2.5-flash")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !approxEqual(got.RawUSD, 0.09, 1e-9) {
		t.Errorf("RawUSD: got %v, want 0.09", got.RawUSD)
	}
	if !approxEqual(got.LocalCost, 0.0855, 1e-9) {
		t.Errorf("LocalCost: got %v, want 0.0855", got.LocalCost)
	}
	if !approxEqual(got.BasePoints, 8.55, 1e-9) {
		t.Errorf("BasePoints: got %v, want 8.55", got.BasePoints)
	}
	if got.FinalPoints != 18 {
		t.Errorf("FinalPoints: got %d, want 18", got.FinalPoints)
	}
	if got.ModelFallback {
		t.Error("ModelFallback should be false for a cataloged model")
	}
}

// Near-zero usage in deep mode clamps to the deep floor.
func TestComputeDeepFloorVector(t *testing.T) {
	c := testCalculator()

	got, err := c.Compute(Usage{PromptUnits: 10, CandidateUnits: 10}, ModeDeep, false, "gemini-2.5-flash")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got.FinalPoints != 10 {
		t.Errorf("FinalPoints: got %d, want deep floor 10", got.FinalPoints)
	}
}

func TestComputeZeroUsageHitsFloor(t *testing.T) {
	c := testCalculator()

	got, err := c.Compute(Usage{}, ModeStandard, false, "gemini-2.5-flash")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got.FinalPoints != 5 {
		t.Errorf("FinalPoints: got %d, want standard floor 5", got.FinalPoints)
	}
}

// ---- Contract violations -------------------------------------------------

func TestComputeNegativeUsage(t *testing.T) {
	c := testCalculator()

	for _, u := range []Usage{
		{PromptUnits: -1, CandidateUnits: 0},
		{PromptUnits: 0, CandidateUnits: -1},
	} {
		if _, err := c.Compute(u, ModeStandard, false, "gemini-2.5-flash"); !errors.Is(err, ErrNegativeUsage) {
			t.Errorf("Compute(%+v): err = %v, want ErrNegativeUsage", u, err)
		}
	}
}

// ---- Fallback policy -----------------------------------------------------

func TestComputeUnknownModelUsesDefaultPricing(t *testing.T) {
	c := testCalculator()
	u := Usage{PromptUnits: 100_000, CandidateUnits: 20_000}

	got, err := c.Compute(u, ModeStandard, false, "gemini-99-ultra")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	want, _ := c.Compute(u, ModeStandard, false, "gemini-2.5-flash")
	if got.FinalPoints != want.FinalPoints {
		t.Errorf("FinalPoints: got %d, want %d (default model pricing)", got.FinalPoints, want.FinalPoints)
	}
	if !got.ModelFallback {
		t.Error("ModelFallback should be true for an unknown model")
	}
	if got.Model != "gemini-2.5-flash" {
		t.Errorf("Model: got %q, want default model", got.Model)
	}
}

// ---- Invariants ----------------------------------------------------------

// Cost is non-decreasing in both usage counters.
func TestComputeMonotonic(t *testing.T) {
	c := testCalculator()

	prev := -1
	for units := 0; units <= 2_000_000; units += 100_000 {
		got, err := c.Compute(Usage{PromptUnits: units, CandidateUnits: units / 2}, ModeStandard, false, "gemini-2.5-flash")
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		if got.FinalPoints < prev {
			t.Fatalf("FinalPoints decreased: %d after %d at units=%d", got.FinalPoints, prev, units)
		}
		prev = got.FinalPoints
	}
}

// Every charge respects the per-mode floor.
func TestComputeFloorInvariant(t *testing.T) {
	c := testCalculator()

	for _, mode := range []Mode{ModeStandard, ModeDeep} {
		floor := c.Rates.ForMode(mode).MinPoints
		for _, u := range []Usage{{}, {PromptUnits: 1}, {PromptUnits: 500_000, CandidateUnits: 250_000}} {
			got, err := c.Compute(u, mode, false, "gemini-2.5-flash")
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			if got.FinalPoints < floor {
				t.Errorf("mode %s usage %+v: FinalPoints %d below floor %d", mode, u, got.FinalPoints, floor)
			}
		}
	}
}

// Ceiling rounding never gives away a fractional point: the integer charge
// is always at least the multiplied base points.
func TestComputeCeilingFavorsPlatform(t *testing.T) {
	c := testCalculator()

	for units := 1; units <= 1_000_000; units *= 3 {
		got, err := c.Compute(Usage{PromptUnits: units, CandidateUnits: units}, ModeStandard, false, "gemini-2.5-flash")
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		if float64(got.FinalPoints) < got.BasePoints*c.Rates.Standard.ProfitMultiplier {
			t.Errorf("units=%d: FinalPoints %d under-recovers base %v", units, got.FinalPoints, got.BasePoints)
		}
	}
}

// Batch never costs more than interactive.
func TestComputeBatchDiscount(t *testing.T) {
	c := testCalculator()

	for units := 0; units <= 3_000_000; units += 250_000 {
		u := Usage{PromptUnits: units, CandidateUnits: units / 4}
		batched, err := c.Compute(u, ModeStandard, true, "gemini-2.5-flash")
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		full, err := c.Compute(u, ModeStandard, false, "gemini-2.5-flash")
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		if batched.FinalPoints > full.FinalPoints {
			t.Errorf("units=%d: batch %d > interactive %d", units, batched.FinalPoints, full.FinalPoints)
		}
	}
}

// Deep mode always charges at least standard mode for identical usage.
func TestComputeModeOrdering(t *testing.T) {
	c := testCalculator()

	for units := 0; units <= 2_000_000; units += 200_000 {
		u := Usage{PromptUnits: units, CandidateUnits: units / 5}
		deep, err := c.Compute(u, ModeDeep, false, "gemini-2.5-flash")
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		std, err := c.Compute(u, ModeStandard, false, "gemini-2.5-flash")
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		if deep.FinalPoints < std.FinalPoints {
			t.Errorf("units=%d: deep %d < standard %d", units, deep.FinalPoints, std.FinalPoints)
		}
	}
}

func TestModeValid(t *testing.T) {
	if !ModeStandard.Valid() || !ModeDeep.Valid() {
		t.Error("standard and deep must be valid modes")
	}
	if Mode("turbo").Valid() {
		t.Error("unknown mode must not be valid")
	}
}
