package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/verilens-labs/billing-engine/internal/ledger"
	"github.com/verilens-labs/billing-engine/internal/metrics"
	"github.com/verilens-labs/billing-engine/pricing"
)

// fakeLedger is an in-memory ledger.Store for engine tests.
type fakeLedger struct {
	balances map[string]int64
	history  []ledger.Transaction
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[string]int64)}
}

func (f *fakeLedger) Debit(_ context.Context, accountID string, points int, reference string) (int64, error) {
	balance, ok := f.balances[accountID]
	if !ok {
		return 0, ledger.ErrAccountNotFound
	}
	if balance < int64(points) {
		return 0, ledger.ErrInsufficientPoints
	}
	f.balances[accountID] = balance - int64(points)
	f.history = append(f.history, ledger.Transaction{
		AccountID: accountID, Delta: -int64(points), Kind: ledger.KindCharge, Reference: reference,
	})
	return f.balances[accountID], nil
}

func (f *fakeLedger) Credit(_ context.Context, accountID string, points int, reference string) (int64, error) {
	f.balances[accountID] += int64(points)
	f.history = append(f.history, ledger.Transaction{
		AccountID: accountID, Delta: int64(points), Kind: ledger.KindCredit, Reference: reference,
	})
	return f.balances[accountID], nil
}

func (f *fakeLedger) Balance(_ context.Context, accountID string) (int64, error) {
	balance, ok := f.balances[accountID]
	if !ok {
		return 0, ledger.ErrAccountNotFound
	}
	return balance, nil
}

func (f *fakeLedger) History(_ context.Context, accountID string, _ int) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	for _, txn := range f.history {
		if txn.AccountID == accountID {
			out = append(out, txn)
		}
	}
	return out, nil
}

func testCatalog() pricing.Catalog {
	return pricing.Catalog{
		"gemini-2.5-flash": {InputPerMUnits: 0.50, OutputPerMUnits: 2.00},
	}
}

func testEngine(t *testing.T, store ledger.Store) *Engine {
	t.Helper()
	e, err := NewWithCatalog(DefaultConfig(), testCatalog(), store)
	if err != nil {
		t.Fatalf("NewWithCatalog: %v", err)
	}
	return e
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rates.ExchangeRate = 0
	if _, err := NewWithCatalog(cfg, testCatalog(), nil); err == nil {
		t.Error("expected config validation error")
	}
}

func TestEnginePriceReferenceVector(t *testing.T) {
	e := testEngine(t, nil)

	cost, err := e.Price(pricing.Usage{PromptUnits: 100_000, CandidateUnits: 20_000}, pricing.ModeStandard, false, "gemini-2.5-flash")
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if cost.FinalPoints != 18 {
		t.Errorf("FinalPoints: got %d, want 18", cost.FinalPoints)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

// An unknown model is priced with the default model's entry, flagged on
// the cost breakdown, and counted on the fallback metric so operators
// can alert on misconfigured clients.
func TestEnginePriceUnknownModelCountsFallback(t *testing.T) {
	e := testEngine(t, nil)
	fallbacks := metrics.ModelFallbacksTotal.WithLabelValues("gemini-99-ultra")
	before := counterValue(t, fallbacks)

	cost, err := e.Price(pricing.Usage{PromptUnits: 100_000, CandidateUnits: 20_000}, pricing.ModeStandard, false, "gemini-99-ultra")
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if !cost.ModelFallback {
		t.Error("ModelFallback flag not set for unknown model")
	}
	if cost.Model != "gemini-2.5-flash" {
		t.Errorf("Model: got %q, want default gemini-2.5-flash", cost.Model)
	}
	if cost.FinalPoints != 18 {
		t.Errorf("FinalPoints: got %d, want the default model's 18", cost.FinalPoints)
	}
	if got := counterValue(t, fallbacks); got != before+1 {
		t.Errorf("ModelFallbacksTotal: got %v, want %v", got, before+1)
	}
}

func TestEnginePriceUnknownMode(t *testing.T) {
	e := testEngine(t, nil)

	if _, err := e.Price(pricing.Usage{}, "turbo", false, "gemini-2.5-flash"); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("err = %v, want ErrUnknownMode", err)
	}
}

func TestEngineEstimateVideoPricesProjection(t *testing.T) {
	e := testEngine(t, nil)

	res, err := e.EstimateVideo(120, pricing.ModeStandard, false, "gemini-2.5-flash")
	if err != nil {
		t.Fatalf("EstimateVideo: %v", err)
	}
	if res.Estimate.InputUnits <= 0 || res.Estimate.OutputUnits <= 0 {
		t.Errorf("estimate: got %+v", res.Estimate)
	}
	want, err := e.Price(res.Estimate.Usage(), pricing.ModeStandard, false, "gemini-2.5-flash")
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if res.Cost.FinalPoints != want.FinalPoints {
		t.Errorf("projected cost %d disagrees with direct pricing %d", res.Cost.FinalPoints, want.FinalPoints)
	}
}

func TestEngineChargeDeductsBalance(t *testing.T) {
	store := newFakeLedger()
	e := testEngine(t, store)
	ctx := context.Background()

	if _, err := e.Credit(ctx, "user-1", 100, "promo"); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	cost, balance, err := e.Charge(ctx, "user-1", pricing.Usage{PromptUnits: 100_000, CandidateUnits: 20_000}, pricing.ModeStandard, false, "gemini-2.5-flash", "analysis:v1")
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if cost.FinalPoints != 18 {
		t.Errorf("FinalPoints: got %d, want 18", cost.FinalPoints)
	}
	if balance != 82 {
		t.Errorf("balance: got %d, want 82", balance)
	}
}

func TestEngineChargeInsufficient(t *testing.T) {
	store := newFakeLedger()
	e := testEngine(t, store)
	ctx := context.Background()

	if _, err := e.Credit(ctx, "user-1", 5, ""); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	_, _, err := e.Charge(ctx, "user-1", pricing.Usage{PromptUnits: 100_000, CandidateUnits: 20_000}, pricing.ModeStandard, false, "gemini-2.5-flash", "")
	if !errors.Is(err, ledger.ErrInsufficientPoints) {
		t.Fatalf("err = %v, want ErrInsufficientPoints", err)
	}
	if balance := store.balances["user-1"]; balance != 5 {
		t.Errorf("balance after rejected charge: got %d, want 5", balance)
	}
}

func TestEngineChargeFixed(t *testing.T) {
	store := newFakeLedger()
	e := testEngine(t, store)
	ctx := context.Background()

	if _, err := e.Credit(ctx, "user-1", 20, ""); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	points, balance, err := e.ChargeFixed(ctx, "user-1", pricing.ServiceLinkArticle, "link:xyz")
	if err != nil {
		t.Fatalf("ChargeFixed: %v", err)
	}
	if points != 12 {
		t.Errorf("points: got %d, want 12", points)
	}
	if balance != 8 {
		t.Errorf("balance: got %d, want 8", balance)
	}
}

func TestEngineChargeFixedUnknownService(t *testing.T) {
	e := testEngine(t, newFakeLedger())

	if _, _, err := e.ChargeFixed(context.Background(), "user-1", "tarot-reading", ""); !errors.Is(err, pricing.ErrServiceUnknown) {
		t.Errorf("err = %v, want ErrServiceUnknown", err)
	}
}

func TestEngineGrantTier(t *testing.T) {
	store := newFakeLedger()
	e := testEngine(t, store)

	tier, balance, err := e.GrantTier(context.Background(), "user-1", "standard")
	if err != nil {
		t.Fatalf("GrantTier: %v", err)
	}
	if balance != int64(tier.TotalPoints()) {
		t.Errorf("balance: got %d, want %d", balance, tier.TotalPoints())
	}
	if tier.TotalPoints() != 1200 {
		t.Errorf("standard tier grant: got %d, want 1200", tier.TotalPoints())
	}
}

func TestEngineGrantUnknownTier(t *testing.T) {
	e := testEngine(t, newFakeLedger())

	if _, _, err := e.GrantTier(context.Background(), "user-1", "diamond"); !errors.Is(err, ErrUnknownTier) {
		t.Errorf("err = %v, want ErrUnknownTier", err)
	}
}

func TestEngineAffordable(t *testing.T) {
	store := newFakeLedger()
	e := testEngine(t, store)
	ctx := context.Background()

	// Never-credited accounts hold zero points.
	ok, err := e.Affordable(ctx, "new-user", 1)
	if err != nil {
		t.Fatalf("Affordable: %v", err)
	}
	if ok {
		t.Error("new account should not afford a positive charge")
	}

	if _, err := e.Credit(ctx, "user-1", 18, ""); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	ok, err = e.Affordable(ctx, "user-1", 18)
	if err != nil {
		t.Fatalf("Affordable: %v", err)
	}
	if !ok {
		t.Error("exact balance should afford the charge")
	}
}

func TestEngineReplaceCatalog(t *testing.T) {
	e := testEngine(t, nil)

	e.ReplaceCatalog(pricing.Catalog{
		"gemini-2.5-flash": {InputPerMUnits: 5.0, OutputPerMUnits: 20.0},
	})

	cost, err := e.Price(pricing.Usage{PromptUnits: 100_000, CandidateUnits: 20_000}, pricing.ModeStandard, false, "gemini-2.5-flash")
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	// Ten times the reference prices: raw 0.9 USD → 85.5 base points → 171.
	if cost.FinalPoints != 171 {
		t.Errorf("FinalPoints after catalog swap: got %d, want 171", cost.FinalPoints)
	}
}
