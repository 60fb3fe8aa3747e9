// Package billing implements the points-billing engine behind the
// VeriLens fact-checking platform: pre-flight cost estimation, the
// authoritative usage-to-points charge computation, flat-fee services,
// and the purchasable point bundle catalog.
//
// The Engine type is the main entry point: create one with New (or
// NewWithCatalog in tests), then price completed analyses with Price,
// charge accounts with Charge and ChargeFixed, and grant purchased
// bundles with GrantTier. All computation is pure; the only stateful
// collaborator is the ledger.Store that performs atomic balance changes.
package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/verilens-labs/billing-engine/internal/ledger"
	"github.com/verilens-labs/billing-engine/internal/logging"
	"github.com/verilens-labs/billing-engine/internal/metrics"
	"github.com/verilens-labs/billing-engine/pricing"
)

// ErrUnknownMode is returned when a request names an analysis mode that
// is neither standard nor deep.
var ErrUnknownMode = errors.New("billing: unknown analysis mode")

// ErrUnknownTier is returned by GrantTier for tier IDs not in the catalog.
var ErrUnknownTier = errors.New("billing: unknown tier")

// Engine binds the pricing configuration, the live model price catalog,
// and the points ledger into the operations the HTTP and CLI layers call.
type Engine struct {
	cfg       Config
	holder    *pricing.Holder
	estimator *pricing.Estimator
	store     ledger.Store
}

// EstimateResult is a pre-flight projection: the token estimate plus the
// points it would cost if the estimate were exact.
type EstimateResult struct {
	Estimate pricing.Estimate `json:"estimate"`
	Cost     pricing.Cost     `json:"cost"`
}

// New creates an Engine. The model price catalog is loaded from the
// configured remote source with the embedded backup as fallback, so this
// only fails on an invalid Config. store may be nil for callers that only
// price and estimate (e.g. the CLI).
func New(cfg Config, store ledger.Store) (*Engine, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("billing config: %w", err)
	}
	catalog, err := pricing.LoadCatalog()
	if err != nil {
		return nil, fmt.Errorf("load model catalog: %w", err)
	}
	return NewWithCatalog(cfg, catalog, store)
}

// NewWithCatalog creates an Engine over an explicit catalog.
func NewWithCatalog(cfg Config, catalog pricing.Catalog, store ledger.Store) (*Engine, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("billing config: %w", err)
	}
	return &Engine{
		cfg:       cfg,
		holder:    pricing.NewHolder(catalog),
		estimator: pricing.NewEstimator(cfg.Estimator),
		store:     store,
	}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Catalog returns the model price catalog as of this call.
func (e *Engine) Catalog() pricing.Catalog { return e.holder.Current() }

// ReplaceCatalog swaps in a new model price catalog.
func (e *Engine) ReplaceCatalog(c pricing.Catalog) { e.holder.Replace(c) }

// WatchCatalog hot-reloads the model price catalog from path whenever the
// file changes, until ctx is cancelled.
func (e *Engine) WatchCatalog(ctx context.Context, path string) error {
	return pricing.WatchCatalogFile(ctx, path, e.holder, logging.Logger)
}

// Tiers returns the purchasable point bundle catalog.
func (e *Engine) Tiers() pricing.Tiers { return e.cfg.Tiers }

// FixedPrices returns the flat-fee service table.
func (e *Engine) FixedPrices() pricing.FixedPrices { return e.cfg.FixedPrices }

// Price converts actual usage into a points cost without touching any
// account. Unknown models are priced with the default model's entry and
// counted on the fallback metric.
func (e *Engine) Price(u pricing.Usage, mode pricing.Mode, batch bool, modelID string) (pricing.Cost, error) {
	if !mode.Valid() {
		return pricing.Cost{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	calc := pricing.Calculator{
		Catalog:      e.holder.Current(),
		Rates:        e.cfg.Rates,
		DefaultModel: e.cfg.DefaultModel,
	}
	cost, err := calc.Compute(u, mode, batch, modelID)
	if err != nil {
		return pricing.Cost{}, err
	}
	if cost.ModelFallback {
		metrics.ModelFallbacksTotal.WithLabelValues(modelID).Inc()
	}
	return cost, nil
}

// EstimateVideo projects the points cost of analyzing a video before the
// generation call is made.
func (e *Engine) EstimateVideo(durationSeconds float64, mode pricing.Mode, batch bool, modelID string) (EstimateResult, error) {
	if !mode.Valid() {
		return EstimateResult{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	metrics.EstimatesTotal.WithLabelValues("video").Inc()
	est := e.estimator.EstimateVideo(durationSeconds, mode)
	cost, err := e.Price(est.Usage(), mode, batch, modelID)
	if err != nil {
		return EstimateResult{}, err
	}
	return EstimateResult{Estimate: est, Cost: cost}, nil
}

// EstimateText projects the points cost of analyzing an article of the
// given character length.
func (e *Engine) EstimateText(charLength int, mode pricing.Mode, batch bool, modelID string) (EstimateResult, error) {
	if !mode.Valid() {
		return EstimateResult{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	metrics.EstimatesTotal.WithLabelValues("text").Inc()
	est := e.estimator.EstimateText(charLength, mode)
	cost, err := e.Price(est.Usage(), mode, batch, modelID)
	if err != nil {
		return EstimateResult{}, err
	}
	return EstimateResult{Estimate: est, Cost: cost}, nil
}

// Charge prices real usage and atomically deducts the result from the
// account, returning the cost breakdown and the new balance. The ledger
// rejects the whole operation when the balance is insufficient; nothing
// is deducted in that case.
func (e *Engine) Charge(ctx context.Context, accountID string, u pricing.Usage, mode pricing.Mode, batch bool, modelID, reference string) (pricing.Cost, int64, error) {
	cost, err := e.Price(u, mode, batch, modelID)
	if err != nil {
		metrics.ChargesTotal.WithLabelValues(string(mode), "usage", "error").Inc()
		return pricing.Cost{}, 0, err
	}

	balance, err := e.store.Debit(ctx, accountID, cost.FinalPoints, reference)
	if err != nil {
		status := "error"
		if errors.Is(err, ledger.ErrInsufficientPoints) {
			status = "insufficient"
		}
		metrics.ChargesTotal.WithLabelValues(string(mode), "usage", status).Inc()
		return pricing.Cost{}, 0, err
	}

	metrics.ChargesTotal.WithLabelValues(string(mode), "usage", "success").Inc()
	metrics.PointsCharged.WithLabelValues(string(mode)).Observe(float64(cost.FinalPoints))
	logging.FromContext(ctx).Info("charge applied",
		"account", accountID,
		"model", cost.Model,
		"model_fallback", cost.ModelFallback,
		"points", cost.FinalPoints,
		"balance", balance,
		"reference", reference,
	)
	return cost, balance, nil
}

// ChargeFixed deducts the flat fee for a fixed-price service.
func (e *Engine) ChargeFixed(ctx context.Context, accountID string, kind pricing.ServiceKind, reference string) (int, int64, error) {
	points, err := e.cfg.FixedPrices.Price(kind)
	if err != nil {
		metrics.ChargesTotal.WithLabelValues("fixed", "fixed", "error").Inc()
		return 0, 0, err
	}

	balance, err := e.store.Debit(ctx, accountID, points, reference)
	if err != nil {
		status := "error"
		if errors.Is(err, ledger.ErrInsufficientPoints) {
			status = "insufficient"
		}
		metrics.ChargesTotal.WithLabelValues("fixed", "fixed", status).Inc()
		return 0, 0, err
	}

	metrics.ChargesTotal.WithLabelValues("fixed", "fixed", "success").Inc()
	logging.FromContext(ctx).Info("fixed charge applied",
		"account", accountID,
		"service", kind,
		"points", points,
		"balance", balance,
	)
	return points, balance, nil
}

// GrantTier credits an account with the full point grant of a purchased
// tier. Called by the purchase fulfilment hook after the payment
// processor confirms the order; the checkout flow itself lives elsewhere.
func (e *Engine) GrantTier(ctx context.Context, accountID, tierID string) (pricing.Tier, int64, error) {
	tier, ok := e.cfg.Tiers.Find(tierID)
	if !ok {
		return pricing.Tier{}, 0, fmt.Errorf("%w: %q", ErrUnknownTier, tierID)
	}

	balance, err := e.store.Credit(ctx, accountID, tier.TotalPoints(), "tier:"+tier.ID)
	if err != nil {
		return pricing.Tier{}, 0, err
	}

	metrics.CreditsTotal.WithLabelValues("tier").Inc()
	logging.FromContext(ctx).Info("tier granted",
		"account", accountID,
		"tier", tier.ID,
		"points", tier.TotalPoints(),
		"balance", balance,
	)
	return tier, balance, nil
}

// Credit adds points to an account outside the tier flow (support
// adjustments, promotions).
func (e *Engine) Credit(ctx context.Context, accountID string, points int, reason string) (int64, error) {
	balance, err := e.store.Credit(ctx, accountID, points, reason)
	if err != nil {
		return 0, err
	}
	metrics.CreditsTotal.WithLabelValues("manual").Inc()
	return balance, nil
}

// Affordable reports whether the account balance covers a projected
// charge. Accounts that have never been credited have a zero balance.
// Advisory only: the authoritative check is the guarded debit at charge
// time.
func (e *Engine) Affordable(ctx context.Context, accountID string, points int) (bool, error) {
	balance, err := e.store.Balance(ctx, accountID)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return points == 0, nil
	}
	if err != nil {
		return false, err
	}
	return balance >= int64(points), nil
}
