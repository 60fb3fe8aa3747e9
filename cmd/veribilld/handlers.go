package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/openai/openai-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	billing "github.com/verilens-labs/billing-engine"
	"github.com/verilens-labs/billing-engine/internal/ledger"
	"github.com/verilens-labs/billing-engine/internal/logging"
	"github.com/verilens-labs/billing-engine/internal/metrics"
	"github.com/verilens-labs/billing-engine/internal/ratelimit"
	"github.com/verilens-labs/billing-engine/internal/vendorusage"
	"github.com/verilens-labs/billing-engine/pricing"
)

// newRouter builds the HTTP router.
func newRouter(engine *billing.Engine, store ledger.Store, limiter *ratelimit.Store, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/estimate", handleEstimate(engine))
		r.Post("/price", handlePrice(engine))

		r.Get("/pricing/tiers", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]interface{}{"tiers": engine.Tiers()})
		})
		r.Get("/pricing/services", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]interface{}{"services": engine.FixedPrices()})
		})
		r.Get("/pricing/models", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]interface{}{"models": engine.Catalog()})
		})

		r.Route("/accounts/{accountID}", func(r chi.Router) {
			if limiter != nil {
				r.Use(accountRateLimit(limiter))
			}
			r.Post("/charge", handleCharge(engine))
			r.Post("/charge-fixed", handleChargeFixed(engine))
			r.Post("/credit", handleCredit(engine))
			r.Get("/balance", handleBalance(store))
			r.Get("/transactions", handleTransactions(store))
			r.Post("/grant-tier", handleGrantTier(engine))
		})
	})

	return r
}

// accountRateLimit caps request rates per account ID.
func accountRateLimit(limiter *ratelimit.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(chi.URLParam(r, "accountID")) {
				metrics.RateLimitRejections.Inc()
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "rate_limited")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type estimateRequest struct {
	ContentType     string       `json:"content_type"` // "video" or "text"
	DurationSeconds float64      `json:"duration_seconds,omitempty"`
	CharLength      int          `json:"char_length,omitempty"`
	Mode            pricing.Mode `json:"mode"`
	Batch           bool         `json:"batch,omitempty"`
	Model           string       `json:"model,omitempty"`
	// AccountID is optional; when present the response includes an
	// advisory affordability flag against the cached balance.
	AccountID string `json:"account_id,omitempty"`
}

func handleEstimate(engine *billing.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req estimateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "invalid_request")
			return
		}

		var (
			res billing.EstimateResult
			err error
		)
		switch req.ContentType {
		case "video":
			res, err = engine.EstimateVideo(req.DurationSeconds, req.Mode, req.Batch, req.Model)
		case "text":
			res, err = engine.EstimateText(req.CharLength, req.Mode, req.Batch, req.Model)
		default:
			writeError(w, http.StatusBadRequest, "content_type must be \"video\" or \"text\"", "invalid_request")
			return
		}
		if err != nil {
			writeBillingError(w, err)
			return
		}

		resp := map[string]interface{}{
			"estimate": res.Estimate,
			"cost":     res.Cost,
		}
		if req.AccountID != "" {
			affordable, err := engine.Affordable(r.Context(), req.AccountID, res.Cost.FinalPoints)
			if err != nil {
				writeBillingError(w, err)
				return
			}
			resp["affordable"] = affordable
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type chargeRequest struct {
	// Usage carries the counters directly when the caller has already
	// extracted them.
	Usage *pricing.Usage `json:"usage,omitempty"`
	// Vendor + VendorResponse let the caller pass the vendor payload
	// as-is; usage is extracted server-side. Supported vendors:
	// "gemini", "openai".
	Vendor         string          `json:"vendor,omitempty"`
	VendorResponse json.RawMessage `json:"vendor_response,omitempty"`

	Mode      pricing.Mode `json:"mode"`
	Batch     bool         `json:"batch,omitempty"`
	Model     string       `json:"model,omitempty"`
	Reference string       `json:"reference,omitempty"`
}

func (req *chargeRequest) resolveUsage() (pricing.Usage, error) {
	if req.Usage != nil {
		return *req.Usage, nil
	}
	switch req.Vendor {
	case "gemini":
		return vendorusage.FromGemini(req.VendorResponse)
	case "openai":
		var u openai.CompletionUsage
		if err := json.Unmarshal(req.VendorResponse, &u); err != nil {
			return pricing.Usage{}, err
		}
		return vendorusage.FromOpenAI(u), nil
	case "":
		return pricing.Usage{}, errors.New("either usage or vendor/vendor_response is required")
	default:
		return pricing.Usage{}, errors.New("unsupported vendor: " + req.Vendor)
	}
}

func handlePrice(engine *billing.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chargeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "invalid_request")
			return
		}
		usage, err := req.resolveUsage()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "invalid_request")
			return
		}

		cost, err := engine.Price(usage, req.Mode, req.Batch, req.Model)
		if err != nil {
			writeBillingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"cost": cost})
	}
}

func handleCharge(engine *billing.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chargeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "invalid_request")
			return
		}
		usage, err := req.resolveUsage()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "invalid_request")
			return
		}

		accountID := chi.URLParam(r, "accountID")
		cost, balance, err := engine.Charge(r.Context(), accountID, usage, req.Mode, req.Batch, req.Model, req.Reference)
		if err != nil {
			writeBillingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"cost":    cost,
			"balance": balance,
		})
	}
}

type chargeFixedRequest struct {
	Service   pricing.ServiceKind `json:"service"`
	Reference string              `json:"reference,omitempty"`
}

func handleChargeFixed(engine *billing.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chargeFixedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "invalid_request")
			return
		}

		accountID := chi.URLParam(r, "accountID")
		points, balance, err := engine.ChargeFixed(r.Context(), accountID, req.Service, req.Reference)
		if err != nil {
			writeBillingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"service": req.Service,
			"points":  points,
			"balance": balance,
		})
	}
}

type creditRequest struct {
	Points int    `json:"points"`
	Reason string `json:"reason,omitempty"`
}

func handleCredit(engine *billing.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req creditRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "invalid_request")
			return
		}
		if req.Points <= 0 {
			writeError(w, http.StatusBadRequest, "points must be positive", "invalid_request")
			return
		}

		accountID := chi.URLParam(r, "accountID")
		balance, err := engine.Credit(r.Context(), accountID, req.Points, req.Reason)
		if err != nil {
			writeBillingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"balance": balance})
	}
}

type grantTierRequest struct {
	TierID string `json:"tier_id"`
}

func handleGrantTier(engine *billing.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req grantTierRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "invalid_request")
			return
		}

		accountID := chi.URLParam(r, "accountID")
		tier, balance, err := engine.GrantTier(r.Context(), accountID, req.TierID)
		if err != nil {
			writeBillingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"tier":    tier,
			"granted": tier.TotalPoints(),
			"balance": balance,
		})
	}
}

func handleBalance(store ledger.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		balance, err := store.Balance(r.Context(), chi.URLParam(r, "accountID"))
		if err != nil {
			writeBillingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"balance": balance})
	}
}

func handleTransactions(store ledger.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			limit, _ = strconv.Atoi(v)
		}
		txns, err := store.History(r.Context(), chi.URLParam(r, "accountID"), limit)
		if err != nil {
			writeBillingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": txns})
	}
}

// writeBillingError maps engine and ledger errors to HTTP responses.
func writeBillingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientPoints):
		writeError(w, http.StatusPaymentRequired, err.Error(), "insufficient_points")
	case errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "account_not_found")
	case errors.Is(err, pricing.ErrServiceUnknown):
		writeError(w, http.StatusNotFound, err.Error(), "service_unknown")
	case errors.Is(err, billing.ErrUnknownTier):
		writeError(w, http.StatusNotFound, err.Error(), "tier_unknown")
	case errors.Is(err, billing.ErrUnknownMode), errors.Is(err, pricing.ErrNegativeUsage):
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_request")
	default:
		writeError(w, http.StatusInternalServerError, err.Error(), "internal_error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"message": message,
			"code":    code,
		},
	})
}
