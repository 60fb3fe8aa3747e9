package pricing

import (
	"errors"
	"fmt"
)

// ServiceKind names a flat-fee analysis service. Fixed-price services
// bypass the usage calculator entirely.
type ServiceKind string

// Fixed-price service kinds.
const (
	ServiceLinkArticle     ServiceKind = "link-article"
	ServiceSocialPost      ServiceKind = "social-post"
	ServiceCommentAnalysis ServiceKind = "comment-analysis"
	ServiceSocialFullAudit ServiceKind = "social-full-audit"
	ServiceCompareMode     ServiceKind = "compare-mode-surcharge"
)

// ErrServiceUnknown is returned when a fixed-price lookup names a service
// kind that is not in the table. Unknown kinds always error; there is no
// default price.
var ErrServiceUnknown = errors.New("pricing: unknown service kind")

// FixedPrices maps service kinds to their flat points cost.
type FixedPrices map[ServiceKind]int

// Price returns the flat points cost for kind.
func (f FixedPrices) Price(kind ServiceKind) (int, error) {
	p, ok := f[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrServiceUnknown, kind)
	}
	return p, nil
}

// Tier is a purchasable points bundle. Read-only reference data defined
// at deploy time; the checkout flow itself lives outside this service.
type Tier struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	PriceUSD    float64 `json:"price_usd" yaml:"price_usd"`
	BasePoints  int     `json:"base_points" yaml:"base_points"`
	BonusPoints int     `json:"bonus_points" yaml:"bonus_points"`
	// Featured marks the tier highlighted in the storefront. A display
	// hint only: zero or multiple featured tiers are tolerated.
	Featured bool `json:"featured,omitempty" yaml:"featured,omitempty"`
	// VariantID is the payment processor's product variant identifier.
	VariantID string `json:"variant_id" yaml:"variant_id"`
}

// TotalPoints is the full grant for a purchase: base plus bonus.
func (t Tier) TotalPoints() int {
	return t.BasePoints + t.BonusPoints
}

// Tiers is the ordered tier catalog, smallest bundle first.
type Tiers []Tier

// Find returns the tier with the given ID.
func (ts Tiers) Find(id string) (Tier, bool) {
	for _, t := range ts {
		if t.ID == id {
			return t, true
		}
	}
	return Tier{}, false
}

// Featured returns the first featured tier, if any.
func (ts Tiers) Featured() (Tier, bool) {
	for _, t := range ts {
		if t.Featured {
			return t, true
		}
	}
	return Tier{}, false
}

// DefaultFixedPrices returns the deploy-time flat-fee table.
func DefaultFixedPrices() FixedPrices {
	return FixedPrices{
		ServiceLinkArticle:     12,
		ServiceSocialPost:      8,
		ServiceCommentAnalysis: 6,
		ServiceSocialFullAudit: 20,
		ServiceCompareMode:     4,
	}
}

// DefaultTiers returns the deploy-time point bundle catalog.
func DefaultTiers() Tiers {
	return Tiers{
		{ID: "starter", Name: "Starter", PriceUSD: 4.99, BasePoints: 500, VariantID: "var-starter-500"},
		{ID: "standard", Name: "Standard", PriceUSD: 9.99, BasePoints: 1100, BonusPoints: 100, Featured: true, VariantID: "var-standard-1200"},
		{ID: "pro", Name: "Pro", PriceUSD: 19.99, BasePoints: 2400, BonusPoints: 400, VariantID: "var-pro-2800"},
		{ID: "max", Name: "Max", PriceUSD: 49.99, BasePoints: 6500, BonusPoints: 1500, VariantID: "var-max-8000"},
	}
}
