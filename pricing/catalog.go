// Package pricing implements the points-billing core of the VeriLens
// platform: pre-flight token estimation, post-call cost computation, and
// the static catalogs for fixed-price services and purchasable point
// bundles.
//
// Everything in this package is a pure function over immutable
// configuration loaded at startup, so concurrent callers need no
// coordination. The only stateful pieces are the catalog Holder and the
// optional file watcher, both of which swap whole catalogs atomically.
package pricing

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed catalog_backup.json
var bundledCatalog []byte

//go:embed catalog_schema.json
var catalogSchema []byte

// CatalogURLEnv is the env var operators set to override the model price
// catalog source, e.g. for a staging price sheet or an air-gapped deploy.
const CatalogURLEnv = "VERIBILL_MODEL_CATALOG_URL"

const defaultCatalogURL = "https://raw.githubusercontent.com/verilens-labs/billing-engine/main/pricing/catalog.json"

// ModelPrice carries a model's per-million-unit prices in USD, as
// negotiated with the generation vendor.
type ModelPrice struct {
	InputPerMUnits  float64 `json:"input_per_m_units"`
	OutputPerMUnits float64 `json:"output_per_m_units"`
}

// Catalog maps a generative-model identifier to its price entry.
type Catalog map[string]ModelPrice

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
)

// LoadCatalog fetches the model price catalog from a remote URL (1s
// timeout). On any failure (network, HTTP status, schema violation) it
// falls back to the embedded catalog_backup.json. Billing never fails to
// start because the price sheet is unreachable.
func LoadCatalog() (Catalog, error) {
	url := os.Getenv(CatalogURLEnv)
	if url == "" {
		url = defaultCatalogURL
	}

	if data, err := fetchRemote(url); err == nil {
		if c, err := ParseCatalog(data); err == nil {
			return c, nil
		}
		// Remote payload fetched but failed validation, fall through.
	}
	return ParseCatalog(bundledCatalog)
}

// LoadCatalogFile reads and validates a catalog from a local JSON file.
func LoadCatalogFile(path string) (Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog validates data against the embedded catalog schema and
// unmarshals it. Rejecting malformed payloads up front keeps a bad remote
// price sheet from silently zeroing out charges.
func ParseCatalog(data []byte) (Catalog, error) {
	schemaOnce.Do(func() {
		compiledSchema = jsonschema.MustCompileString("catalog_schema.json", string(catalogSchema))
	})

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog parse: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("catalog schema: %w", err)
	}

	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog parse: %w", err)
	}
	return c, nil
}

func fetchRemote(url string) ([]byte, error) {
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog fetch: HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Resolve looks up modelID, substituting defaultModel's pricing when the
// ID is unknown. Pricing must never block billing an already-completed
// analysis, so an unknown model is a policy fallback rather than an error;
// the returned bool flags the substitution so callers can alarm on it.
// When neither model exists the zero ModelPrice is returned, which prices
// everything at the mode floor.
func (c Catalog) Resolve(modelID, defaultModel string) (price ModelPrice, resolved string, fallback bool) {
	if p, ok := c[modelID]; ok {
		return p, modelID, false
	}
	if p, ok := c[defaultModel]; ok {
		return p, defaultModel, true
	}
	return ModelPrice{}, defaultModel, true
}
