// Command veribilld runs the VeriLens points-billing HTTP service.
//
// Configuration is environment-driven:
//
//	VERIBILL_CONFIG        path to a billing config file (JSON/YAML)
//	VERIBILL_CATALOG_FILE  local model price catalog to hot-reload
//	VERIBILL_POSTGRES_DSN  use Postgres for the ledger instead of SQLite
//	VERIBILL_SQLITE_PATH   SQLite ledger path (default veribill-ledger.db)
//	VERIBILL_RATE_LIMIT    per-account requests/second (default 10)
//	CORS_ORIGINS           comma-separated allowed origins
//	PORT                   listen port (default 8080)
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	billing "github.com/verilens-labs/billing-engine"
	"github.com/verilens-labs/billing-engine/internal/ledger"
	"github.com/verilens-labs/billing-engine/internal/logging"
	"github.com/verilens-labs/billing-engine/internal/ratelimit"
	"github.com/verilens-labs/billing-engine/internal/version"
	"github.com/verilens-labs/billing-engine/pricing"
)

func main() {
	// Local development convenience; absence of a .env file is fine.
	_ = godotenv.Load()
	logging.Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	cfg := billing.DefaultConfig()
	if path := os.Getenv("VERIBILL_CONFIG"); path != "" {
		loaded, err := billing.LoadConfig(path)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	}
	if err := billing.ValidateConfig(cfg); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	store, err := openLedger()
	if err != nil {
		log.Fatalf("Failed to open ledger: %v", err)
	}
	defer func() { _ = store.Close() }()

	engine, err := newEngine(cfg, store)
	if err != nil {
		log.Fatalf("Failed to create billing engine: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if path := os.Getenv("VERIBILL_CATALOG_FILE"); path != "" {
		if err := engine.WatchCatalog(ctx, path); err != nil {
			log.Fatalf("Failed to watch catalog file: %v", err)
		}
		log.Printf("Watching model catalog: %s", path)
	}

	limiter := ratelimit.NewStore(rateLimit(), 0)

	var corsOrigins []string
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		corsOrigins = strings.Split(origins, ",")
	}

	r := newRouter(engine, store, limiter, corsOrigins)

	addr := ":8080"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	go func() {
		<-ctx.Done()
		log.Println("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("VeriBill %s listening on %s (%d model(s) priced)", version.Short(), addr, len(engine.Catalog()))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		log.Fatalf("Server error: %v", err) //nolint:gocritic
	}
	log.Println("Server stopped.")
}

// newEngine prefers a local catalog file when one is configured so the
// watcher and the initial load agree on the source.
func newEngine(cfg billing.Config, store ledger.Store) (*billing.Engine, error) {
	if path := os.Getenv("VERIBILL_CATALOG_FILE"); path != "" {
		catalog, err := pricing.LoadCatalogFile(path)
		if err != nil {
			return nil, err
		}
		return billing.NewWithCatalog(cfg, catalog, store)
	}
	return billing.New(cfg, store)
}

func openLedger() (*ledger.SQLStore, error) {
	if dsn := os.Getenv("VERIBILL_POSTGRES_DSN"); dsn != "" {
		log.Println("Ledger backend: postgres")
		return ledger.NewPostgresStore(dsn)
	}
	path := os.Getenv("VERIBILL_SQLITE_PATH")
	log.Println("Ledger backend: sqlite")
	return ledger.NewSQLiteStore(path)
}

func rateLimit() float64 {
	if v := os.Getenv("VERIBILL_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
		log.Printf("Ignoring invalid VERIBILL_RATE_LIMIT %q", v)
	}
	return 10
}
