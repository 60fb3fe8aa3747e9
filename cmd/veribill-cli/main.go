// Command veribill-cli inspects and exercises the billing configuration
// without running the service: validate a config file, price a usage
// record, estimate content up front, or list the purchasable tiers.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	billing "github.com/verilens-labs/billing-engine"
	"github.com/verilens-labs/billing-engine/internal/version"
	"github.com/verilens-labs/billing-engine/pricing"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "veribill-cli",
		Short:         "VeriLens points-billing toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newValidateCmd(),
		newPriceCmd(),
		newEstimateCmd(),
		newTiersCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig resolves --config, falling back to the built-in defaults.
func loadConfig(path string) (billing.Config, error) {
	if path == "" {
		return billing.DefaultConfig(), nil
	}
	cfg, err := billing.LoadConfig(path)
	if err != nil {
		return billing.Config{}, err
	}
	return *cfg, nil
}

func loadCatalog(path string) (pricing.Catalog, error) {
	if path == "" {
		return pricing.LoadCatalog()
	}
	return pricing.LoadCatalogFile(path)
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a billing config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := billing.LoadConfig(args[0])
			if err != nil {
				return err
			}
			if err := billing.ValidateConfig(*cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d tier(s), %d fixed service(s))\n",
				args[0], len(cfg.Tiers), len(cfg.FixedPrices))
			return nil
		},
	}
}

func newPriceCmd() *cobra.Command {
	var (
		configPath  string
		catalogPath string
		modelID     string
		mode        string
		batch       bool
		prompt      int
		candidate   int
	)
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Price a usage record in points",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			catalog, err := loadCatalog(catalogPath)
			if err != nil {
				return err
			}

			calc := pricing.Calculator{
				Catalog:      catalog,
				Rates:        cfg.Rates,
				DefaultModel: cfg.DefaultModel,
			}
			cost, err := calc.Compute(
				pricing.Usage{PromptUnits: prompt, CandidateUnits: candidate},
				pricing.Mode(mode), batch, modelID,
			)
			if err != nil {
				return err
			}
			return printJSON(cmd, cost)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "billing config file (default: built-in)")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "model price catalog file (default: remote/embedded)")
	cmd.Flags().StringVar(&modelID, "model", "", "model ID (default: config default model)")
	cmd.Flags().StringVar(&mode, "mode", "standard", "analysis mode: standard or deep")
	cmd.Flags().BoolVar(&batch, "batch", false, "apply the batch discount")
	cmd.Flags().IntVar(&prompt, "prompt", 0, "prompt units consumed")
	cmd.Flags().IntVar(&candidate, "candidate", 0, "candidate units produced")
	return cmd
}

func newEstimateCmd() *cobra.Command {
	var (
		configPath  string
		catalogPath string
		modelID     string
		mode        string
		batch       bool
		seconds     float64
		chars       int
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate points for a video or text before analysis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (seconds > 0) == (chars > 0) {
				return fmt.Errorf("exactly one of --seconds or --chars is required")
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			catalog, err := loadCatalog(catalogPath)
			if err != nil {
				return err
			}

			est := pricing.NewEstimator(cfg.Estimator)
			var estimate pricing.Estimate
			if seconds > 0 {
				estimate = est.EstimateVideo(seconds, pricing.Mode(mode))
			} else {
				estimate = est.EstimateText(chars, pricing.Mode(mode))
			}

			calc := pricing.Calculator{
				Catalog:      catalog,
				Rates:        cfg.Rates,
				DefaultModel: cfg.DefaultModel,
			}
			cost, err := calc.Compute(estimate.Usage(), pricing.Mode(mode), batch, modelID)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"estimate": estimate,
				"cost":     cost,
			})
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "billing config file (default: built-in)")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "model price catalog file (default: remote/embedded)")
	cmd.Flags().StringVar(&modelID, "model", "", "model ID (default: config default model)")
	cmd.Flags().StringVar(&mode, "mode", "standard", "analysis mode: standard or deep")
	cmd.Flags().BoolVar(&batch, "batch", false, "apply the batch discount")
	cmd.Flags().Float64Var(&seconds, "seconds", 0, "video duration in seconds")
	cmd.Flags().IntVar(&chars, "chars", 0, "text length in characters")
	return cmd
}

func newTiersCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "tiers",
		Short: "List purchasable point tiers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, t := range cfg.Tiers {
				marker := " "
				if t.Featured {
					marker = "*"
				}
				fmt.Fprintf(w, "%s %-10s $%-7.2f %6d pts", marker, t.ID, t.PriceUSD, t.BasePoints)
				if t.BonusPoints > 0 {
					fmt.Fprintf(w, " +%d bonus", t.BonusPoints)
				}
				fmt.Fprintln(w)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "billing config file (default: built-in)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
