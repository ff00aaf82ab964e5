// ReminEx — household food-inventory client
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/reminex/client/internal/config"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reminex",
	Short: "ReminEx — track what is in the kitchen before it expires",
	Long: `ReminEx client
Adds products to the household inventory by barcode, camera scan, photo
spoilage prediction, dictation or label reading, and shows prices in the
currency of your choice.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(ratesCmd)
	rootCmd.AddCommand(priceCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(currencyCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(productCmd)
	rootCmd.AddCommand(productsCmd)
	rootCmd.AddCommand(plansCmd)
	rootCmd.AddCommand(serveCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ReminEx client %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session, rates and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()
		res := a.rates.Refresh(ctx)

		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  ReminEx — Client Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Printf("  Signed in:     %t\n", a.session.SignedIn())
		fmt.Printf("  Currency:      %s\n", a.session.Currency())
		fmt.Printf("  Rates:         %d currencies (%s)\n", res.Count, res.Source)
		if at := a.rates.FetchedAt(); !at.IsZero() {
			fmt.Printf("  Rates as of:   %s\n", at.Local().Format(time.RFC1123))
		}
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    Backend:       %s\n", cfg.Backend.BaseURL)
		fmt.Printf("    Rate source:   %s\n", cfg.Rates.URL)
		fmt.Printf("    Store:         %s\n", cfg.Storage.Path)
		fmt.Printf("    Dictation:     %s\n", enabled(cfg.Speech.Endpoint))
		fmt.Printf("    Label OCR:     %s\n", enabled(cfg.OCR.Endpoint))
		fmt.Printf("    API Server:    %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Println()

		fmt.Println("  Credentials:")
		for _, k := range config.CheckSecrets(cfg, a.session.Token()) {
			status := "❌ not set"
			if k.IsSet {
				status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-25s %s\n", k.Name+":", status)
		}

		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}

func enabled(endpoint string) string {
	if endpoint == "" {
		return "not configured"
	}
	return endpoint
}
