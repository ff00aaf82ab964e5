package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/reminex/client/internal/currency"
)

func refreshRates(cmd *cobra.Command, a *app) currency.RefreshResult {
	ctx, cancel := context.WithTimeout(cmd.Context(), 20*time.Second)
	defer cancel()
	res := a.rates.Refresh(ctx)
	if res.Err != nil && res.Source != currency.SourceNetwork {
		fmt.Fprintf(os.Stderr, "⚠️  live rates unavailable, using %s rates (%v)\n", res.Source, res.Err)
	}
	return res
}

// --- Rates Command ---

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Show exchange rates (units per 1 USD)",
	RunE:  runRatesList,
}

var ratesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every known currency and its rate",
	RunE:  runRatesList,
}

var ratesRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch the latest rates and store a snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		res := refreshRates(cmd, a)
		fmt.Printf("💱 %d currencies loaded from %s\n", res.Count, res.Source)
		return nil
	},
}

func init() {
	ratesCmd.AddCommand(ratesListCmd)
	ratesCmd.AddCommand(ratesRefreshCmd)
}

func runRatesList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res := refreshRates(cmd, a)
	selected := a.session.Currency()
	rates := a.rates.Rates()

	fmt.Printf("💱 Rates per 1 USD (%s)\n\n", res.Source)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, code := range a.rates.CurrencyList() {
		mark := " "
		if code == selected {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s %s\t%s\n", mark, code, strconv.FormatFloat(rates[code], 'f', -1, 64))
	}
	return tw.Flush()
}

// --- Price Command ---

var priceCmd = &cobra.Command{
	Use:   "price <usd>",
	Short: "Show a USD amount in your currency",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		usd, ok := currency.ParseAmount(args[0])
		if !ok {
			return fmt.Errorf("not an amount: %q", args[0])
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		refreshRates(cmd, a)

		code := targetCurrency(cmd, a)
		fmt.Printf("%s  (%s %s)\n", a.rates.FormatPrice(usd, code), a.rates.ConvertUSDToLocal(usd, code), code)
		return nil
	},
}

// --- Convert Command ---

var convertCmd = &cobra.Command{
	Use:   "convert <amount>",
	Short: "Convert an amount in your currency to USD",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, ok := currency.ParseAmount(args[0])
		if !ok {
			return fmt.Errorf("not an amount: %q", args[0])
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		refreshRates(cmd, a)

		code := targetCurrency(cmd, a)
		usd := currency.RoundUSD(a.rates.ConvertLocalToUSD(amount, code))
		fmt.Printf("%s %s = %s USD\n", args[0], code, strconv.FormatFloat(usd, 'f', 2, 64))
		return nil
	},
}

func init() {
	priceCmd.Flags().String("currency", "", "currency code (default: your selected currency)")
	convertCmd.Flags().String("currency", "", "currency code (default: your selected currency)")
}

func targetCurrency(cmd *cobra.Command, a *app) string {
	if code, _ := cmd.Flags().GetString("currency"); code != "" {
		return strings.ToUpper(strings.TrimSpace(code))
	}
	return a.session.Currency()
}

// --- Currency Command ---

var currencyCmd = &cobra.Command{
	Use:   "currency",
	Short: "Show or change your display currency",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		fmt.Println(a.session.Currency())
		return nil
	},
}

var currencySetCmd = &cobra.Command{
	Use:   "set <code>",
	Short: "Select the display currency",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		refreshRates(cmd, a)

		if err := a.session.ChangeCurrency(args[0]); err != nil {
			return err
		}
		fmt.Printf("✅ Prices will be shown in %s\n", a.session.Currency())
		return nil
	},
}

func init() {
	currencyCmd.AddCommand(currencySetCmd)
}
