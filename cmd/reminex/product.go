package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/reminex/client/internal/backend"
	"github.com/reminex/client/internal/infra"
	"github.com/reminex/client/internal/intake"
	"github.com/reminex/client/pkg/models"
)

// --- Login / Logout Commands ---

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and remember the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			password = os.Getenv("REMINEX_PASSWORD")
		}
		if email == "" || password == "" {
			return errors.New("--email and --password (or REMINEX_PASSWORD) are required")
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		resp, err := a.backend.Login(ctx, email, password)
		if err != nil {
			return errors.New(backend.MessageOf(err, "login failed: "+err.Error()))
		}
		if err := a.session.SetToken(resp.Token); err != nil {
			return err
		}
		fmt.Printf("✅ Signed in as %s\n", resp.User.Name)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		a.session.Teardown()
		fmt.Println("👋 Signed out")
		return nil
	},
}

func init() {
	loginCmd.Flags().String("email", "", "account email")
	loginCmd.Flags().String("password", "", "account password (prefer REMINEX_PASSWORD)")
}

// --- Product Command ---

var productCmd = &cobra.Command{
	Use:   "product",
	Short: "Manage inventory products",
}

var productAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a product from any mix of barcode, scan, photo, dictation, label and flags",
	Long: `Builds one product draft from every source given, in this order:
barcode lookup, camera scan, photo spoilage prediction, label OCR,
dictation, then explicit field flags (which always win). The draft is
validated and submitted unless --dry-run is set.`,
	RunE: runProductAdd,
}

func init() {
	f := productAddCmd.Flags()
	f.String("name", "", "product name")
	f.String("category", "", "Food or Non-Food")
	f.String("expiry", "", "expiry date (YYYY-MM-DD, \"tomorrow\", 01/04/2025...)")
	f.String("price", "", "price in your currency")
	f.String("weight", "", "weight or count")
	f.String("unit", "", "g, kg, ml, L or pcs")
	f.String("image-url", "", "remote image URL")
	f.String("image", "", "local picture to upload")

	f.String("barcode", "", "look the product up by barcode")
	f.String("scan-dir", "", "scan a barcode from captured frames (file or directory)")
	f.String("predict", "", "estimate expiry from a photo of the produce")
	f.String("label", "", "read name, price, expiry and quantity from a label photo")
	f.String("say", "", "dictate fields as text, e.g. \"milk 1 liter expires tomorrow\"")
	f.String("audio", "", "dictate fields from a recorded clip (needs speech.endpoint)")
	f.Bool("dry-run", false, "print the draft without submitting")

	productCmd.AddCommand(productAddCmd)
}

func runProductAdd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	str := func(name string) string { v, _ := flags.GetString(name); return strings.TrimSpace(v) }

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	refreshRates(cmd, a)

	form := intake.New(a.intakeDeps(captureOptions{
		ScanDir:   str("scan-dir"),
		Say:       str("say"),
		AudioFile: str("audio"),
	}))
	defer form.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	if code := str("barcode"); code != "" {
		fields, err := form.AutofillFromBarcode(ctx, code)
		report("barcode", fields, err)
	}
	if str("scan-dir") != "" {
		fmt.Println("📷 Scanning…")
		res, err := form.ScanOnce(ctx)
		if res.Code != "" {
			fmt.Printf("   read %s\n", res.Code)
		}
		report("scan", res.Fields, err)
	}
	if path := str("image"); path != "" {
		img, err := infra.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		form.SetImageFile(img)
	}
	if path := str("predict"); path != "" {
		if str("image") != path {
			img, err := infra.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read photo: %w", err)
			}
			form.SetImageFile(img)
		}
		summary, err := form.PredictFromImage(ctx)
		if err == nil {
			fmt.Printf("🍎 %s\n", summary)
		}
		report("predict", []intake.Field{intake.FieldExpiry}, err)
	}
	if path := str("label"); path != "" {
		img, err := infra.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read label: %w", err)
		}
		_, fields, err := form.ReadLabel(ctx, img)
		report("label", fields, err)
	}
	if str("say") != "" || str("audio") != "" {
		text, fields, err := form.ListenAndApply(ctx, a.speechOptions(), intake.FieldAll)
		if text != "" {
			fmt.Printf("🎙️  heard %q\n", text)
		}
		report("voice", fields, err)
	}

	if fields := form.Edit(manualPatch(str)); len(fields) > 0 {
		report("flags", fields, nil)
	}

	printDraft(form.Draft(), a.session.Currency())
	if dry, _ := flags.GetBool("dry-run"); dry {
		return nil
	}

	p, err := form.Submit(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Added %s (%s), expires %s\n", p.Name, p.ID, p.ExpiryDate)
	return nil
}

func manualPatch(str func(string) string) intake.Patch {
	var p intake.Patch
	set := func(dst **string, name string) {
		if v := str(name); v != "" {
			*dst = &v
		}
	}
	set(&p.Name, "name")
	set(&p.ExpiryDate, "expiry")
	set(&p.Price, "price")
	set(&p.Weight, "weight")
	set(&p.ImageURL, "image-url")
	if v := str("category"); v != "" {
		c := models.Category(v)
		if strings.EqualFold(v, "food") {
			c = models.CategoryFood
		} else if strings.EqualFold(v, "non-food") || strings.EqualFold(v, "nonfood") {
			c = models.CategoryNonFood
		}
		p.Category = &c
	}
	if v := str("unit"); v != "" {
		u := models.Unit(v)
		if strings.EqualFold(v, "l") {
			u = models.UnitLiter
		}
		p.Unit = &u
	}
	return p
}

// report prints the outcome of one channel. Channel failures are warnings;
// only submit decides the exit status.
func report(channel string, fields []intake.Field, err error) {
	if err != nil {
		if n, ok := intake.AsNotice(err); ok {
			fmt.Fprintf(os.Stderr, "⚠️  %s: %s\n", channel, n.Message)
			return
		}
		fmt.Fprintf(os.Stderr, "⚠️  %s: %v\n", channel, err)
		return
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	fmt.Printf("   %s → %s\n", channel, strings.Join(names, ", "))
}

func printDraft(d intake.Draft, code string) {
	fmt.Println()
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(tw, "  %s\t%s\n", k, v)
		}
	}
	row("Name", d.Name)
	row("Category", string(d.Category))
	row("Expiry", d.ExpiryDate)
	if d.Price != "" {
		row("Price", d.Price+" "+code)
	}
	if d.Weight != "" {
		row("Quantity", d.Weight+" "+string(d.Unit))
	}
	row("Barcode", d.Barcode)
	row("Image", d.ImageURL)
	row("Image file", d.ImageFileName)
	_ = tw.Flush()
	fmt.Println()
}

// --- Products / Plans Commands ---

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List your products with prices in your currency",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		var products []models.Product
		if err := fetchWithRates(cmd, a, func(ctx context.Context) (err error) {
			products, err = a.backend.ListProducts(ctx)
			return err
		}); err != nil {
			return err
		}

		code := a.session.Currency()
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tCATEGORY\tEXPIRES\tQUANTITY\tPRICE")
		for _, p := range products {
			qty := ""
			if p.Weight != nil {
				qty = fmt.Sprintf("%g %s", *p.Weight, p.Unit)
			}
			price := "-"
			if p.Price != nil {
				price = a.rates.FormatPrice(*p.Price, code)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Name, p.Category, p.ExpiryDate, qty, price)
		}
		return tw.Flush()
	},
}

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List subscription plans with prices in your currency",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		var plans []models.Plan
		if err := fetchWithRates(cmd, a, func(ctx context.Context) (err error) {
			plans, err = a.backend.ListPlans(ctx)
			return err
		}); err != nil {
			return err
		}

		code := a.session.Currency()
		for _, p := range plans {
			interval := p.Interval
			if interval == "" {
				interval = "month"
			}
			fmt.Printf("• %s — %s / %s\n", p.Name, a.rates.FormatPrice(p.Price, code), interval)
			for _, feat := range p.Features {
				fmt.Printf("    %s\n", feat)
			}
		}
		return nil
	},
}

// fetchWithRates refreshes the rate table and runs fetch concurrently. A
// rate failure is never fatal; the engine falls back on its own.
func fetchWithRates(cmd *cobra.Command, a *app, fetch func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		refreshRates(cmd, a)
		return nil
	})
	g.Go(func() error {
		if err := fetch(gctx); err != nil {
			if errors.Is(err, backend.ErrSessionExpired) {
				return errors.New("session expired, run `reminex login` again")
			}
			return errors.New(backend.MessageOf(err, err.Error()))
		}
		return nil
	})
	return g.Wait()
}
