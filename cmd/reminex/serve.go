package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reminex/client/api"
)

// --- Serve Command ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local HTTP API for web and mobile front ends",
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.API.Port = port
		}
		scanDir, _ := cmd.Flags().GetString("scan-dir")

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		refreshRates(cmd, a)

		srv, err := api.NewServer(cfg, api.Services{
			Rates:   a.rates,
			Session: a.session,
			Backend: a.backend,
			Bus:     a.bus,
			Intake:  a.intakeDeps(captureOptions{ScanDir: scanDir}),
			Logger:  a.logger,
		})
		if err != nil {
			return err
		}

		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		fmt.Printf("🚀 ReminEx API listening on http://%s\n", addr)
		return srv.ListenAndServe(addr)
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (default from config)")
	serveCmd.Flags().String("scan-dir", "", "frames to replay as the server-side camera")
}
