package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"tunnelcore/internal/logger"
	"tunnelcore/internal/model"
	"tunnelcore/internal/probe"
	"tunnelcore/internal/store"
	"tunnelcore/internal/tunnel"
	"tunnelcore/internal/xray"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tunnel mode, stored profiles and the last start error",
	Long:  `Displays a dashboard of the configured tunnel mode, the profile store, whether a local tunnel is listening on the SOCKS inbound, and the most recent start failure if it is still fresh.`,
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		defer s.Close()
		ctx := context.Background()

		profiles, err := s.svc.Profiles(ctx)
		if err != nil {
			logger.Log.Fatalf("Failed to load profiles: %v", err)
		}
		missingSecrets := 0
		perApp := 0
		for _, p := range profiles {
			if store.IsRedacted(p) {
				missingSecrets++
			}
			if len(p.PerAppBundleIDs) > 0 {
				perApp++
			}
		}

		report, err := s.svc.Status(ctx)
		if err != nil {
			logger.Log.Fatalf("Failed to read tunnel status: %v", err)
		}

		// A tunnel started by "connect" lives in another process; the
		// inbound port is the only trace of it from here.
		tunnelState := report.Status.String()
		if report.Status == tunnel.StatusInvalid {
			tunnelState = "not running"
		}
		if report.Status != tunnel.StatusConnected {
			prober, err := probe.New(500 * time.Millisecond)
			if err == nil {
				res := prober.Probe(ctx, probe.Target{Host: xray.InboundHost, Port: xray.InboundPort})
				if res.Reachable {
					tunnelState = tunnel.StatusConnected.String() + " (other process)"
				}
			}
		}

		dbSize := getFileSize(s.cfg.Database.Path)
		walSize := getFileSize(s.cfg.Database.Path + "-wal")

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

		fmt.Println("\n📊 \033[1mTUNNELCORE STATUS\033[0m")
		fmt.Println("────────────────────────────────────────")

		fmt.Fprintln(w, "\033[1;36m[ TUNNEL ]\033[0m\t")
		fmt.Fprintf(w, "  Mode:\t%s\n", report.Mode)
		fmt.Fprintf(w, "  State:\t%s\n", tunnelState)
		fmt.Fprintf(w, "  SOCKS Inbound:\t%s:%d\n", xray.InboundHost, xray.InboundPort)
		if report.Mode == model.ModePerAppManaged {
			fmt.Fprintf(w, "  Provider Bundle:\t%s\n", s.cfg.Tunnel.ProviderBundleID)
		}
		if report.LastError != "" {
			fmt.Fprintf(w, "  Last Start Error:\t\033[1;31m%s\033[0m\n", report.LastError)
		}
		fmt.Fprintln(w, "\t")

		fmt.Fprintln(w, "\033[1;36m[ PROFILES ]\033[0m\t")
		fmt.Fprintf(w, "  Saved:\t%d\n", len(profiles))
		fmt.Fprintf(w, "  Per-App:\t%d\n", perApp)
		if missingSecrets > 0 {
			fmt.Fprintf(w, "  Missing Secrets:\t%d (re-import to fix)\n", missingSecrets)
		}
		fmt.Fprintf(w, "  Secrets Backend:\t%s\n", s.cfg.Secrets.Backend)
		fmt.Fprintln(w, "\t")

		fmt.Fprintln(w, "\033[1;36m[ STORAGE ]\033[0m\t")
		fmt.Fprintf(w, "  Database Path:\t%s\n", s.cfg.Database.Path)
		fmt.Fprintf(w, "  DB Size:\t%s\n", formatBytes(dbSize))
		if walSize > 0 {
			fmt.Fprintf(w, "  WAL Size:\t%s (pending checkpoint)\n", formatBytes(walSize))
		}
		if s.cfg.AutoBind.Endpoint != "" {
			fmt.Fprintf(w, "  Auto-Bind:\t%s\n", s.cfg.AutoBind.Endpoint)
		}

		w.Flush()
		fmt.Println("")
	},
}

func getFileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

func getFlagEmoji(countryCode string) string {
	if len(countryCode) != 2 {
		return "🌐"
	}
	countryCode = strings.ToUpper(countryCode)
	return string(rune(countryCode[0])+127397) + string(rune(countryCode[1])+127397)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
