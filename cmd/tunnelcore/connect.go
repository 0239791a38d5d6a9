package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"tunnelcore/internal/logger"
	"tunnelcore/internal/xray"

	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect <profile-id | link>",
	Short: "Run the tunnel in the foreground",
	Long:  `Starts xray-core with the profile's config and keeps it running until interrupted. The SOCKS inbound listens on 127.0.0.1:10808. Not available in perAppManaged mode, where the OS routes apps through the exported profile.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		defer s.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		profile, err := s.svc.ResolveProfile(ctx, args[0])
		if err != nil {
			logger.Log.Fatalf("Failed to resolve profile: %v", err)
		}

		if err := s.svc.Connect(ctx, profile); err != nil {
			logger.Log.Fatalf("❌ Connect failed: %v", err)
		}
		logger.Log.Infof("🚀 Connected %q, SOCKS on %s:%d (Ctrl+C to stop)", profile.Name, xray.InboundHost, xray.InboundPort)

		<-ctx.Done()
		logger.Log.Info("Stopping tunnel...")
		if err := s.svc.Disconnect(context.Background()); err != nil {
			logger.Log.Errorf("Disconnect failed: %v", err)
			return
		}
		logger.Log.Info("✅ Disconnected")
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
}
