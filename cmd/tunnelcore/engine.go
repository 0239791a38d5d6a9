package main

import (
	"context"
	"fmt"

	"tunnelcore/internal/logger"
	"tunnelcore/internal/xray"

	"github.com/spf13/cobra"
)

var flagValidate bool

var engineCmd = &cobra.Command{
	Use:   "engine <profile-id | link>",
	Short: "Print the xray config for a profile",
	Long:  `Builds the engine JSON for a saved profile or an ad-hoc vmess:// link. With --validate the document is also compiled by xray-core.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		defer s.Close()

		ctx := context.Background()
		profile, err := s.svc.ResolveProfile(ctx, args[0])
		if err != nil {
			logger.Log.Fatalf("Failed to resolve profile: %v", err)
		}

		doc, err := s.svc.EngineConfig(profile)
		if err != nil {
			logger.Log.Fatalf("Failed to build engine config: %v", err)
		}

		if flagValidate {
			if err := xray.Validate(doc); err != nil {
				logger.Log.Fatalf("❌ Engine rejected config: %v", err)
			}
			logger.Log.Info("✅ Engine config is valid")
		}
		fmt.Println(doc)
	},
}

func init() {
	engineCmd.Flags().BoolVar(&flagValidate, "validate", false, "Compile the config with xray-core before printing")
	rootCmd.AddCommand(engineCmd)
}
