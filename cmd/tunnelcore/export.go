package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"tunnelcore/internal/logger"

	"github.com/spf13/cobra"
)

var flagOutDir string

var exportCmd = &cobra.Command{
	Use:   "export <profile-id>",
	Short: "Write the per-app VPN MDM documents for a profile",
	Long:  `Builds the .mobileconfig, the Settings command JSON and the two device command plists, and writes them to --out. Requires tunnel.mode perAppManaged and at least one app bundle id.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		defer s.Close()

		bundle, profile, err := s.svc.Export(context.Background(), parseProfileID(args[0]))
		if err != nil {
			logger.Log.Fatalf("❌ Export failed: %v", err)
		}

		if err := os.MkdirAll(flagOutDir, 0755); err != nil {
			logger.Log.Fatalf("Failed to create output directory: %v", err)
		}

		files := []struct {
			name string
			data []byte
		}{
			{"profile.mobileconfig", bundle.MobileConfigXML},
			{"settings.json", bundle.SettingsCommandJSON},
			{"settings-command.plist", bundle.SettingsDeviceCommandPlist},
			{"install-profile-command.plist", bundle.InstallProfileDeviceCommandPlist},
		}
		for _, f := range files {
			path := filepath.Join(flagOutDir, f.name)
			// The mobileconfig embeds the user id.
			if err := os.WriteFile(path, f.data, 0600); err != nil {
				logger.Log.Fatalf("Failed to write %s: %v", path, err)
			}
			logger.Log.Debugf("Wrote %s (%s)", path, formatBytes(int64(len(f.data))))
		}

		logger.Log.Infof("✅ Exported %q to %s", profile.Name, flagOutDir)
		fmt.Printf("VPNUUID: %s\n", bundle.VPNUUID)
		fmt.Println("Bind managed apps to this VPNUUID in your MDM.")
	},
}

func init() {
	exportCmd.Flags().StringVar(&flagOutDir, "out", ".", "Output directory")
	rootCmd.AddCommand(exportCmd)
}
