package main

import (
	"context"
	"errors"
	"fmt"

	"tunnelcore/internal/autobind"
	"tunnelcore/internal/logger"

	"github.com/spf13/cobra"
)

var bindCmd = &cobra.Command{
	Use:   "bind <profile-id>",
	Short: "Ask the auto-bind service to assign the per-app VPN",
	Long:  `Exports the profile and posts the MDM documents to autobind.endpoint so the managed apps get bound to its VPNUUID.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		defer s.Close()

		resp, err := s.svc.Bind(context.Background(), parseProfileID(args[0]))
		if err != nil {
			var rejected *autobind.RejectedError
			if errors.As(err, &rejected) {
				logger.Log.Fatalf("❌ %v", rejected)
			}
			logger.Log.Fatalf("❌ Auto-bind failed: %v", err)
		}

		msg := resp.Message
		if msg == "" {
			msg = "accepted"
		}
		fmt.Println(msg)
		if id := resp.ID(); id != "" {
			fmt.Printf("Request ID: %s\n", id)
		}
	},
}

func init() {
	rootCmd.AddCommand(bindCmd)
}
