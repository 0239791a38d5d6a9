package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"tunnelcore/internal/app"
	"tunnelcore/internal/logger"
	"tunnelcore/internal/store"

	"github.com/spf13/cobra"
)

var (
	flagName      string
	flagDNS       string
	flagApps      string
	flagOnDemand  bool
	flagBypassLAN bool
	flagProfileID string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage saved VPN profiles",
}

var profileAddCmd = &cobra.Command{
	Use:   "add <link>",
	Short: "Import a vmess:// link as a profile",
	Long:  `Parses the link, stores the profile with its user id moved to the secret store, and prints the new profile id. Use --id to overwrite an existing profile.`,
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		defer s.Close()

		in := app.ProfileInput{
			Link:      strings.Join(args, " "),
			Name:      flagName,
			DNSCSV:    flagDNS,
			AppsCSV:   flagApps,
			OnDemand:  flagOnDemand,
			BypassLAN: flagBypassLAN,
		}
		if flagProfileID != "" {
			id := parseProfileID(flagProfileID)
			in.ID = &id
		}

		profile, err := s.svc.SaveProfile(context.Background(), in)
		if err != nil {
			logger.Log.Fatalf("❌ Failed to save profile: %v", err)
		}
		logger.Log.Infof("✅ Saved profile %q", profile.Name)
		fmt.Println(profile.ID)
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved profiles",
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		defer s.Close()

		profiles, err := s.svc.Profiles(context.Background())
		if err != nil {
			logger.Log.Fatalf("Failed to load profiles: %v", err)
		}
		if len(profiles) == 0 {
			fmt.Println("(No profiles saved)")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSERVER\tNETWORK\tAPPS\tSECRET")
		for _, p := range profiles {
			secret := "ok"
			if store.IsRedacted(p) {
				secret = "missing"
			}
			network := p.Endpoint.Network
			if strings.EqualFold(p.Endpoint.TLS, "tls") {
				network += "+tls"
			}
			fmt.Fprintf(w, "%s\t%s\t%s:%d\t%s\t%d\t%s\n",
				p.ID, p.Name, p.Endpoint.Host, p.Endpoint.Port, network, len(p.PerAppBundleIDs), secret)
		}
		w.Flush()
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <profile-id>",
	Short: "Delete a profile and its stored secret",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		defer s.Close()

		id := parseProfileID(args[0])
		if err := s.svc.DeleteProfile(context.Background(), id); err != nil {
			logger.Log.Fatalf("❌ Failed to delete profile: %v", err)
		}
		logger.Log.Infof("🗑️  Deleted profile %s", id)
	},
}

var profileShareCmd = &cobra.Command{
	Use:   "share <profile-id>",
	Short: "Print a vmess:// link for a saved profile",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		defer s.Close()

		profile, err := s.svc.ResolveProfile(context.Background(), parseProfileID(args[0]).String())
		if err != nil {
			logger.Log.Fatalf("Failed to load profile: %v", err)
		}
		if store.IsRedacted(profile) {
			logger.Log.Fatalf("❌ %v", app.ErrSecretMissing)
		}
		fmt.Println(profile.Endpoint.Link())
	},
}

func init() {
	profileAddCmd.Flags().StringVar(&flagName, "name", "", "Profile name (defaults to the link remark)")
	profileAddCmd.Flags().StringVar(&flagDNS, "dns", "", "Comma-separated DNS servers")
	profileAddCmd.Flags().StringVar(&flagApps, "apps", "", "Comma-separated app bundle ids for per-app routing")
	profileAddCmd.Flags().BoolVar(&flagOnDemand, "on-demand", false, "Enable connect on demand")
	profileAddCmd.Flags().BoolVar(&flagBypassLAN, "bypass-lan", true, "Route private networks directly")
	profileAddCmd.Flags().StringVar(&flagProfileID, "id", "", "Overwrite the profile with this id")

	profileCmd.AddCommand(profileAddCmd, profileListCmd, profileDeleteCmd, profileShareCmd)
	rootCmd.AddCommand(profileCmd)
}
