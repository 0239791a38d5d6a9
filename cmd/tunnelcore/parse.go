package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"tunnelcore/internal/logger"
	"tunnelcore/internal/xray"
	"tunnelcore/internal/xray/parser"

	"github.com/spf13/cobra"
)

var flagShowSecret bool

var parseCmd = &cobra.Command{
	Use:   "parse <link or text>",
	Short: "Decode a vmess:// link",
	Long:  `Decodes a vmess:// link (or the first link found in the given text) and prints the endpoint. The user id is redacted unless --show-secret is set.`,
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		input := strings.Join(args, " ")
		links := xray.ExtractLinks(input)
		if len(links) == 0 {
			links = []string{strings.TrimSpace(input)}
		}

		failed := 0
		for _, link := range links {
			endpoint, err := parser.Parse(link)
			if err != nil {
				logger.Log.Errorf("❌ %v", err)
				failed++
				continue
			}
			fingerprint := shortFingerprint(endpoint)
			if !flagShowSecret {
				endpoint.ID = endpoint.RedactedID()
			}
			out, _ := json.MarshalIndent(struct {
				*parser.Endpoint
				Fingerprint string `json:"fingerprint"`
			}{endpoint, fingerprint}, "", "  ")
			fmt.Println(string(out))
		}
		if failed > 0 {
			logger.Log.Fatalf("%d of %d link(s) failed to parse", failed, len(links))
		}
	},
}

func shortFingerprint(e *parser.Endpoint) string {
	fp := e.Fingerprint()
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func init() {
	parseCmd.Flags().BoolVar(&flagShowSecret, "show-secret", false, "Print the user id unredacted")
	rootCmd.AddCommand(parseCmd)
}
