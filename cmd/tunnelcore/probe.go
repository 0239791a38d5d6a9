package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"tunnelcore/internal/geoip"
	"tunnelcore/internal/logger"
	"tunnelcore/internal/metrics"
	"tunnelcore/internal/model"
	"tunnelcore/internal/probe"
	"tunnelcore/internal/store"
	"tunnelcore/internal/xray"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	flagProbeAll     bool
	flagViaEngine    bool
	flagProbeTarget  string
	flagProbeWorkers int
)

var probeCmd = &cobra.Command{
	Use:   "probe [profile-id | link]",
	Short: "Check whether profile servers are reachable",
	Long: `Opens a TCP connection to each profile's server and reports latency.
With --via-engine the profile is started in xray-core on a free local port and --target is dialed through its SOCKS inbound instead.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 && !flagProbeAll {
			logger.Log.Fatal("Specify a profile id or link, or use --all")
		}

		s := mustSession()
		defer s.Close()
		ctx := context.Background()

		var profiles []model.Profile
		if flagProbeAll {
			all, err := s.svc.Profiles(ctx)
			if err != nil {
				logger.Log.Fatalf("Failed to load profiles: %v", err)
			}
			profiles = all
		} else {
			p, err := s.svc.ResolveProfile(ctx, args[0])
			if err != nil {
				logger.Log.Fatalf("Failed to resolve profile: %v", err)
			}
			profiles = []model.Profile{p}
		}
		if len(profiles) == 0 {
			logger.Log.Error("❌ No profiles to probe.")
			return
		}

		geo, err := geoip.Open(s.cfg.Probe.GeoIPASNPath, s.cfg.Probe.GeoIPCountryPath)
		if err != nil {
			logger.Log.Warnf("GeoIP disabled: %v", err)
		}
		defer geo.Close()

		collector := metrics.New()
		opts := []probe.Option{probe.WithGeoIP(geo), probe.WithMetrics(collector)}

		workers := s.cfg.Probe.Workers
		if flagProbeWorkers > 0 {
			workers = flagProbeWorkers
		}

		var results []probe.Result
		if flagViaEngine {
			results = probeViaEngine(ctx, s.cfg.Probe.Timeout, profiles, opts)
		} else {
			results = probeDirect(ctx, s.cfg.Probe.Timeout, workers, profiles, opts)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PROFILE\tTARGET\tLATENCY\tRESULT\tLOCATION")
		for _, r := range results {
			status := "❌ " + r.Message
			latency := "-"
			if r.Reachable {
				status = "✅ " + r.Message
				latency = r.Latency.Round(time.Millisecond).String()
			}
			location := ""
			if r.Country != "" {
				location = getFlagEmoji(r.Country) + " " + r.ISP
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				r.Target.Name, net.JoinHostPort(r.Target.Host, strconv.Itoa(r.Target.Port)), latency, status, location)
		}
		w.Flush()

		collector.PrintReport(os.Stdout, s.cfg.Probe.Timeout)
	},
}

func probeDirect(ctx context.Context, timeout time.Duration, workers int, profiles []model.Profile, opts []probe.Option) []probe.Result {
	prober, err := probe.New(timeout, opts...)
	if err != nil {
		logger.Log.Fatalf("Failed to create prober: %v", err)
	}

	targets := make([]probe.Target, 0, len(profiles))
	for _, p := range profiles {
		targets = append(targets, probe.Target{Name: p.Name, Host: p.Endpoint.Host, Port: p.Endpoint.Port})
	}

	bar := newProbeBar(len(targets))
	results := prober.ProbeAll(ctx, targets, workers, func(probe.Result) {
		bar.Add(1)
	})
	bar.Finish()
	fmt.Fprint(os.Stderr, "\n")
	return results
}

// probeViaEngine runs one engine instance per profile, one at a time.
func probeViaEngine(ctx context.Context, timeout time.Duration, profiles []model.Profile, opts []probe.Option) []probe.Result {
	host, portStr, err := net.SplitHostPort(flagProbeTarget)
	if err != nil {
		logger.Log.Fatalf("Invalid --target %q: %v", flagProbeTarget, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		logger.Log.Fatalf("Invalid --target port %q", portStr)
	}

	bar := newProbeBar(len(profiles))
	defer func() {
		bar.Finish()
		fmt.Fprint(os.Stderr, "\n")
	}()

	results := make([]probe.Result, 0, len(profiles))
	for _, p := range profiles {
		target := probe.Target{Name: p.Name, Host: host, Port: port}
		results = append(results, probeOneViaEngine(ctx, timeout, p, target, opts))
		bar.Add(1)
	}
	return results
}

func probeOneViaEngine(ctx context.Context, timeout time.Duration, p model.Profile, target probe.Target, opts []probe.Option) probe.Result {
	if store.IsRedacted(p) {
		return probe.Result{Target: target, Message: "secret missing"}
	}

	port, err := xray.FreePort()
	if err != nil {
		return probe.Result{Target: target, Message: fmt.Sprintf("no free port: %v", err)}
	}
	doc, err := xray.BuildConfigOnPort(p, port)
	if err != nil {
		return probe.Result{Target: target, Message: err.Error()}
	}
	instance, err := xray.Start(doc)
	if err != nil {
		logger.Log.Debugf("Engine start for %s failed: %v", p.Name, err)
		return probe.Result{Target: target, Message: "engine failed to start"}
	}
	defer instance.Close()

	socks := net.JoinHostPort(xray.InboundHost, strconv.Itoa(port))
	prober, err := probe.New(timeout, append(opts, probe.WithSOCKS(socks))...)
	if err != nil {
		return probe.Result{Target: target, Message: err.Error()}
	}
	return prober.Probe(ctx, target)
}

func newProbeBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(15),
		progressbar.OptionSetDescription("[cyan]Probing...[reset]"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func init() {
	probeCmd.Flags().BoolVar(&flagProbeAll, "all", false, "Probe every saved profile")
	probeCmd.Flags().BoolVar(&flagViaEngine, "via-engine", false, "Dial --target through each profile's engine instead of the server directly")
	probeCmd.Flags().StringVar(&flagProbeTarget, "target", "1.1.1.1:443", "Address dialed through the engine with --via-engine")
	probeCmd.Flags().IntVar(&flagProbeWorkers, "workers", 0, "Override worker count")
	rootCmd.AddCommand(probeCmd)
}
