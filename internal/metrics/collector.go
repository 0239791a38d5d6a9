package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"
)

// Collector aggregates probe outcomes across a batch.
type Collector struct {
	mu sync.Mutex

	// Latency Tracking (Successes only)
	latencies []time.Duration

	// Error Tracking
	errorCounts map[string]int
	totalErrors int

	// Network Saturation Heuristic
	timeoutErrors int
}

func New() *Collector {
	return &Collector{
		errorCounts: make(map[string]int),
	}
}

func (c *Collector) RecordSuccess(latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.latencies = append(c.latencies, latency)
}

func (c *Collector) RecordFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalErrors++
	errType := Categorize(err)
	if errType == CategoryTimeout {
		c.timeoutErrors++
	}
	c.errorCounts[errType]++
}

const (
	CategoryTimeout = "Timeout (Slow)"
	CategoryRefused = "Conn Refused (Fast)"
	CategoryReset   = "Conn Reset (Fast)"
	CategoryEOF     = "EOF / Empty"
	CategoryDNS     = "DNS Error"
	CategoryUnknown = "Unknown"
)

// Categorize buckets a dial error by its message.
func Categorize(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return CategoryTimeout
	case strings.Contains(msg, "refused"):
		return CategoryRefused
	case strings.Contains(msg, "reset"):
		return CategoryReset
	case strings.Contains(msg, "EOF"):
		return CategoryEOF
	case strings.Contains(msg, "no such host"):
		return CategoryDNS
	default:
		return CategoryUnknown
	}
}

// Summary is a point-in-time copy of the collected numbers.
type Summary struct {
	Successes int
	Failures  int
	Timeouts  int
	Average   time.Duration
	P50       time.Duration
	P90       time.Duration
	Errors    map[string]int
}

func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		Successes: len(c.latencies),
		Failures:  c.totalErrors,
		Timeouts:  c.timeoutErrors,
		Errors:    make(map[string]int, len(c.errorCounts)),
	}
	for k, v := range c.errorCounts {
		s.Errors[k] = v
	}
	if len(c.latencies) > 0 {
		sorted := append([]time.Duration(nil), c.latencies...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		s.Average = average(sorted)
		s.P50 = sorted[len(sorted)/2]
		s.P90 = sorted[int(float64(len(sorted))*0.9)]
	}
	return s
}

func (c *Collector) PrintReport(out io.Writer, currentTimeout time.Duration) {
	s := c.Summary()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(out, "\n📊 \033[1mPROBE REPORT\033[0m")
	fmt.Fprintln(out, "────────────────────────────────────────")

	if s.Successes > 0 {
		fmt.Fprintln(w, "\033[1;36m[ LATENCY (Reachable Endpoints) ]\033[0m")
		fmt.Fprintf(w, "  Reachable:\t%d\n", s.Successes)
		fmt.Fprintf(w, "  Avg Connect:\t%v\n", s.Average.Round(time.Millisecond))
		fmt.Fprintf(w, "  p50 (Median):\t%v\n", s.P50.Round(time.Millisecond))
		fmt.Fprintf(w, "  p90 (Slowest 10%%):\t%v\n", s.P90.Round(time.Millisecond))

		recTimeout := s.P90 + (500 * time.Millisecond)
		fmt.Fprintf(w, "  💡 Recommendation:\tSet 'probe.timeout' to ~%s (Current: %s)\n", recTimeout.Round(time.Second), currentTimeout)
		fmt.Fprintln(w, "")
	}

	fmt.Fprintln(w, "\033[1;36m[ NETWORK HEALTH / ERRORS ]\033[0m")
	fmt.Fprintf(w, "  Total Failures:\t%d\n", s.Failures)

	if s.Failures > 0 {
		timeoutPct := float64(s.Timeouts) / float64(s.Failures) * 100
		fmt.Fprintf(w, "  Timeouts:\t%d (%.1f%%)\n", s.Timeouts, timeoutPct)

		keys := make([]string, 0, len(s.Errors))
		for k := range s.Errors {
			if k != CategoryTimeout {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s:\t%d\n", k, s.Errors[k])
		}

		if timeoutPct > 70 {
			fmt.Fprintln(w, "  ⚠️  \033[1;31mMOSTLY TIMEOUTS\033[0m: the network may be filtering these endpoints.")
		}
	}

	w.Flush()
	fmt.Fprintln(out, "")
}

func average(d []time.Duration) time.Duration {
	if len(d) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range d {
		sum += v
	}
	return time.Duration(int64(sum) / int64(len(d)))
}
