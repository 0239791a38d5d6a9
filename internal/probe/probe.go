// Package probe checks whether profile endpoints accept TCP connections,
// either directly or through the engine's local SOCKS inbound.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"tunnelcore/internal/geoip"
	"tunnelcore/internal/logger"
	"tunnelcore/internal/metrics"

	"golang.org/x/net/proxy"
)

const DefaultTimeout = 4 * time.Second

const (
	MessageReachable   = "reachable"
	MessageInvalidPort = "invalid port"
	MessageTimeout     = "connection timed out"
)

type Target struct {
	Name string
	Host string
	Port int
}

type Result struct {
	Target    Target
	Reachable bool
	Latency   time.Duration
	Message   string

	// Filled when a geoip database is configured.
	IP      string
	ISP     string
	Country string
}

type Prober struct {
	timeout time.Duration
	dialer  proxy.ContextDialer
	via     string
	geo     *geoip.Reader
	metrics *metrics.Collector
}

type Option func(*Prober) error

// WithSOCKS routes probes through a SOCKS5 proxy such as the engine inbound.
func WithSOCKS(addr string) Option {
	return func(p *Prober) error {
		d, err := proxy.SOCKS5("tcp", addr, nil, &net.Dialer{Timeout: p.timeout})
		if err != nil {
			return fmt.Errorf("failed to create socks dialer for %s: %w", addr, err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return fmt.Errorf("socks dialer for %s does not support contexts", addr)
		}
		p.dialer = cd
		p.via = addr
		return nil
	}
}

func WithGeoIP(r *geoip.Reader) Option {
	return func(p *Prober) error {
		p.geo = r
		return nil
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(p *Prober) error {
		p.metrics = c
		return nil
	}
}

func New(timeout time.Duration, opts ...Option) (*Prober, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p := &Prober{timeout: timeout, dialer: &net.Dialer{}}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Probe opens and immediately closes one TCP connection to the target.
func (p *Prober) Probe(ctx context.Context, target Target) Result {
	res := Result{Target: target}
	if target.Port < 1 || target.Port > 65535 {
		res.Message = MessageInvalidPort
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	addr := net.JoinHostPort(target.Host, strconv.Itoa(target.Port))
	start := time.Now()
	conn, err := p.dialer.DialContext(ctx, "tcp", addr)
	latency := time.Since(start)

	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordFailure(err)
		}
		if isTimeout(ctx, err) {
			res.Message = MessageTimeout
		} else {
			res.Message = "connection failed: " + err.Error()
		}
		logger.Log.Debugf("Probe %s failed after %v: %v", addr, latency, err)
	} else {
		conn.Close()
		res.Reachable = true
		res.Latency = latency
		res.Message = MessageReachable
		if p.metrics != nil {
			p.metrics.RecordSuccess(latency)
		}
	}

	p.annotate(ctx, &res)
	return res
}

func (p *Prober) annotate(ctx context.Context, res *Result) {
	if p.geo == nil {
		return
	}
	ip := res.Target.Host
	if net.ParseIP(ip) == nil {
		addrs, err := net.DefaultResolver.LookupIPAddr(ctx, ip)
		if err != nil || len(addrs) == 0 {
			return
		}
		ip = addrs[0].IP.String()
	}
	res.IP = ip
	if geo, err := p.geo.Lookup(ip); err == nil {
		res.ISP = geo.ISP
		res.Country = geo.Country
	}
}

// ProbeAll probes targets with a bounded worker pool. Results keep the input
// order. onDone, if set, is called once per finished target.
func (p *Prober) ProbeAll(ctx context.Context, targets []Target, workers int, onDone func(Result)) []Result {
	if workers <= 0 {
		workers = 1
	}
	results := make([]Result, len(targets))
	jobs := make(chan int)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				r := p.Probe(ctx, targets[idx])
				results[idx] = r
				if onDone != nil {
					mu.Lock()
					onDone(r)
					mu.Unlock()
				}
			}
		}()
	}

	for i := range targets {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
