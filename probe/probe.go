package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/gonetx/checkit/gui"
	"github.com/gonetx/checkit/internal/logger"
	"github.com/gonetx/checkit/metrics"
)

// ErrThreshold is returned by Run when a check pass rate is below
// Config.MinPassRate.
var ErrThreshold = errors.New("check pass rate below threshold")

type Option func(*Probe)

// WithCollector forwards every request and check outcome to c.
func WithCollector(c metrics.MetricsCollector) Option {
	return func(p *Probe) {
		p.collector = c
	}
}

// WithOutput sets where the end-of-run summary is written.
func WithOutput(w io.Writer) Option {
	return func(p *Probe) {
		p.out = w
	}
}

type Probe struct {
	c *Config
	client
	desc      Descriptor
	check     Check
	limiter   limiter
	collector metrics.MetricsCollector
	stats     *stats
	runID     string
	out       io.Writer

	wg sync.WaitGroup
}

func New(c Config, opts ...Option) *Probe {
	c.setDefaults()

	p := &Probe{
		c:         &c,
		check:     newCheck(c.Accept),
		limiter:   newLimiter(c.Rate),
		collector: metrics.NewNopCollector(),
		runID:     uuid.NewString(),
		out:       os.Stdout,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Run drives c.VUs virtual users until c.Duration elapses, ctx is
// cancelled or every user reached c.Iterations, then prints the summary.
// Failed requests are reported as failed checks, never as an error.
func (p *Probe) Run(ctx context.Context) (snap *gui.Snapshot, err error) {
	if err = p.init(); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.c.Duration)
	defer cancel()

	logger.Logger.Infow("probe started",
		"run_id", p.runID,
		"url", p.desc.URL,
		"vus", p.c.VUs,
		"duration", p.c.Duration,
		"check", p.check.Name,
	)

	done := make(chan struct{})
	go func() {
		p.run(ctx)
		close(done)
	}()

	if p.c.TUI {
		if tuiErr := gui.NewDashboard(p.Snapshot, done, cancel).Start(); tuiErr != nil {
			logger.Logger.Warnw("dashboard stopped", "run_id", p.runID, "error", tuiErr)
		}
	}
	<-done

	snap = p.Snapshot()
	logger.Logger.Infow("probe finished",
		"run_id", p.runID,
		"iterations", snap.Iterations,
		"elapsed", snap.Elapsed,
	)

	if err = gui.NewResult(snap).Print(p.out); err != nil {
		return
	}

	if err = p.export(snap); err != nil {
		return
	}

	err = p.threshold(snap)

	return
}

// Snapshot returns the results aggregated so far.
func (p *Probe) Snapshot() *gui.Snapshot {
	return p.stats.snapshot()
}

func (p *Probe) init() (err error) {
	if err = p.c.validate(); err != nil {
		return
	}

	if p.desc, err = p.c.Descriptor(); err != nil {
		return
	}

	p.stats = newStats(gui.Snapshot{
		RunID:    p.runID,
		URL:      p.desc.URL,
		VUs:      p.c.VUs,
		Duration: p.c.Duration,
	})

	if p.client != nil {
		return
	}

	cc := clientConfig{
		desc:              p.desc,
		vus:               p.c.VUs,
		timeout:           p.c.Timeout,
		throughput:        &p.stats.throughput,
		httpProxy:         p.c.HTTPProxy,
		socksProxy:        p.c.SocksProxy,
		http2:             p.c.HTTP2,
		disableKeepAlives: p.c.DisableKeepAlives,
		pipeline:          p.c.Pipeline,
	}

	if cc.tlsConfig, err = p.c.tlsConfig(); err != nil {
		return
	}

	newClient := newFasthttpClient
	if p.c.netHTTP() {
		newClient = newHttpClient
	}

	p.client, err = newClient(cc)

	return
}

func (p *Probe) run(ctx context.Context) {
	p.stats.begin()

	n := p.c.VUs
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.vu(ctx, i)
	}
	// wait for all virtual users to stop
	p.wg.Wait()

	p.stats.finish()
}

// vu runs iterations back to back. A request in flight when ctx is done
// is allowed to finish and is still recorded.
func (p *Probe) vu(ctx context.Context, i int) {
	defer p.wg.Done()

	for n := 0; p.c.Iterations == 0 || n < p.c.Iterations; n++ {
		if err := p.limiter.wait(ctx); err != nil {
			return
		}
		p.iterate(i)
	}
}

func (p *Probe) iterate(i int) CheckResult {
	code, latency, err := p.do(i)
	res := p.check.Eval(code, err)

	p.stats.record(code, latency, err, res)
	p.collector.PostRequest(metrics.RequestEvent{Status: code, Duration: latency, Err: err})
	p.collector.PostCheck(metrics.CheckEvent{Name: res.Name, Passed: res.Passed})

	if err != nil {
		logger.Logger.Debugw("request failed", "run_id", p.runID, "vu", i, "error", err)
	}

	return res
}

type summary struct {
	*gui.Snapshot
	Config *Config `json:"config"`
}

func (p *Probe) export(snap *gui.Snapshot) error {
	if p.c.SummaryExport == "" {
		return nil
	}

	b, err := json.MarshalIndent(summary{Snapshot: snap, Config: p.c}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	if err = os.WriteFile(filepath.Clean(p.c.SummaryExport), b, 0o644); err != nil {
		return fmt.Errorf("failed to export summary: %w", err)
	}

	return nil
}

func (p *Probe) threshold(snap *gui.Snapshot) error {
	if p.c.MinPassRate <= 0 {
		return nil
	}

	if len(snap.Checks) == 0 {
		return fmt.Errorf("%w: no iterations completed", ErrThreshold)
	}

	for _, c := range snap.Checks {
		if rate := c.Rate(); rate < p.c.MinPassRate {
			return fmt.Errorf("%w: %q passed %.2f%%, want at least %.2f%%",
				ErrThreshold, c.Name, rate*100, p.c.MinPassRate*100)
		}
	}

	return nil
}
