package probe

import (
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/gonetx/checkit/gui"
)

const maxLatency = int64(10 * time.Minute / time.Microsecond)

// stats aggregates iteration outcomes across virtual users.
type stats struct {
	mut        sync.Mutex
	base       gui.Snapshot
	start      time.Time
	end        time.Time
	iterations int64
	requests   int64
	codes      gui.Codes
	errs       map[string]int
	latencies  *hdrhistogram.Histogram
	checks     []gui.Check
	throughput int64
}

func newStats(base gui.Snapshot) *stats {
	return &stats{
		base: base,
		errs: make(map[string]int),
		// 1us to 10min, 3 significant figures
		latencies: hdrhistogram.New(1, maxLatency, 3),
	}
}

func (s *stats) begin() {
	s.mut.Lock()
	s.start = time.Now()
	s.mut.Unlock()
}

func (s *stats) finish() {
	s.mut.Lock()
	s.end = time.Now()
	s.mut.Unlock()
}

func (s *stats) record(code int, latency time.Duration, err error, res CheckResult) {
	s.mut.Lock()
	defer s.mut.Unlock()

	s.iterations++
	if err != nil {
		s.errs[errorKey(err)]++
	} else {
		s.requests++
		s.appendCode(code)
		s.appendLatency(latency)
	}
	s.appendCheck(res)
}

// errorKey drops the connection addresses from network errors, so failures
// that differ only by ephemeral port share one entry.
func errorKey(err error) string {
	var opErr *net.OpError
	if !errors.As(err, &opErr) || opErr.Err == nil {
		return err.Error()
	}

	inner := opErr.Err
	var sysErr *os.SyscallError
	if errors.As(inner, &sysErr) {
		inner = sysErr.Err
	}

	key := opErr.Op
	if opErr.Net != "" {
		key += " " + opErr.Net
	}
	return key + ": " + inner.Error()
}

func (s *stats) appendCode(code int) {
	switch code / 100 {
	case 1:
		s.codes.Code1xx++
	case 2:
		s.codes.Code2xx++
	case 3:
		s.codes.Code3xx++
	case 4:
		s.codes.Code4xx++
	case 5:
		s.codes.Code5xx++
	default:
		s.codes.CodeOthers++
	}
}

func (s *stats) appendLatency(latency time.Duration) {
	us := latency.Microseconds()
	if us > maxLatency {
		us = maxLatency
	}
	_ = s.latencies.RecordValue(us)
}

func (s *stats) appendCheck(res CheckResult) {
	for i := range s.checks {
		if s.checks[i].Name == res.Name {
			s.countCheck(&s.checks[i], res.Passed)
			return
		}
	}
	s.checks = append(s.checks, gui.Check{Name: res.Name})
	s.countCheck(&s.checks[len(s.checks)-1], res.Passed)
}

func (s *stats) countCheck(c *gui.Check, passed bool) {
	if passed {
		c.Passes++
	} else {
		c.Fails++
	}
}

func (s *stats) snapshot() *gui.Snapshot {
	s.mut.Lock()
	defer s.mut.Unlock()

	snap := s.base
	snap.Iterations = s.iterations
	snap.Requests = s.requests
	snap.Bytes = atomic.LoadInt64(&s.throughput)
	snap.Codes = s.codes
	snap.Checks = append([]gui.Check(nil), s.checks...)

	if len(s.errs) > 0 {
		snap.Errors = make(map[string]int, len(s.errs))
		for k, v := range s.errs {
			snap.Errors[k] = v
		}
	}

	switch {
	case !s.end.IsZero():
		snap.Elapsed = s.end.Sub(s.start)
		snap.Done = true
	case !s.start.IsZero():
		snap.Elapsed = time.Since(s.start)
	}

	if s.latencies.TotalCount() > 0 {
		snap.Latency = gui.Latency{
			Avg:   s.latencies.Mean() / 1000,
			Stdev: s.latencies.StdDev() / 1000,
			Max:   float64(s.latencies.Max()) / 1000,
			P50:   float64(s.latencies.ValueAtQuantile(50)) / 1000,
			P90:   float64(s.latencies.ValueAtQuantile(90)) / 1000,
			P95:   float64(s.latencies.ValueAtQuantile(95)) / 1000,
			P99:   float64(s.latencies.ValueAtQuantile(99)) / 1000,
		}
	}

	return &snap
}
