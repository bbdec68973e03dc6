package gui

import (
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/valyala/bytebufferpool"
)

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff00"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff0000"))
	errStyle  = lipgloss.NewStyle().Underline(true)
)

// Result renders the end-of-run summary of a snapshot.
type Result struct {
	s   *Snapshot
	buf *bytebufferpool.ByteBuffer
}

func NewResult(s *Snapshot) *Result {
	return &Result{s: s, buf: bytebufferpool.Get()}
}

// Print writes the summary to w and releases the render buffer.
func (r *Result) Print(w io.Writer) error {
	defer bytebufferpool.Put(r.buf)
	r.buf.Reset()

	r.writeTitle()
	r.writeChecks()
	r.writeTotalRequest()
	r.writeElapsed()
	r.writeStatistics()
	r.writeCodes()
	r.writeThroughput()
	r.writeErrors()

	_, err := r.buf.WriteTo(w)
	return err
}

func (r *Result) writeTitle() {
	_, _ = fmt.Fprintf(r.buf, "Probing %s with %d virtual users\n", r.s.URL, r.s.VUs)
}

func (r *Result) writeChecks() {
	_, _ = r.buf.WriteString("Checks:\n")
	for _, c := range r.s.Checks {
		mark := passStyle.Render("✓")
		if c.Fails > 0 {
			mark = failStyle.Render("✗")
		}
		_, _ = fmt.Fprintf(r.buf, "  %s %s  ✓ %d  ✗ %d  (%.2f%%)\n",
			mark, c.Name, c.Passes, c.Fails, c.Rate()*100)
	}
}

func (r *Result) writeTotalRequest() {
	_, _ = fmt.Fprintf(r.buf, "Total iterations: %d, responses: %d\n", r.s.Iterations, r.s.Requests)
}

func (r *Result) writeElapsed() {
	_, _ = fmt.Fprintf(r.buf, "Elapsed: %.2fs\n", r.s.Elapsed.Seconds())
}

func (r *Result) writeStatistics() {
	l := r.s.Latency
	_, _ = fmt.Fprintf(r.buf, "Reqs/sec: %.2f\n", r.s.Rps())
	_, _ = r.buf.WriteString("Latency       Avg       Stdev       Max       p50       p90       p95       p99\n")
	_, _ = fmt.Fprintf(r.buf, "          %.2fms    %.2fms    %.2fms    %.2fms    %.2fms    %.2fms    %.2fms\n",
		l.Avg, l.Stdev, l.Max, l.P50, l.P90, l.P95, l.P99)
}

func (r *Result) writeCodes() {
	c := r.s.Codes
	_, _ = r.buf.WriteString("HTTP codes:\n")
	_, _ = fmt.Fprintf(r.buf, "  1xx - %d, 2xx - %d, 3xx - %d, 4xx - %d, 5xx - %d\n",
		c.Code1xx, c.Code2xx, c.Code3xx, c.Code4xx, c.Code5xx)
	_, _ = fmt.Fprintf(r.buf, "  Others - %d\n", c.CodeOthers)
}

func (r *Result) writeThroughput() {
	throughput, unit := formatThroughput(r.s.Throughput())
	_, _ = fmt.Fprintf(r.buf, "Throughput: %.2f %s\n", throughput, unit)
}

func (r *Result) writeErrors() {
	if len(r.s.Errors) == 0 {
		return
	}
	_, _ = r.buf.WriteString("Errors:\n")
	for _, err := range sortedErrors(r.s.Errors) {
		_, _ = fmt.Fprintf(r.buf, "  %s: %d\n", errStyle.Render(err), r.s.Errors[err])
	}
}

// sortedErrors orders error messages by descending count.
func sortedErrors(errs map[string]int) []string {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if errs[keys[i]] != errs[keys[j]] {
			return errs[keys[i]] > errs[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

func formatThroughput(throughput float64) (float64, string) {
	switch {
	case throughput < 1e3:
		return throughput, "B/s"
	case throughput < 1e6:
		return throughput / 1e3, "KB/s"
	case throughput < 1e9:
		return throughput / 1e6, "MB/s"
	default:
		return throughput / 1e9, "GB/s"
	}
}
