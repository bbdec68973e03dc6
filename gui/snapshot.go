package gui

import "time"

// Snapshot is a point-in-time view of a run's aggregated results.
type Snapshot struct {
	RunID    string        `json:"run_id"`
	URL      string        `json:"url"`
	VUs      int           `json:"vus"`
	Duration time.Duration `json:"duration"`
	Elapsed  time.Duration `json:"elapsed"`

	Iterations int64          `json:"iterations"`
	Requests   int64          `json:"requests"`
	Bytes      int64          `json:"bytes"`
	Codes      Codes          `json:"codes"`
	Latency    Latency        `json:"latency_ms"`
	Checks     []Check        `json:"checks"`
	Errors     map[string]int `json:"errors,omitempty"`

	Done bool `json:"done"`
}

// Codes counts responses by status class.
type Codes struct {
	Code1xx    int64 `json:"1xx"`
	Code2xx    int64 `json:"2xx"`
	Code3xx    int64 `json:"3xx"`
	Code4xx    int64 `json:"4xx"`
	Code5xx    int64 `json:"5xx"`
	CodeOthers int64 `json:"others"`
}

// Latency values are in milliseconds.
type Latency struct {
	Avg   float64 `json:"avg"`
	Stdev float64 `json:"stdev"`
	Max   float64 `json:"max"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

type Check struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// Rate is the pass ratio, or 0 when the check never ran.
func (c Check) Rate() float64 {
	total := c.Passes + c.Fails
	if total == 0 {
		return 0
	}
	return float64(c.Passes) / float64(total)
}

func (s *Snapshot) Rps() float64 {
	if seconds := s.Elapsed.Seconds(); seconds > 0 {
		return float64(s.Iterations) / seconds
	}
	return 0
}

func (s *Snapshot) Throughput() float64 {
	if seconds := s.Elapsed.Seconds(); seconds > 0 {
		return float64(s.Bytes) / seconds
	}
	return 0
}

// Progress is the elapsed share of the configured duration, capped at 1.
func (s *Snapshot) Progress() float64 {
	if s.Done {
		return 1
	}
	if s.Duration <= 0 {
		return 0
	}
	percent := float64(s.Elapsed) / float64(s.Duration)
	if percent > 1.0 {
		percent = 1.0
	}
	return percent
}
