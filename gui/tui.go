package gui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/valyala/bytebufferpool"
)

const (
	fps          = 40
	padding      = 2
	maxWidth     = 66
	processColor = "#444"
)

var (
	doneHint      = lipgloss.NewStyle().Background(lipgloss.Color("#008700")).Render(" Done! ")
	terminateHint = lipgloss.NewStyle().Background(lipgloss.Color("#870000")).Render(" Terminated! ")
	quitHint      = lipgloss.NewStyle().Background(lipgloss.Color(processColor)).Render(" press q/esc/ctrl+c to quit ")
)

// Dashboard is the live view of a running probe.
type Dashboard struct {
	r io.Reader
	w io.Writer

	snapshot func() *Snapshot
	done     <-chan struct{}
	cancel   func()

	buf         *bytebufferpool.ByteBuffer
	progressBar progress.Model
	quitting    bool
	finished    bool
}

// NewDashboard polls snapshot every frame until done is closed. Quitting
// from the keyboard calls cancel.
func NewDashboard(snapshot func() *Snapshot, done <-chan struct{}, cancel func()) *Dashboard {
	return &Dashboard{
		r:           os.Stdin,
		w:           os.Stdout,
		snapshot:    snapshot,
		done:        done,
		cancel:      cancel,
		buf:         bytebufferpool.Get(),
		progressBar: progress.New(progress.WithSolidFill(processColor)),
	}
}

func (d *Dashboard) Start() error {
	defer bytebufferpool.Put(d.buf)
	_, err := tea.NewProgram(d, tea.WithInput(d.r), tea.WithOutput(d.w)).Run()
	return err
}

type doneMsg struct{}

func (d *Dashboard) waitDone() tea.Msg {
	<-d.done
	return doneMsg{}
}

func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(tickNow, d.waitDone)
}

func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			d.quitting = true
			d.cancel()
			return d, tea.Quit
		default:
			return d, nil
		}

	case tea.WindowSizeMsg:
		d.progressBar.Width = msg.Width - padding*2 - 4
		if d.progressBar.Width > maxWidth {
			d.progressBar.Width = maxWidth
		}
		return d, nil

	case doneMsg:
		d.finished = true
		return d, tea.Quit

	case tickMsg:
		return d, tick()

	default:
		return d, nil
	}
}

func (d *Dashboard) View() string {
	d.buf.Reset()
	s := d.snapshot()

	_, _ = fmt.Fprintf(d.buf, "Probing %s with %d virtual users\n", s.URL, s.VUs)
	_, _ = d.buf.WriteString(d.progressBar.ViewAs(s.Progress()))
	_ = d.buf.WriteByte('\n')

	elapsed := s.Elapsed
	if elapsed > s.Duration {
		elapsed = s.Duration
	}
	throughput, unit := formatThroughput(s.Throughput())
	_, _ = fmt.Fprintf(d.buf, "Iterations:  %d  Elapsed:  %.2f/%.2fs  Throughput:  %.2f %s\n",
		s.Iterations, elapsed.Seconds(), s.Duration.Seconds(), throughput, unit)

	for _, c := range s.Checks {
		_, _ = fmt.Fprintf(d.buf, "%s  %s %d  %s %d  (%.2f%%)\n", c.Name,
			passStyle.Render("✓"), c.Passes, failStyle.Render("✗"), c.Fails, c.Rate()*100)
	}

	_, _ = fmt.Fprintf(d.buf, "Latency:  avg %.2fms  p95 %.2fms  max %.2fms\n",
		s.Latency.Avg, s.Latency.P95, s.Latency.Max)

	codes := s.Codes
	_, _ = fmt.Fprintf(d.buf, "HTTP codes:\n  1xx - %d, 2xx - %d, 3xx - %d, 4xx - %d, 5xx - %d\n  Others - %d\n",
		codes.Code1xx, codes.Code2xx, codes.Code3xx, codes.Code4xx, codes.Code5xx, codes.CodeOthers)

	if len(s.Errors) > 0 {
		_, _ = d.buf.WriteString("Errors:\n")
		for _, err := range sortedErrors(s.Errors) {
			_, _ = fmt.Fprintf(d.buf, "  %s: %d\n", errStyle.Render(err), s.Errors[err])
		}
	}

	switch {
	case d.finished:
		_, _ = d.buf.WriteString(doneHint)
	case d.quitting:
		_, _ = d.buf.WriteString(terminateHint)
	default:
		_, _ = d.buf.WriteString(quitHint)
	}
	_ = d.buf.WriteByte('\n')

	return d.buf.String()
}

type tickMsg struct {
	Time time.Time
}

func tickNow() tea.Msg {
	return tickMsg{Time: time.Now()}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/fps, func(t time.Time) tea.Msg {
		return tickMsg{Time: t}
	})
}
