package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

type ProgressBar struct {
	startTime time.Time
	mu        sync.Mutex
	out       io.Writer
	label     string
	total     int64
	current   int64
	failed    int64
	width     int
	enabled   bool
	complete  bool
}

// NewProgressBar draws onto out. A disabled bar only keeps counts, which is
// what JSON logging and tests want.
func NewProgressBar(total int64, label string, out io.Writer, enabled bool) *ProgressBar {
	return &ProgressBar{
		total:     total,
		width:     40,
		label:     label,
		startTime: time.Now(),
		out:       out,
		enabled:   enabled && out != nil,
	}
}

// Increment advances the bar by one finished item.
func (p *ProgressBar) Increment(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current < p.total {
		p.current++
	}
	if !ok {
		p.failed++
	}
	p.render()
}

func (p *ProgressBar) Counts() (current, failed int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.failed
}

func (p *ProgressBar) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.complete {
		return
	}
	p.render()
	p.complete = true
	if p.enabled {
		fmt.Fprintln(p.out)
	}
}

func (p *ProgressBar) render() {
	if !p.enabled || p.complete || p.total <= 0 {
		return
	}

	ratio := float64(p.current) / float64(p.total)
	filled := int(float64(p.width) * ratio)

	elapsed := time.Since(p.startTime)
	var eta time.Duration
	if p.current > 0 {
		eta = time.Duration(float64(elapsed) * float64(p.total-p.current) / float64(p.current))
	}

	failed := ""
	if p.failed > 0 {
		failed = fmt.Sprintf(" (%d failed)", p.failed)
	}

	fmt.Fprintf(p.out, "\r%s [%s%s] %3.0f%% %d/%d%s ETA: %s ",
		p.label,
		strings.Repeat("█", filled),
		strings.Repeat("░", p.width-filled),
		ratio*100,
		p.current,
		p.total,
		failed,
		FormatDuration(eta),
	)
}

// FormatDuration renders d as 1h02m03s, 2m05s or 7s.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}

	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
