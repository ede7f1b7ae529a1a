package logger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Console is the user facing output: slog records for events plus the
// progress bar, tables and boxes drawn straight onto the same writer.
type Console struct {
	Logger    *slog.Logger
	Out       io.Writer
	Colorized bool
	// Interactive enables the progress bar and spinner redraws.
	Interactive bool
}

func NewConsole(opts *Options) *Console {
	if opts == nil {
		opts = DefaultOptions()
	}
	h := NewRichHandler(opts)

	return &Console{
		Logger:      slog.New(h),
		Out:         opts.Output,
		Colorized:   opts.EnableColors && !opts.EnableJSON,
		Interactive: !opts.EnableJSON,
	}
}

// With returns a console whose log records carry the given attributes.
func (c *Console) With(args ...any) *Console {
	c2 := *c
	c2.Logger = c.Logger.With(args...)
	return &c2
}

func (c *Console) decorate(symbol, color, format string, args []any) string {
	msg := fmt.Sprintf(format, args...)
	if symbol != "" {
		msg = symbol + " " + msg
	}
	if c.Colorized && color != "" {
		msg = color + msg + Reset
	}
	return msg
}

func (c *Console) Success(format string, args ...any) {
	c.Logger.Info(c.decorate("✓", Green+Bold, format, args))
}

func (c *Console) Info(format string, args ...any) {
	c.Logger.Info(c.decorate("ℹ", Blue+Bold, format, args))
}

func (c *Console) Warn(format string, args ...any) {
	c.Logger.Warn(c.decorate("⚠", Yellow+Bold, format, args))
}

func (c *Console) Error(format string, args ...any) {
	c.Logger.Error(c.decorate("✖", Red+Bold, format, args))
}

func (c *Console) Debug(format string, args ...any) {
	c.Logger.Debug(c.decorate("", "", format, args))
}

func (c *Console) StartTimer(name string) *Timer {
	return &Timer{
		Name:      name,
		StartTime: time.Now(),
		Console:   c,
	}
}

func (c *Console) StartSpinner(message string) *Spinner {
	s := newSpinner(message, c)
	s.Start()
	return s
}

func (c *Console) NewProgressBar(total int64, label string) *ProgressBar {
	return NewProgressBar(total, label, c.Out, c.Interactive)
}

func (c *Console) NewTable(headers []string) *Table {
	return NewTable(headers)
}

// PrintTable draws t unless the console is emitting JSON.
func (c *Console) PrintTable(t *Table) {
	if !c.Interactive {
		return
	}
	t.Render(c.Out)
}

func (c *Console) Box(title string, content string) {
	lines := strings.Split(content, "\n")
	width := len([]rune(title))
	for _, line := range lines {
		if n := len([]rune(line)); n > width {
			width = n
		}
	}
	width += 4

	var b strings.Builder
	b.WriteString("┌─" + title + strings.Repeat("─", width-len([]rune(title))-1) + "┐\n")
	for _, line := range lines {
		b.WriteString("│ " + line + strings.Repeat(" ", width-len([]rune(line))-1) + "│\n")
	}
	b.WriteString("└" + strings.Repeat("─", width) + "┘\n")
	io.WriteString(c.Out, b.String())
}
