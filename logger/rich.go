package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	Reset   = "\033[0m"
	Bold    = "\033[1m"
	Dim     = "\033[2m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	White   = "\033[37m"
	BgRed   = "\033[41m"
)

type Options struct {
	Output       io.Writer
	TimeFormat   string
	Level        slog.Level
	AddSource    bool
	EnableJSON   bool
	EnableColors bool
	// ShowTime prefixes text records with a timestamp.
	ShowTime bool
}

func DefaultOptions() *Options {
	return &Options{
		Output:       os.Stdout,
		TimeFormat:   "15:04:05.000",
		Level:        slog.LevelInfo,
		EnableColors: true,
		ShowTime:     true,
	}
}

// RichHandler renders records either as coloured single-line text or as
// one JSON object per line. Handlers derived through WithAttrs/WithGroup
// share the parent's lock so concurrent workers never interleave lines.
type RichHandler struct {
	opts   *Options
	mu     *sync.Mutex
	attrs  []slog.Attr
	groups []string
}

func NewRichHandler(opts *Options) *RichHandler {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.TimeFormat == "" {
		opts.TimeFormat = time.RFC3339
	}

	return &RichHandler{
		opts: opts,
		mu:   &sync.Mutex{},
	}
}

func (h *RichHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level
}

func (h *RichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := h.clone()
	prefix := h.groupPrefix()
	for _, a := range attrs {
		a.Key = prefix + a.Key
		h2.attrs = append(h2.attrs, a)
	}
	return h2
}

func (h *RichHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = append(h2.groups, name)
	return h2
}

func (h *RichHandler) clone() *RichHandler {
	return &RichHandler{
		opts:   h.opts,
		mu:     h.mu,
		attrs:  append([]slog.Attr(nil), h.attrs...),
		groups: append([]string(nil), h.groups...),
	}
}

func (h *RichHandler) groupPrefix() string {
	if len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".") + "."
}

// collect flattens handler and record attributes into key/value pairs, in
// the order they were added.
func (h *RichHandler) collect(record slog.Record) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(h.attrs)+record.NumAttrs())
	attrs = append(attrs, h.attrs...)
	prefix := h.groupPrefix()
	record.Attrs(func(a slog.Attr) bool {
		attrs = appendAttr(attrs, prefix, a)
		return true
	})
	return attrs
}

func appendAttr(dst []slog.Attr, prefix string, a slog.Attr) []slog.Attr {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return dst
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			dst = appendAttr(dst, p, ga)
		}
		return dst
	}
	a.Key = prefix + a.Key
	return append(dst, a)
}

func (h *RichHandler) Handle(_ context.Context, record slog.Record) error {
	var line []byte
	var err error
	if h.opts.EnableJSON {
		line, err = h.renderJSON(record)
	} else {
		line = h.renderText(record)
	}
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.opts.Output.Write(line)
	return err
}

func (h *RichHandler) source(record slog.Record) (string, int, bool) {
	if !h.opts.AddSource || record.PC == 0 {
		return "", 0, false
	}
	fs := runtime.CallersFrames([]uintptr{record.PC})
	f, _ := fs.Next()
	return f.File, f.Line, true
}

func (h *RichHandler) renderJSON(record slog.Record) ([]byte, error) {
	m := make(map[string]any)
	m["time"] = record.Time.Format(h.opts.TimeFormat)
	m["level"] = record.Level.String()
	if file, line, ok := h.source(record); ok {
		m["source"] = fmt.Sprintf("%s:%d", file, line)
	}
	m["msg"] = stripANSI(record.Message)

	for _, a := range h.collect(record) {
		switch a.Value.Kind() {
		case slog.KindDuration:
			m[a.Key] = a.Value.Duration().String()
		case slog.KindTime:
			m[a.Key] = a.Value.Time().Format(time.RFC3339Nano)
		default:
			v := a.Value.Any()
			if e, ok := v.(error); ok {
				v = e.Error()
			}
			m[a.Key] = v
		}
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

var levelColors = map[slog.Level]string{
	slog.LevelDebug: Cyan,
	slog.LevelInfo:  Green,
	slog.LevelWarn:  Yellow,
	slog.LevelError: Red,
}

func (h *RichHandler) renderText(record slog.Record) []byte {
	var b strings.Builder
	color := h.opts.EnableColors

	paint := func(code, s string) {
		if color {
			b.WriteString(code)
			b.WriteString(s)
			b.WriteString(Reset)
			return
		}
		b.WriteString(s)
	}

	if h.opts.ShowTime {
		paint(Blue, record.Time.Format(h.opts.TimeFormat))
		b.WriteByte(' ')
	}

	paint(levelColors[record.Level]+Bold, fmt.Sprintf("%-5s", strings.ToUpper(record.Level.String())))
	b.WriteByte(' ')

	if file, line, ok := h.source(record); ok {
		if i := strings.LastIndex(file, "/"); i >= 0 {
			file = file[i+1:]
		}
		paint(Magenta, fmt.Sprintf("%s:%d", file, line))
		b.WriteByte(' ')
	}

	msg := record.Message
	if !color {
		msg = stripANSI(msg)
	}
	b.WriteString(msg)

	for _, a := range h.collect(record) {
		b.WriteByte(' ')
		paint(Dim, a.Key+"=")
		b.WriteString(formatValue(a.Value))
	}

	b.WriteByte('\n')
	return []byte(b.String())
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindDuration:
		s = v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		s = v.Time().Format(time.RFC3339)
	default:
		s = v.String()
	}
	if strings.ContainsAny(s, " \t\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// stripANSI drops colour escape sequences from s.
func stripANSI(s string) string {
	if !strings.Contains(s, "\033[") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\033' && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && s[j] != 'm' {
				j++
			}
			i = j
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func NewRichLogger(opts *Options) *slog.Logger {
	return slog.New(NewRichHandler(opts))
}
