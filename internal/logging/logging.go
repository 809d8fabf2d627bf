package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

const timeFormat = "15:04:05"

var (
	debugColor = color.New(color.FgHiBlack)
	infoColor  = color.New()
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
	attrColor  = color.New(color.FgHiBlack)

	componentColors = map[string]*color.Color{
		"SESSION":  color.New(color.FgMagenta),
		"PLAYER":   color.New(color.FgBlue),
		"RESOLVER": color.New(color.FgGreen),
		"BOT":      color.New(color.FgCyan),
		"DATABASE": color.New(),
	}
)

// Setup installs the colored handler as the default slog logger.
func Setup(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(NewHandler(os.Stdout, level))
	slog.SetDefault(logger)
	return logger
}

// Handler writes one colored line per record: time, level, component tag,
// message and the remaining attributes as key=value pairs.
type Handler struct {
	w      io.Writer
	level  slog.Leveler
	mu     *sync.Mutex
	attrs  []slog.Attr
	groups []string
}

func NewHandler(w io.Writer, level slog.Leveler) *Handler {
	return &Handler{w: w, level: level, mu: &sync.Mutex{}}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(ts.Format(timeFormat))

	levelStr, levelColor := levelStyle(r.Level)
	b.WriteByte(' ')
	b.WriteString(levelColor.Sprintf("%-5s", levelStr))

	component := ""
	var rest []slog.Attr
	collect := func(a slog.Attr) {
		if a.Key == "component" && component == "" {
			component = strings.ToUpper(a.Value.String())
			return
		}
		rest = append(rest, a)
	}
	for _, a := range h.attrs {
		collect(a)
	}
	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		if prefix != "" && a.Key != "component" {
			a.Key = prefix + "." + a.Key
		}
		collect(a)
		return true
	})

	if component != "" {
		c, ok := componentColors[component]
		if !ok {
			c = color.New(color.FgCyan)
		}
		b.WriteByte(' ')
		b.WriteString(c.Sprintf("[%s]", component))
	}
	b.WriteByte(' ')
	b.WriteString(levelColor.Sprint(r.Message))

	for _, a := range rest {
		a.Value = a.Value.Resolve()
		if a.Equal(slog.Attr{}) {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(attrColor.Sprintf("%s=", a.Key))
		b.WriteString(formatValue(a.Value))
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	prefix := strings.Join(h.groups, ".")
	nh.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if prefix != "" && a.Key != "component" {
			a.Key = prefix + "." + a.Key
		}
		nh.attrs = append(nh.attrs, a)
	}
	return &nh
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.groups = append(append([]string(nil), h.groups...), name)
	return &nh
}

func levelStyle(l slog.Level) (string, *color.Color) {
	switch {
	case l >= slog.LevelError:
		return "ERROR", errorColor
	case l >= slog.LevelWarn:
		return "WARN", warnColor
	case l >= slog.LevelInfo:
		return "INFO", infoColor
	default:
		return "DEBUG", debugColor
	}
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\"=") {
			return fmt.Sprintf("%q", s)
		}
		return s
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return fmt.Sprint(v.Any())
	}
}
