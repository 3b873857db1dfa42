package lgr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mdobak/go-xerrors"
	"go.opentelemetry.io/otel/trace"
)

type stackFrame struct {
	Func   string `json:"func"`
	Source string `json:"source"`
	Line   int    `json:"line"`
}

// PrettyHandler writes one colored line per record. Errors are expanded
// with their stack trace and records logged with a traced context get
// trace_id and span_id appended.
type PrettyHandler struct {
	opts   slog.HandlerOptions
	mu     *sync.Mutex
	out    io.Writer
	attrs  []slog.Attr
	groups []string
}

func NewPrettyHandler(out io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	h := &PrettyHandler{
		mu:  &sync.Mutex{},
		out: out,
	}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *PrettyHandler) Handle(ctx context.Context, r slog.Record) error {
	buf := &bytes.Buffer{}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	buf.WriteString(color.HiBlackString(ts.Format("15:04:05.000")))
	buf.WriteByte(' ')
	buf.WriteString(colorLevel(r.Level))
	buf.WriteByte(' ')
	buf.WriteString(color.CyanString(r.Message))

	for _, a := range h.attrs {
		h.appendAttr(buf, "", a)
	}
	prefix := groupPrefix(h.groups)
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(buf, prefix, a)
		return true
	})

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fmt.Fprintf(buf, " %s=%s %s=%s",
			color.HiBlackString("trace_id"), sc.TraceID().String(),
			color.HiBlackString("span_id"), sc.SpanID().String())
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	prefix := groupPrefix(h.groups)
	nh.attrs = append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		a.Key = prefix + a.Key
		nh.attrs = append(nh.attrs, a)
	}
	return &nh
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.groups = append(append([]string{}, h.groups...), name)
	return &nh
}

func (h *PrettyHandler) appendAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if h.opts.ReplaceAttr != nil && a.Value.Kind() != slog.KindGroup {
		a = h.opts.ReplaceAttr(h.groups, a)
		a.Value = a.Value.Resolve()
	}
	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		groupAttrs := a.Value.Group()
		if len(groupAttrs) == 0 {
			return
		}
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range groupAttrs {
			h.appendAttr(buf, p, ga)
		}
		return
	}

	if err, ok := a.Value.Any().(error); ok && a.Value.Kind() == slog.KindAny {
		fmt.Fprintf(buf, " %s=%s", color.HiBlackString(prefix+a.Key), color.RedString("%q", err.Error()))
		for _, f := range marshalStack(err) {
			fmt.Fprintf(buf, "\n    %s %s:%d", color.HiBlackString("at"), f.Source, f.Line)
			if f.Func != "" {
				fmt.Fprintf(buf, " (%s)", f.Func)
			}
		}
		return
	}

	fmt.Fprintf(buf, " %s=%v", color.HiBlackString(prefix+a.Key), a.Value.Any())
}

func groupPrefix(groups []string) string {
	prefix := ""
	for _, g := range groups {
		prefix += g + "."
	}
	return prefix
}

func colorLevel(level slog.Level) string {
	name := fmt.Sprintf("%-9s", levelName(level))
	switch {
	case level >= LevelCritical:
		return color.New(color.FgHiWhite, color.BgRed, color.Bold).Sprint(name)
	case level >= slog.LevelError:
		return color.RedString(name)
	case level >= slog.LevelWarn:
		return color.YellowString(name)
	case level >= LevelImportant:
		return color.New(color.FgMagenta, color.Bold).Sprint(name)
	case level >= slog.LevelInfo:
		return color.GreenString(name)
	default:
		return color.BlueString(name)
	}
}

// replaceAttr renames custom levels and turns errors into a group with
// the message and the captured stack for the JSON sink.
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(levelName(level))
		}
		return a
	}

	if a.Value.Kind() == slog.KindAny {
		if err, ok := a.Value.Any().(error); ok {
			a.Value = fmtErr(err)
		}
	}
	return a
}

func fmtErr(err error) slog.Value {
	groupValues := []slog.Attr{slog.String("msg", err.Error())}
	if frames := marshalStack(err); frames != nil {
		groupValues = append(groupValues, slog.Any("trace", frames))
	}
	return slog.GroupValue(groupValues...)
}

func marshalStack(err error) []stackFrame {
	st := xerrors.StackTrace(err)
	if len(st) == 0 {
		return nil
	}

	frames := st.Frames()
	s := make([]stackFrame, len(frames))
	for i, v := range frames {
		s[i] = stackFrame{
			Source: filepath.Join(filepath.Base(filepath.Dir(v.File)), filepath.Base(v.File)),
			Func:   filepath.Base(v.Function),
			Line:   v.Line,
		}
	}
	return s
}

// fanoutHandler hands every record to all of its handlers.
type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) *fanoutHandler {
	return &fanoutHandler{handlers: handlers}
}

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return newFanoutHandler(hs...)
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		hs[i] = h.WithGroup(name)
	}
	return newFanoutHandler(hs...)
}
