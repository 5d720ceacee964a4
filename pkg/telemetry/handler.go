package telemetry

import (
	"context"
	"log/slog"
	"strings"

	"formtel/pkg/model"
)

// Handler is a slog.Handler that routes records into a Logger, so code
// written against slog ends up in the store and, for warnings and errors,
// at the collector. An attribute holding an error becomes the exception.
type Handler struct {
	l      *Logger
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewHandler returns a handler enabled at level and above (Info when nil).
func NewHandler(l *Logger, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{l: l, level: level}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	rec := model.LogRecord{
		Timestamp: r.Time.UTC(),
		Level:     modelLevel(r.Level),
		Message:   r.Message,
	}
	if r.Time.IsZero() {
		rec.Timestamp = model.Now().UTC()
	}

	props := make(map[string]any, len(h.attrs)+r.NumAttrs())
	prefix := strings.Join(h.groups, ".")
	// h.attrs already carry the group prefix active when they were added.
	for _, a := range h.attrs {
		h.collect(&rec, props, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.collect(&rec, props, prefix, a)
		return true
	})
	rec.Properties = model.CleanProperties(props)

	// Not mirrored: the diagnostic logger may well be built on this handler.
	h.l.record(rec, false)
	return nil
}

func (h *Handler) collect(rec *model.LogRecord, props map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if a.Key == "" && v.Kind() != slog.KindGroup {
		return
	}
	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	}

	switch v.Kind() {
	case slog.KindGroup:
		inner := prefix
		if a.Key != "" {
			inner = key
		}
		for _, ga := range v.Group() {
			h.collect(rec, props, inner, ga)
		}
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			if rec.Exception == "" {
				rec.Exception = err.Error()
			} else {
				props[key] = err.Error()
			}
			return
		}
		props[key] = v.Any()
	default:
		props[key] = v.Any()
	}
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	h2.attrs = append(h2.attrs, h.attrs...)
	prefix := strings.Join(h.groups, ".")
	for _, a := range attrs {
		if prefix != "" {
			a = slog.Attr{Key: prefix + "." + a.Key, Value: a.Value}
		}
		h2.attrs = append(h2.attrs, a)
	}
	return &h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.groups = append(append([]string(nil), h.groups...), name)
	return &h2
}

func modelLevel(l slog.Level) model.Level {
	switch {
	case l < slog.LevelInfo:
		return model.Debug
	case l < slog.LevelWarn:
		return model.Information
	case l < slog.LevelError:
		return model.Warning
	default:
		return model.Error
	}
}
