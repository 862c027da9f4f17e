package masking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Handler is a slog.Handler that masks the message and every textual
// attribute value before passing the record on.
type Handler struct {
	next slog.Handler
	m    Masker
}

// NewHandler wraps next so that records are masked with m.
func NewHandler(next slog.Handler, m Masker) *Handler {
	return &Handler{next: next, m: m}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.m.Mask(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.maskAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		masked = append(masked, h.maskAttr(a))
	}
	return &Handler{next: h.next.WithAttrs(masked), m: h.m}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name), m: h.m}
}

func (h *Handler) maskAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.m.Mask(v.String()))
	case slog.KindGroup:
		group := v.Group()
		masked := make([]any, 0, len(group))
		for _, ga := range group {
			masked = append(masked, h.maskAttr(ga))
		}
		return slog.Group(a.Key, masked...)
	case slog.KindAny:
		switch t := v.Any().(type) {
		case error:
			return slog.String(a.Key, h.m.Mask(t.Error()))
		case fmt.Stringer:
			return slog.String(a.Key, h.m.Mask(t.String()))
		case []string:
			out := make([]string, len(t))
			for i, s := range t {
				out[i] = h.m.Mask(s)
			}
			return slog.Any(a.Key, out)
		default:
			return h.maskComposite(a.Key, v)
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

// maskComposite masks maps, slices and structs through their JSON form.
// The original value is kept when nothing in it matches.
func (h *Handler) maskComposite(key string, v slog.Value) slog.Attr {
	data, err := json.Marshal(v.Any())
	if err != nil {
		return slog.String(key, h.m.Mask(fmt.Sprintf("%+v", v.Any())))
	}
	masked := h.m.Mask(string(data))
	if masked == string(data) {
		return slog.Attr{Key: key, Value: v}
	}
	if json.Valid([]byte(masked)) {
		return slog.Any(key, json.RawMessage(masked))
	}
	return slog.String(key, masked)
}
