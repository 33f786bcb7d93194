package logging

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/lo"
)

// Fanout sends every record to each output that accepts its level. A failing
// output does not stop the others; their errors are joined.
type Fanout struct {
	outputs []slog.Handler
}

// NewFanout drops nil outputs.
func NewFanout(outputs ...slog.Handler) *Fanout {
	return &Fanout{outputs: lo.Filter(outputs, func(h slog.Handler, _ int) bool {
		return h != nil
	})}
}

func (f *Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	return lo.ContainsBy(f.outputs, func(h slog.Handler) bool {
		return h.Enabled(ctx, level)
	})
}

func (f *Fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.outputs {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Fanout{outputs: lo.Map(f.outputs, func(h slog.Handler, _ int) slog.Handler {
		return h.WithAttrs(attrs)
	})}
}

func (f *Fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return &Fanout{outputs: lo.Map(f.outputs, func(h slog.Handler, _ int) slog.Handler {
		return h.WithGroup(name)
	})}
}

// ContextProvider returns the attributes describing the running session.
// It is called once per record.
type ContextProvider func() []slog.Attr

// ContextHandler prefixes records with the provider's attributes. An
// attribute the call site passes explicitly wins over the provided one.
type ContextHandler struct {
	inner    slog.Handler
	provider ContextProvider
}

func NewContextHandler(inner slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{inner: inner, provider: provider}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider == nil {
		return h.inner.Handle(ctx, r)
	}
	provided := h.provider()
	if len(provided) == 0 {
		return h.inner.Handle(ctx, r)
	}

	explicit := make(map[string]struct{}, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		explicit[a.Key] = struct{}{}
		return true
	})

	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	for _, a := range provided {
		if _, ok := explicit[a.Key]; !ok {
			out.AddAttrs(a)
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(a)
		return true
	})
	return h.inner.Handle(ctx, out)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), provider: h.provider}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{inner: h.inner.WithGroup(name), provider: h.provider}
}
