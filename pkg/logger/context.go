package logger

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// With returns a context whose *Context log calls carry fields, on top of any
// fields already stored in ctx.
func With(ctx context.Context, fields ...any) context.Context {
	prev := attrsFrom(ctx)
	added := slog.Group("", fields...).Value.Group()
	attrs := make([]slog.Attr, 0, len(prev)+len(added))
	attrs = append(append(attrs, prev...), added...)
	return context.WithValue(ctx, ctxKey{}, attrs)
}

func attrsFrom(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs, _ := ctx.Value(ctxKey{}).([]slog.Attr)
	return attrs
}

// From returns the process logger bound to the fields of ctx, for code that
// logs without passing a context.
func From(ctx context.Context) *slog.Logger {
	l := LoggerWrapper()
	if attrs := attrsFrom(ctx); len(attrs) > 0 {
		return slog.New(l.Handler().WithAttrs(attrs))
	}
	return l
}

// ContextHandler adds the fields stored with With to every record logged
// through a context.
type ContextHandler struct {
	slog.Handler
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := attrsFrom(ctx); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ContextHandler{h.Handler.WithAttrs(attrs)}
}

func (h ContextHandler) WithGroup(name string) slog.Handler {
	return ContextHandler{h.Handler.WithGroup(name)}
}
