package logging

import (
	"context"
	"errors"
	"log/slog"
)

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// filter drops every record while keep reports false.
type filter struct {
	slog.Handler
	keep func() bool
}

func (f filter) Enabled(ctx context.Context, level slog.Level) bool {
	return f.keep() && f.Handler.Enabled(ctx, level)
}

func (f filter) Handle(ctx context.Context, r slog.Record) error {
	if !f.keep() {
		return nil
	}
	return f.Handler.Handle(ctx, r)
}

func (f filter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return filter{Handler: f.Handler.WithAttrs(attrs), keep: f.keep}
}

func (f filter) WithGroup(name string) slog.Handler {
	return filter{Handler: f.Handler.WithGroup(name), keep: f.keep}
}

// downgrade rewrites INFO records as DEBUG.
type downgrade struct {
	inner slog.Handler
}

func (d downgrade) Enabled(ctx context.Context, level slog.Level) bool {
	if level == slog.LevelInfo {
		level = slog.LevelDebug
	}
	return d.inner.Enabled(ctx, level)
}

func (d downgrade) Handle(ctx context.Context, r slog.Record) error {
	if r.Level != slog.LevelInfo {
		return d.inner.Handle(ctx, r)
	}
	rec := slog.NewRecord(r.Time, slog.LevelDebug, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		rec.AddAttrs(a)
		return true
	})
	return d.inner.Handle(ctx, rec)
}

func (d downgrade) WithAttrs(attrs []slog.Attr) slog.Handler {
	return downgrade{d.inner.WithAttrs(attrs)}
}

func (d downgrade) WithGroup(name string) slog.Handler {
	return downgrade{d.inner.WithGroup(name)}
}
