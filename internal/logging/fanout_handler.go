package logging

import (
	"context"
	"log/slog"
)

type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) slog.Handler {
	active := make([]slog.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			active = append(active, h)
		}
	}
	switch len(active) {
	case 0:
		return NoopHandler{}
	case 1:
		return active[0]
	}
	return &fanoutHandler{handlers: active}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for idx, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		rec := record
		// Handlers may mutate the record's attr backing array, so every
		// handler except the final one receives its own clone.
		if idx < len(h.handlers)-1 {
			rec = record.Clone()
		}
		if err := handler.Handle(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}

// TeeLogger duplicates log output from base into the provided handlers.
// The orchestrator uses it to mirror session activity into per-session
// log files without touching the process-wide logger.
func TeeLogger(base *slog.Logger, handlers ...slog.Handler) *slog.Logger {
	if base == nil {
		return slog.New(newFanoutHandler(handlers...))
	}
	all := append([]slog.Handler{base.Handler()}, handlers...)
	return slog.New(newFanoutHandler(all...))
}

// TeeHandler combines multiple handlers into one.
func TeeHandler(handlers ...slog.Handler) slog.Handler {
	return newFanoutHandler(handlers...)
}
