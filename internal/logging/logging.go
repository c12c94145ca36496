// Package logging provides the structured-logging conventions shared by
// every GrepWise component.
//
// Rules:
//   - Logging is dependency-injected, never global. Components accept a
//     *slog.Logger in their constructor and never call slog.SetDefault.
//   - Each component scopes its logger once at construction time with
//     slog.With("component", "...").
//   - A nil logger means "discard"; callers should wrap with Default.
//   - Logging is sparse: lifecycle boundaries (partition opened/closed,
//     ingester started/stopped, alarm state transition) are logged, inner
//     loops (tokenizing, redacting, scanning) are not.
//
// Output format/level/destination belong to cmd/grepwise/main.go alone.
package logging

import (
	"context"
	"log/slog"
	"maps"
	"sync/atomic"
)

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger that drops everything written to it.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default returns logger if non-nil, otherwise a discard logger. Use this
// in every constructor that accepts an optional *slog.Logger parameter.
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}

// ComponentFilterHandler wraps a base handler and allows per-component
// minimum log levels to be changed at runtime (e.g. raise "alarm" to DEBUG
// without a redeploy) without requiring each component to manage its own
// level or know about the others.
type ComponentFilterHandler struct {
	next         slog.Handler
	defaultLevel slog.Level
	preAttrs     []slog.Attr
	levels       *atomic.Pointer[map[string]slog.Level]
}

// NewComponentFilterHandler wraps next, applying defaultLevel to components
// with no explicit override.
func NewComponentFilterHandler(next slog.Handler, defaultLevel slog.Level) *ComponentFilterHandler {
	p := &atomic.Pointer[map[string]slog.Level]{}
	empty := make(map[string]slog.Level)
	p.Store(&empty)
	return &ComponentFilterHandler{next: next, defaultLevel: defaultLevel, levels: p}
}

// Enabled always defers to Handle, since the "component" attribute is not
// available until the record's attributes are visited.
func (h *ComponentFilterHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *ComponentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	levels := *h.levels.Load()
	component := h.component(r)

	min := h.defaultLevel
	if lvl, ok := levels[component]; ok {
		min = lvl
	}
	if r.Level < min {
		return nil
	}
	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *ComponentFilterHandler) component(r slog.Record) string {
	for _, a := range h.preAttrs {
		if a.Key == "component" {
			if s, ok := a.Value.Resolve().Any().(string); ok {
				return s
			}
		}
	}
	var component string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			if s, ok := a.Value.Resolve().Any().(string); ok {
				component = s
				return false
			}
		}
		return true
	})
	return component
}

func (h *ComponentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	merged := make([]slog.Attr, len(h.preAttrs), len(h.preAttrs)+len(attrs))
	copy(merged, h.preAttrs)
	merged = append(merged, attrs...)
	return &ComponentFilterHandler{
		next: h.next.WithAttrs(attrs), defaultLevel: h.defaultLevel,
		preAttrs: merged, levels: h.levels,
	}
}

func (h *ComponentFilterHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ComponentFilterHandler{
		next: h.next.WithGroup(name), defaultLevel: h.defaultLevel,
		preAttrs: h.preAttrs, levels: h.levels,
	}
}

// SetLevel overrides the minimum level for a single component.
func (h *ComponentFilterHandler) SetLevel(component string, level slog.Level) {
	old := *h.levels.Load()
	next := make(map[string]slog.Level, len(old)+1)
	maps.Copy(next, old)
	next[component] = level
	h.levels.Store(&next)
}

// ClearLevel removes a component override, reverting it to the default.
func (h *ComponentFilterHandler) ClearLevel(component string) {
	old := *h.levels.Load()
	if _, ok := old[component]; !ok {
		return
	}
	next := make(map[string]slog.Level, len(old))
	for k, v := range old {
		if k != component {
			next[k] = v
		}
	}
	h.levels.Store(&next)
}

// Level returns the effective minimum level for component.
func (h *ComponentFilterHandler) Level(component string) slog.Level {
	levels := *h.levels.Load()
	if lvl, ok := levels[component]; ok {
		return lvl
	}
	return h.defaultLevel
}
