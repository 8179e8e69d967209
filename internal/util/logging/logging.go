// Package logging provides a zerolog-backed slog handler.
//
// Components take *slog.Logger in their parameters; this package lets
// binaries and tests keep a single zerolog output for all of them.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/rs/zerolog"
)

// Handler implements slog.Handler on top of a zerolog logger.
type Handler struct {
	z      zerolog.Logger
	attrs  []slog.Attr
	groups []string
}

// NewHandler creates a new Handler writing through the given zerolog logger.
func NewHandler(z zerolog.Logger) *Handler {
	return &Handler{z: z}
}

// Logger returns a *slog.Logger writing to w through zerolog.
func Logger(w io.Writer, level slog.Level) *slog.Logger {
	z := zerolog.New(w).Level(zerologLevel(level)).With().Timestamp().Logger()
	return slog.New(NewHandler(z))
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return zerologLevel(level) >= h.z.GetLevel()
}

// Handle implements slog.Handler.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	e := h.z.WithLevel(zerologLevel(r.Level))

	for _, a := range h.attrs {
		e = appendAttr(e, h.groups, a)
	}

	r.Attrs(func(a slog.Attr) bool {
		e = appendAttr(e, h.groups, a)
		return true
	})

	e.Msg(r.Message)

	return nil
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	res := *h
	res.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)

	return &res
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	res := *h
	res.groups = append(append([]string{}, h.groups...), name)

	return &res
}

// appendAttr adds a single attribute to the event, qualifying the key with groups.
func appendAttr(e *zerolog.Event, groups []string, a slog.Attr) *zerolog.Event {
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}

	switch a.Value.Kind() {
	case slog.KindGroup:
		for _, ga := range a.Value.Group() {
			e = appendAttr(e, append(groups, a.Key), ga)
		}
		return e
	case slog.KindBool:
		return e.Bool(key, a.Value.Bool())
	case slog.KindInt64:
		return e.Int64(key, a.Value.Int64())
	case slog.KindUint64:
		return e.Uint64(key, a.Value.Uint64())
	case slog.KindFloat64:
		return e.Float64(key, a.Value.Float64())
	case slog.KindString:
		return e.Str(key, a.Value.String())
	case slog.KindDuration:
		return e.Dur(key, a.Value.Duration())
	case slog.KindTime:
		return e.Time(key, a.Value.Time())
	default:
		return e.Interface(key, a.Value.Any())
	}
}

// zerologLevel maps slog levels to zerolog levels.
func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level < slog.LevelInfo:
		return zerolog.DebugLevel
	case level < slog.LevelWarn:
		return zerolog.InfoLevel
	case level < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// check interfaces
var (
	_ slog.Handler = (*Handler)(nil)
)
