package logctx

import (
	"context"
	"log/slog"
)

// Handler decorates records with session and message attributes carried in
// the context.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if sd, ok := ctx.Value(sessionDataKey{}).(*SessionData); ok {
		r.AddAttrs(slog.Group("sess",
			slog.String("id", sd.SessionID),
			slog.String("device", sd.Device),
			slog.String("debugger", sd.Debugger),
		))
	}

	if msg, ok := ctx.Value(cdpMsg{}).(*CDPMessage); ok {
		r.AddAttrs(slog.Group("cdp",
			slog.String("method", msg.Method),
			slog.String("id", msg.ID),
			slog.String("direction", msg.Direction),
		))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{h.Handler.WithGroup(name)}
}

type cdpMsg struct{}

type CDPMessage struct {
	Method    string
	ID        string
	Direction string
}

func WithCDPMessage(ctx context.Context, msg *CDPMessage) context.Context {
	return context.WithValue(ctx, cdpMsg{}, msg)
}

type sessionDataKey struct{}

type SessionData struct {
	SessionID string
	Device    string
	Debugger  string
}

func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionDataKey{}, data)
}
