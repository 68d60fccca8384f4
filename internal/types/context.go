package types

import (
	"context"
	"log/slog"
)

// ActorType separates operator-initiated work from scheduled work.
type ActorType string

const (
	ActorTypeAdmin  ActorType = "admin"
	ActorTypeSystem ActorType = "system"
)

// Actor is whoever started the current operation. Source doubles as the
// run trigger recorded in job history and metrics ("admin_api",
// "schedule", "job_runner").
type Actor struct {
	ID     string
	Type   ActorType
	Source string
}

// LogValue renders the actor as a compact group in structured logs.
func (a Actor) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("type", string(a.Type)),
		slog.String("source", a.Source),
	)
}

type ctxKey int

const (
	actorKey ctxKey = iota
	requestIDKey
)

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// TriggerFrom returns the actor's source, or fallback when no actor is set.
func TriggerFrom(ctx context.Context, fallback string) string {
	if actor, ok := GetActor(ctx); ok && actor.Source != "" {
		return actor.Source
	}
	return fallback
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns "" outside an HTTP request.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ContextAttrs lists the correlation attributes carried by ctx. The
// application log handler adds them to every record logged with a context.
func ContextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	if id := GetRequestID(ctx); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if actor, ok := GetActor(ctx); ok {
		attrs = append(attrs, slog.Any("actor", actor))
	}
	return attrs
}
