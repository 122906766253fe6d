// Package context carries request correlation values for logs, traces and audit.
package context

import (
	"context"
	"strings"
)

type key int

const (
	requestIDKey key = iota
	companyIDKey
	actorKey
	clientKey
)

type actor struct {
	kind string
	id   string
}

type client struct {
	ip        string
	userAgent string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

func WithCompanyID(ctx context.Context, companyID string) context.Context {
	return context.WithValue(ctx, companyIDKey, strings.TrimSpace(companyID))
}

func CompanyIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(companyIDKey).(string)
	return v
}

// WithActor records who is acting, e.g. ("user", "1234") or ("system", "").
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actor{
		kind: strings.TrimSpace(actorType),
		id:   strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx context.Context) (string, string) {
	v, ok := ctx.Value(actorKey).(actor)
	if !ok {
		return "", ""
	}
	return v.kind, v.id
}

func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey, client{ip: ip, userAgent: userAgent})
}

func ClientFromContext(ctx context.Context) (string, string) {
	v, ok := ctx.Value(clientKey).(client)
	if !ok {
		return "", ""
	}
	return v.ip, v.userAgent
}
