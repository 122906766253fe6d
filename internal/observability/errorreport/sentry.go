// Package errorreport forwards unexpected failures to Sentry.
package errorreport

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the Sentry client. An empty DSN disables reporting.
type Config struct {
	DSN         string
	Environment string
	Release     string
}

// Reporter is nil-safe; a nil Reporter drops everything.
type Reporter struct {
	enabled bool
}

func New(lc fx.Lifecycle, cfg Config, log *zap.Logger) (*Reporter, error) {
	if cfg.DSN == "" {
		log.Info("error reporting disabled")
		return &Reporter{}, nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		AttachStacktrace: true,
	}); err != nil {
		return nil, err
	}

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				sentry.Flush(2 * time.Second)
				return nil
			},
		})
	}
	log.Info("error reporting enabled", zap.String("environment", cfg.Environment))
	return &Reporter{enabled: true}, nil
}

// GinMiddleware attaches a per-request hub and recovers panics into events.
func (r *Reporter) GinMiddleware() gin.HandlerFunc {
	if r == nil || !r.enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return sentrygin.New(sentrygin.Options{Repanic: true})
}

// CaptureRequestError reports err with route metadata from the request.
func (r *Reporter) CaptureRequestError(c *gin.Context, err error) {
	if r == nil || !r.enabled || err == nil {
		return
	}

	hub := sentrygin.GetHubFromContext(c)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("http.method", c.Request.Method)
		scope.SetTag("http.route", c.FullPath())
		if requestID := c.GetString("request_id"); requestID != "" {
			scope.SetTag("request_id", requestID)
		}
		hub.CaptureException(err)
	})
}

// Capture reports err outside of a request, e.g. from a background job.
func (r *Reporter) Capture(err error, tags map[string]string) {
	if r == nil || !r.enabled || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}
