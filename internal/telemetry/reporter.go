// Package telemetry carries error reporting and product analytics.
package telemetry

import (
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Reporter logs internal errors and, in production with a DSN configured,
// forwards them to Sentry.
type Reporter struct {
	logger zerolog.Logger
	sentry bool
}

// NewReporter initializes Sentry when dsn is set and development is false.
func NewReporter(logger zerolog.Logger, dsn, env, release string, development bool) (*Reporter, error) {
	r := &Reporter{logger: logger}
	if dsn == "" || development {
		return r, nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      env,
		Release:          release,
		AttachStacktrace: true,
	}); err != nil {
		return nil, err
	}
	r.sentry = true
	return r, nil
}

// Nop returns a reporter that only logs.
func Nop(logger zerolog.Logger) *Reporter {
	return &Reporter{logger: logger}
}

// Capture records err against the request that produced it.
func (r *Reporter) Capture(req *http.Request, err error, msg string) {
	reqID := middleware.GetReqID(req.Context())

	r.logger.Error().
		Err(err).
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Str("request_id", reqID).
		Msg(msg)

	if !r.sentry {
		return
	}

	hub := sentry.GetHubFromContext(req.Context())
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetTag("request_id", reqID)
		scope.SetExtra("message", msg)
		hub.CaptureException(err)
	})
}

// Flush waits for buffered events to be sent.
func (r *Reporter) Flush(timeout time.Duration) {
	if r.sentry {
		sentry.Flush(timeout)
	}
}
