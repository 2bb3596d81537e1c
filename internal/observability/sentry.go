package observability

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// InitSentry wires error reporting for the scoring daemon; a blank DSN
// disables it so local runs need no account. component names the binary
// and becomes the server name on every event.
func InitSentry(dsn, env, component string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      env,
		Release:          fmt.Sprintf("movement-score@%s", Version),
		ServerName:       component,
		AttachStacktrace: true,
	})
	if err != nil {
		return func() {}, err
	}
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("service", "movement-score")
	})
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// CaptureErr reports err tagged with the subsystem it came from
// (reconcile, export). nil errors are ignored.
func CaptureErr(component string, err error) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		sentry.CaptureException(err)
	})
}
