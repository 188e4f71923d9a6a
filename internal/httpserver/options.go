package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/babyshower-web/internal/health"
	"github.com/keithlinneman/babyshower-web/internal/httpmw"
	"github.com/keithlinneman/babyshower-web/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	Health       health.Probe
	Readiness    health.Probe
	ClientIPOpts httpmw.ClientIPOptions

	// CSP overrides the default Content-Security-Policy, see httpmw.BuildCSP.
	CSP string

	// API subrouter. APIRoutes registers paths relative to APIPrefix
	// (default /api). APIMiddleware runs inside the subrouter only, this is
	// where identity resolution and rate limiting go.
	APIPrefix     string
	APIRoutes     func(chi.Router)
	APIMiddleware []func(http.Handler) http.Handler
	MaxBodyBytes  int64 // default 64KB

	SiteHandler http.Handler // catch-all for everything outside the API
}
