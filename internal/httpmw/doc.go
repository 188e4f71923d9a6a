// Package httpmw provides HTTP middleware for the public-facing server.
//
// Middleware is composed in a specific order in httpserver.NewHandler:
// security headers, panic recovery, request ID, client IP extraction, OTEL
// tracing, metrics, structured logging, then the chi router. The API
// subrouter adds no-store caching, a body size limit and the identity/rate
// limit stage on top.
//
// Each middleware is an independent function that can be tested, reordered,
// or removed individually. User-supplied data (query params, user-agent,
// headers, bodies) is intentionally excluded from logs to prevent PII leaks
// and log injection.
package httpmw
