// Package ratelimit counts requests per identity in fixed windows and rejects
// callers once they pass the configured maximum.
//
// Counters live in a Store. RedisStore shares them between instances,
// MemoryStore keeps them in-process for single-instance deployments and tests.
//
// What this protects against:
//   - a single user or address hammering the API
//   - visibility into who gets limited: one log line per identity per window,
//     a prometheus counter for every denial
//
// What this does NOT protect against:
//   - distributed floods spread over many addresses
//   - bandwidth-bill attacks, the body is already accepted by the time this runs
//
// When the store is unreachable the limiter fails open: requests are allowed,
// the failure is logged (throttled) and counted. Alert on
// ratelimit_store_errors_total, protection is off while it climbs.
package ratelimit
