// Package eventapi implements the shower's JSON endpoints: RSVPs, registry
// reservations, gallery upload URLs, the caller's identity and the live
// password check used by the sign-up form.
//
// Routes are registered relative to the API prefix; httpserver mounts them
// behind the body limit and the identity/rate-limit stage. Write handlers
// share one pipeline: decode JSON, sanitize every string by field name,
// validate, act, publish a notification, respond
// {"success":true,"data":...}. Failures use the apierror envelope.
package eventapi
