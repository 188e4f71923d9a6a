// Package sanitize cleans user-supplied text before it reaches handlers.
//
// Clean applies one of four policies to a single string. Payload walks a
// decoded JSON document (see Value) and picks the policy for every string
// from the name of the field that holds it. All functions are pure and safe
// for concurrent use.
package sanitize
