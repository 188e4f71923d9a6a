// Package apierror defines the error kinds returned by the API and renders
// them as the JSON envelope
//
//	{"success": false, "error": {"message": "...", "type": "VALIDATION_ERROR", "details": {...}}}
//
// Errors that are not *Error are reported as INTERNAL_SERVER_ERROR with a
// generic message; their text never reaches the client. A stack is added to
// the envelope only when the Writer is not in production mode.
package apierror
