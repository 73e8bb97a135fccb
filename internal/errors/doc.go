// Package errors defines the toolbridge error taxonomy.
//
// Callers distinguish transient protocol failures (timeouts, process exit,
// malformed frames) from caller mistakes (unknown server, unsupported tool)
// using the sentinel errors, and inspect failure details through the typed
// errors with errors.AsType.
package errors
