// Package logserver aggregates log records from many clients into
// per-session rotating files.
//
// Clients stream newline-delimited JSON records, each naming its session.
// All records for one session share a single append-only file, serialized
// through one writer; the file rotates to a numbered sibling once it grows
// past the configured threshold. No ordering holds across sessions.
package logserver
