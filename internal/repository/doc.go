// Package repository implements the versioned configuration document tree.
//
// The directory the daemon is pointed at is the source of truth: every file
// is one document, addressed by its slash-separated relative path. An
// in-memory index of path to version is rebuilt by a recursive scan at
// startup and kept consistent on every accepted mutation; it is a derived
// cache, never authoritative. Writes and deletes use optimistic concurrency
// (the caller's expected version must match the stored one) and persist via
// write-to-temp-then-rename. A single read-write mutex guards the index;
// change notifications fan out after the write lock is released so delivery
// never blocks readers.
package repository
