// Package server exposes the configuration repository and daemon status over
// the beacon TCP protocol.
//
// Each accepted connection becomes a session handled by its own
// goroutine: requests are dispatched with a bounded per-request timeout, and
// watch subscriptions push event frames asynchronously on the same
// connection. A session's watches and name registration are released when
// the connection closes, silently.
package server
