// Package client implements the Go client for the beacon repository
// protocol.
//
// A Client owns one multiplexed TCP connection: a reader goroutine routes
// reply frames to their waiting callers by correlation key and fans watch
// event frames out to registered subscribers. Connect resolves the daemon
// address from the BEACON_HOST environment variable when set, falling back
// to UDP discovery.
package client
