// Package protocol defines the beacon wire formats.
//
// Two formats live here. Discovery uses a single UDP request datagram (magic
// plus protocol version) answered by a JSON datagram carrying the daemon's
// host, repository port, and version. The repository protocol runs over a
// long-lived TCP connection carrying length-prefixed frames: a uint32
// little-endian message type, a uint32 little-endian payload length, and a
// JSON payload. Requests embed a client-generated correlation key echoed by
// the matching reply; server-push event frames carry no key.
package protocol
