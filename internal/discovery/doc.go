// Package discovery answers "where are you" UDP broadcasts with the
// daemon's repository address, and implements the matching client probe.
//
// Requests are a fixed magic plus a protocol version byte; anything else is
// dropped without a reply. Sender addresses are checked against an ordered
// allow/deny rule list before answering. The responder never retries:
// clients own their timeout and resend policy.
package discovery
