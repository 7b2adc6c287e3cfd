// Package engine abstracts the key-value/pub-sub store backing the shared
// state layer.
//
// The daemon supervises an external Redis instance and hands its address to
// clients; channels, settings, and wardrobes talk to it exclusively through
// the Engine interface so any compliant store can serve them. Every network
// failure surfaces as ErrUnavailable so callers can distinguish "store down"
// from "key absent"; the layer never retries silently.
package engine
