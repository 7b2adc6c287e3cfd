// Package channels provides ephemeral, reference-counted named values with
// publish/subscribe update delivery, backed by the settings engine.
//
// A Channel exists as long as at least one holder references it anywhere on
// the network: the refcount lives in the engine, and the last release deletes
// the cached value. Channel values carry no history; late subscribers see the
// last written value and every update from then on.
package channels
