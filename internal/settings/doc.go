// Package settings provides persisted named values on top of the settings
// engine: scalars, hashes, and queues.
//
// Every setting carries an optional default that is never written to the
// engine: reads fall back to it, and clearing a setting reverts to it.
// Engine outages surface as engine.ErrUnavailable from every operation;
// nothing here retries or caches around a dead store.
package settings
