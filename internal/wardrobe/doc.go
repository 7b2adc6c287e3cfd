// Package wardrobe implements named collections of parameter instances
// sharing one attribute schema.
//
// A Wardrobe always contains a "default" instance. Other instances store
// only their overrides: reading an attribute they never set resolves to the
// default instance's value. One instance is active at a time; Switch rotates
// the active instance and creates missing ones on the fly. Instances can be
// frozen (inherited values materialized as overrides), rendered as a table,
// exported to YAML, and pushed into the configuration repository.
package wardrobe
