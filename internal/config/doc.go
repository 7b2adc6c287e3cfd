// Package config loads, normalizes, and validates beacon daemon
// configuration.
//
// Settings come from three layers, later layers winning: built-in defaults,
// an optional TOML file, and command line flags. The Config type centralizes
// every knob the daemon needs: the configuration database path, listener
// ports, the two Redis instances, optional child services, discovery address
// filters, and logging.
//
// Always obtain settings through this package so downstream code receives
// expanded paths and validated values.
package config
