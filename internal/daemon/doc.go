// Package daemon wires the beacon components into one running process:
// single-instance lock, child supervision, engine connection, configuration
// repository, protocol server, discovery responder, and the optional log
// aggregator. Startup is strictly ordered and any required failure tears
// down what already started.
package daemon
