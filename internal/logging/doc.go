// Package logging provides the slog-based logging facade used across the
// beacon daemon and its CLI.
//
// It wraps log/slog with attribute helpers, standardized field keys, a
// human-oriented console handler and a machine-oriented JSON handler, plus a
// no-op logger for tests. Components receive a child logger stamped with
// their name via NewComponentLogger so every record can be traced back to the
// subsystem that emitted it.
package logging
