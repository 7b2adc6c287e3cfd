// Package supervisor spawns and monitors the daemon's child services.
//
// Services start in declaration order; the key-value engine comes first and
// is required: its failure aborts the whole daemon. Optional services that
// fail to start or exit later are marked Crashed and logged, and the daemon
// keeps running. Nothing is restarted automatically. Shutdown signals
// children in reverse order and escalates to a kill after a grace period.
package supervisor
