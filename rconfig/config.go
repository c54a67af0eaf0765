// Package rconfig holds the runtime's tunable parameters, following the
// same plain-struct-plus-constructor shape the rest of the stack uses for
// configuration: a single Config value, built with Default() or
// overridden field-by-field by the caller.
package rconfig

import "time"

// Config holds the tunables of the engine and its adapters. The engine
// package does not read Config; callers pass the values they need to the
// calls that take them.
type Config struct {
	// ReductionBudget is a number of consecutive user messages a
	// push-actor processes before yielding, for passing to Props.WithBudget
	// or a Spawn* call. A spawn with no budget uses
	// engine.DefaultReductionBudget, not this field.
	ReductionBudget int `json:"reductionBudget"`

	// DefaultMailboxCapacity is used by adapters that want a bounded
	// mailbox but don't have a caller-supplied capacity.
	DefaultMailboxCapacity int `json:"defaultMailboxCapacity"`

	// ObservedBufferCapacity is a size for the rolling message history of
	// an observed actor. No engine call takes it: the engine caps every
	// observed buffer at a fixed 1024 messages.
	ObservedBufferCapacity int `json:"observedBufferCapacity"`

	// ShutdownTimeout bounds how long Engine.Shutdown waits for every
	// actor to finalize before giving up.
	ShutdownTimeout time.Duration `json:"shutdownTimeout"`

	// DialTimeout bounds outbound wire-protocol connections (send_remote,
	// resolve_remote, monitor_remote).
	DialTimeout time.Duration `json:"dialTimeout"`

	// RemoteMonitorTimeout is a time limit for remote monitoring. No wire
	// call takes it: Endpoint.MonitorRemote returns once the subscription
	// request is written, and waits for the peer's Exit frame with no
	// deadline; only connection failure or a bad reply surfaces a synthetic
	// disconnect Exit.
	RemoteMonitorTimeout time.Duration `json:"remoteMonitorTimeout"`

	// DashboardTickPeriod controls how often the debug dashboard
	// broadcasts a fresh engine snapshot to connected websocket clients.
	DashboardTickPeriod time.Duration `json:"dashboardTickPeriod"`
}

// Default returns the configuration used when a caller doesn't supply
// its own.
func Default() Config {
	return Config{
		ReductionBudget:        100,
		DefaultMailboxCapacity: 1024,
		ObservedBufferCapacity: 1024,
		ShutdownTimeout:        5 * time.Second,
		DialTimeout:            2 * time.Second,
		RemoteMonitorTimeout:   2 * time.Second,
		DashboardTickPeriod:    250 * time.Millisecond,
	}
}

// FastTestConfig returns a configuration tuned for quick test runs: small
// budgets and short timeouts so invariant/scenario tests don't stall.
func FastTestConfig() Config {
	cfg := Default()
	cfg.ReductionBudget = 4
	cfg.ShutdownTimeout = 200 * time.Millisecond
	cfg.DialTimeout = 200 * time.Millisecond
	cfg.RemoteMonitorTimeout = 200 * time.Millisecond
	cfg.DashboardTickPeriod = 20 * time.Millisecond
	return cfg
}
