package lifecycle

import (
	"sync/atomic"

	"binflow/logger"
)

// Phase is one stage of the process-wide shutdown sequence. Transitions are
// strictly forward; re-entrant signals coalesce into the phase already
// reached.
type Phase int32

const (
	PhaseRunning Phase = iota
	PhaseStopping
	PhaseDraining
	PhaseFlushing
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "running"
	case PhaseStopping:
		return "stopping"
	case PhaseDraining:
		return "draining"
	case PhaseFlushing:
		return "flushing"
	case PhaseTerminated:
		return "terminated"
	}
	return "unknown"
}

// Coordinator tracks the shutdown phase machine:
// Running -> Stopping -> Draining -> Flushing -> Terminated.
// One instance exists per process.
type Coordinator struct {
	phase atomic.Int32
	log   *logger.Log
}

func NewCoordinator() *Coordinator {
	return &Coordinator{log: logger.GetLogger()}
}

// Phase returns the current phase.
func (c *Coordinator) Phase() Phase {
	return Phase(c.phase.Load())
}

// Advance moves the machine forward to the target phase. It returns false
// when the machine is already at or past the target, making duplicate
// shutdown signals idempotent.
func (c *Coordinator) Advance(target Phase) bool {
	for {
		current := c.phase.Load()
		if int32(target) <= current {
			return false
		}
		if c.phase.CompareAndSwap(current, int32(target)) {
			c.log.WithComponent("shutdown").WithFields(logger.Fields{
				"from": Phase(current).String(),
				"to":   target.String(),
			}).Info("shutdown phase advanced")
			return true
		}
	}
}

// ShuttingDown reports whether a stop has been requested.
func (c *Coordinator) ShuttingDown() bool {
	return c.Phase() >= PhaseStopping
}
