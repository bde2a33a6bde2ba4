package vm

import (
	"context"
	"log/slog"

	"github.com/qmuntal/stateless"
)

// State is the lifecycle state of a script instance.
type State int

const (
	// Ready: frame allocated, instruction pointer at the entry point.
	Ready State = iota
	// Running: executing instructions within the current tick.
	Running
	// Suspended: yielded back to the host; resumes on the next step.
	Suspended
	// Terminated: returned from the outermost level, or aborted.
	Terminated
	// Faulted: stopped by an unrecoverable runtime error.
	Faulted
)

func (s State) String() string {
	switch s {
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Suspended:
		return "SUSPENDED"
	case Terminated:
		return "TERMINATED"
	case Faulted:
		return "FAULTED"
	default:
		return "UNKNOWN"
	}
}

// Runnable reports whether an instance in state s may execute instructions.
func (s State) Runnable() bool {
	return s == Ready || s == Running || s == Suspended
}

// Finished reports whether s is a terminal state.
func (s State) Finished() bool {
	return s == Terminated || s == Faulted
}

// States returns every lifecycle state.
func States() []State {
	return []State{Ready, Running, Suspended, Terminated, Faulted}
}

type trigger string

const (
	triggerStep    trigger = "step"
	triggerYield   trigger = "yield"
	triggerReturn  trigger = "return"
	triggerFault   trigger = "fault"
	triggerAbort   trigger = "abort"
	triggerRestart trigger = "restart"
)

// newLifecycle builds the lifecycle state machine of one instance.
//
//	READY     -step->    RUNNING
//	RUNNING   -yield->   SUSPENDED
//	SUSPENDED -step->    RUNNING
//	RUNNING   -return->  TERMINATED
//	RUNNING   -fault->   FAULTED
//	READY, RUNNING, SUSPENDED -abort-> TERMINATED
//	SUSPENDED, TERMINATED, FAULTED -restart-> READY
func newLifecycle(log *slog.Logger) *stateless.StateMachine {
	sm := stateless.NewStateMachine(Ready)

	sm.Configure(Ready).
		Permit(triggerStep, Running).
		Permit(triggerAbort, Terminated).
		Ignore(triggerRestart)

	sm.Configure(Running).
		Permit(triggerYield, Suspended).
		Permit(triggerReturn, Terminated).
		Permit(triggerFault, Faulted).
		Permit(triggerAbort, Terminated)

	sm.Configure(Suspended).
		Permit(triggerStep, Running).
		Permit(triggerAbort, Terminated).
		Permit(triggerRestart, Ready)

	sm.Configure(Terminated).
		Permit(triggerRestart, Ready)

	sm.Configure(Faulted).
		Permit(triggerRestart, Ready)

	sm.OnTransitioned(func(_ context.Context, tr stateless.Transition) {
		// Ready<->Running<->Suspended flips every tick; only log the rest.
		if tr.Trigger == triggerStep || tr.Trigger == triggerYield {
			return
		}
		log.Debug("Instance state changed", "from", tr.Source, "to", tr.Destination, "trigger", tr.Trigger)
	})

	return sm
}
