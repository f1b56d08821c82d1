// Package fsm implements the session's state machine: charger status
// readings and session-level occurrences are decoded into events, which
// drive transitions between the ten states a charging session can be in.
package fsm

import "log"

// State is one of the ten states a charger session can occupy.
type State int

const (
	Disconnected State = iota
	Idle
	Starting
	Charging
	Discharging
	Monitoring
	Completed
	Stopped
	Error
	HaltForSafety
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Idle:
		return "Idle"
	case Starting:
		return "Starting"
	case Charging:
		return "Charging"
	case Discharging:
		return "Discharging"
	case Monitoring:
		return "Monitoring"
	case Completed:
		return "Completed"
	case Stopped:
		return "Stopped"
	case Error:
		return "Error"
	case HaltForSafety:
		return "HaltForSafety"
	default:
		return "Unknown"
	}
}

// Event is a state-machine input, derived either from a charger status
// reading (via EventFromMode) or from a session-level occurrence
// (connect, disconnect, explicit stop/dismiss).
type Event int

const (
	EventNone Event = iota
	EventConnected
	EventDisconnected
	EventIdle
	EventStarting
	EventCharging
	EventDischarging
	EventMonitoring
	EventStop
	EventChargingComplete
	EventDischargingComplete
	EventDismiss
	EventError
	EventHaltForSafety
)

// Charger mode bytes, as reported in Status.Mode.
const (
	modeReadyToStart  = 0
	modeDetectingPack = 1
	modeTrickleMax    = 7 // upper bound of the "charging" mode range
	modeDischarging   = 8
	modeMonitoring    = 9
	modeHaltForSafety = 10
	modeError         = 0x63
)

// EventFromMode decodes the event a new status reading produces, given
// the charger's reported mode and whether it flagged the current
// operation complete.
func EventFromMode(mode byte, isComplete bool) Event {
	switch {
	case mode == modeReadyToStart:
		return EventIdle
	case mode == modeDetectingPack:
		return EventStarting
	case mode > modeDetectingPack && mode <= modeTrickleMax:
		if isComplete {
			return EventChargingComplete
		}
		return EventCharging
	case mode == modeDischarging:
		if isComplete {
			return EventDischargingComplete
		}
		return EventDischarging
	case mode == modeMonitoring:
		return EventMonitoring
	case mode == modeHaltForSafety:
		return EventHaltForSafety
	case mode == modeError:
		return EventError
	default:
		return EventNone
	}
}

// SafetyClearer issues the Enter command that clears a halt-for-safety
// condition on the charger. The session engine is the real implementation;
// it is invoked as a HaltForSafety entry side effect, not a constructor,
// so that constructing a State value never itself has side effects.
type SafetyClearer interface {
	ClearHaltForSafety() error
}

// Transition computes the next state for event given the current state.
// Entering HaltForSafety from any other state invokes clearer; a failure
// there is logged and otherwise ignored, matching how the reference
// implementation degrades (it cannot refuse to acknowledge the halt just
// because clearing it failed).
func Transition(current State, event Event, clearer SafetyClearer) State {
	next := transitionTable(current, event)
	if next == HaltForSafety && current != HaltForSafety && clearer != nil {
		if err := clearer.ClearHaltForSafety(); err != nil {
			log.Printf("fsm: clear halt for safety: %v", err)
		}
	}
	return next
}

func transitionTable(current State, event Event) State {
	switch current {
	case Disconnected:
		if event == EventConnected {
			return Idle
		}
	case Idle:
		switch event {
		case EventHaltForSafety:
			return HaltForSafety
		case EventStarting:
			return Starting
		case EventCharging:
			return Charging
		case EventDischarging:
			return Discharging
		case EventMonitoring:
			return Monitoring
		case EventStop:
			return Stopped
		case EventChargingComplete, EventDischargingComplete:
			return Completed
		case EventError:
			return Error
		case EventDisconnected:
			return Disconnected
		}
	case Starting, Charging, Discharging, Monitoring, HaltForSafety:
		if next, ok := workingStateTransition(current, event); ok {
			return next
		}
	case Completed, Stopped, Error:
		switch event {
		case EventDismiss:
			return Idle
		case EventDisconnected:
			return Disconnected
		}
	}
	return current
}

// workingStateTransition covers the four "doing something" states plus
// HaltForSafety, which all share the same exit events (idle/stop/complete/
// error/disconnected). They also accept EventStarting, EventCharging and
// EventDischarging from one another (e.g. Charging can move directly to
// Discharging without passing back through Idle), except that
// HaltForSafety does not accept EventStarting, so a mode byte indicating
// "detecting pack" never pulls the session out of a safety halt.
// EventMonitoring is accepted only from HaltForSafety.
func workingStateTransition(current State, event Event) (State, bool) {
	switch event {
	case EventStop:
		return Stopped, true
	case EventChargingComplete, EventDischargingComplete:
		return Completed, true
	case EventError:
		return Error, true
	case EventDisconnected:
		return Disconnected, true
	case EventIdle:
		return Idle, true
	case EventStarting:
		// HaltForSafety has no STARTING branch in the reference state
		// table: it refuses to leave the safety halt on this event.
		if current != Starting && current != HaltForSafety {
			return Starting, true
		}
	case EventCharging:
		if current != Charging {
			return Charging, true
		}
	case EventDischarging:
		if current != Discharging {
			return Discharging, true
		}
	case EventMonitoring:
		if current == HaltForSafety {
			return Monitoring, true
		}
	}
	return current, false
}
