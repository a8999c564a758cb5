// Package statemachine holds the single pure transition function for the
// distribution lifecycle. The webhook handler and the submission worker call
// it identically; no other code mutates a distribution's status.
package statemachine

import (
	"fmt"

	"tunecast/internal/distribution"
)

// LifecycleEvent is an input to the state machine, originating from the worker,
// an inbound platform webhook, the retry manager, or a removal request.
type LifecycleEvent string

const (
	// EventSubmissionStarted fires when a worker picks up a pending job.
	EventSubmissionStarted LifecycleEvent = "submission_started"
	// EventSubmissionFailed fires on adapter rejection, exception, or timeout.
	EventSubmissionFailed LifecycleEvent = "submission_failed"
	// EventWentLive fires only from a platform webhook confirming go-live.
	EventWentLive LifecycleEvent = "went_live"
	// EventRetryRequested fires from the retry manager, bounded by budget.
	EventRetryRequested LifecycleEvent = "retry_requested"
	// EventRemovalRequested fires from an explicit takedown request.
	EventRemovalRequested LifecycleEvent = "removal_requested"
	// EventRemoved fires from a platform webhook confirming takedown.
	EventRemoved LifecycleEvent = "removed"
)

// InvalidTransitionError reports an event that is not legal from the current
// status. Callers decide whether that is a no-op (duplicate or out-of-order
// webhook) or a caller error (retrying a live distribution).
type InvalidTransitionError struct {
	From  distribution.Status
	Event LifecycleEvent
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("event %s is not valid from status %s", e.Event, e.From)
}

// transitions is the complete state graph:
// pending -> processing -> {live, failed}; live -> removal_requested -> removed;
// failed -> pending (retry only).
var transitions = map[distribution.Status]map[LifecycleEvent]distribution.Status{
	distribution.StatusPending: {
		EventSubmissionStarted: distribution.StatusProcessing,
		EventSubmissionFailed:  distribution.StatusFailed,
	},
	distribution.StatusProcessing: {
		EventWentLive:         distribution.StatusLive,
		EventSubmissionFailed: distribution.StatusFailed,
	},
	distribution.StatusLive: {
		EventRemovalRequested: distribution.StatusRemovalRequested,
		EventRemoved:          distribution.StatusRemoved,
	},
	distribution.StatusFailed: {
		EventRetryRequested: distribution.StatusPending,
	},
	distribution.StatusRemovalRequested: {
		EventRemoved: distribution.StatusRemoved,
	},
	distribution.StatusRemoved: {},
}

// Transition returns the status that follows current on event, or an
// InvalidTransitionError when the state graph has no such edge.
func Transition(current distribution.Status, event LifecycleEvent) (distribution.Status, error) {
	edges, known := transitions[current]
	if !known {
		return current, &InvalidTransitionError{From: current, Event: event}
	}
	next, ok := edges[event]
	if !ok {
		return current, &InvalidTransitionError{From: current, Event: event}
	}
	return next, nil
}

// CanTransition reports whether event is legal from current.
func CanTransition(current distribution.Status, event LifecycleEvent) bool {
	_, err := Transition(current, event)
	return err == nil
}
