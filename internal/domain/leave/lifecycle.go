package leave

import "fmt"

// RequestState is the client's view of where a request is. Only the
// transitions below happen locally; every other status change is adopted from
// fetched data.
type RequestState string

const (
	StateDraft            RequestState = "draft"
	StateSubmitting       RequestState = "submitting"
	StateSubmissionFailed RequestState = "submission_failed"
	StatePending          RequestState = "pending"
	StateCancelling       RequestState = "cancelling"
	StateCancelled        RequestState = "cancelled"
	StateApproved         RequestState = "approved"
	StateRejected         RequestState = "rejected"
	StateEscalated        RequestState = "escalated"
)

type Event string

const (
	EventSubmit    Event = "submit"
	EventCancel    Event = "cancel"
	EventSucceeded Event = "succeeded"
	EventFailed    Event = "failed"
)

var transitions = map[RequestState]map[Event]RequestState{
	StateDraft:            {EventSubmit: StateSubmitting},
	StateSubmissionFailed: {EventSubmit: StateSubmitting},
	StateSubmitting:       {EventSucceeded: StatePending, EventFailed: StateSubmissionFailed},
	StatePending:          {EventCancel: StateCancelling},
	StateCancelling:       {EventSucceeded: StateCancelled, EventFailed: StatePending},
}

func (s RequestState) Next(ev Event) (RequestState, error) {
	if next, ok := transitions[s][ev]; ok {
		return next, nil
	}
	return s, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, s)
}

func (s RequestState) CanCancel() bool {
	_, ok := transitions[s][EventCancel]
	return ok
}

// Observe maps a server status onto the client state.
func Observe(status Status) RequestState {
	switch status {
	case StatusPending:
		return StatePending
	case StatusApproved:
		return StateApproved
	case StatusRejected:
		return StateRejected
	case StatusCancelled:
		return StateCancelled
	case StatusEscalated:
		return StateEscalated
	default:
		return StatePending
	}
}
