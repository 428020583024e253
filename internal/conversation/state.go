// Package conversation provides the conversation lifecycle for the quote
// automation flow: a fixed state machine plus the Postgres-backed store.
package conversation

import "fmt"

// State is a conversation lifecycle state.
type State string

const (
	StateInbound       State = "INBOUND"
	StateCaptureMin    State = "CAPTURE_MIN"
	StateQuoteReady    State = "QUOTE_READY"
	StateHumanApproval State = "HUMAN_APPROVAL"
	StateQuoteSent     State = "QUOTE_SENT"
	StateWaitingReply  State = "WAITING_REPLY"
	StateWon           State = "WON"
	StateLost          State = "LOST"
)

// Event is a fact that may move a conversation between states.
type Event string

const (
	EventFirstMessageReceived Event = "first_message_received"
	EventMinimalDataReceived  Event = "minimal_data_received"
	EventApprovalRequired     Event = "approval_required"
	EventQuoteApproved        Event = "quote_approved"
	EventQuoteAutoOK          Event = "quote_auto_ok"
	EventUserReplied          Event = "user_replied"
	EventScheduleConfirmed    Event = "schedule_confirmed"
	EventUserDeclined         Event = "user_declined"
	EventWindowExpired        Event = "window_expired"
	EventAdminApproved        Event = "admin_approved"
	EventAdminRejected        Event = "admin_rejected"
)

// InvalidTransitionError reports an event that is not legal in a state.
type InvalidTransitionError struct {
	State State
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: event %q is not allowed in state %q", e.Event, e.State)
}

// transitions is the fixed table. window_expired is handled separately in
// Transition because it is legal from every non-terminal state.
var transitions = map[State]map[Event]State{
	StateInbound: {
		EventFirstMessageReceived: StateCaptureMin,
	},
	StateCaptureMin: {
		EventMinimalDataReceived: StateQuoteReady,
	},
	StateQuoteReady: {
		EventApprovalRequired: StateHumanApproval,
		EventQuoteAutoOK:      StateQuoteSent,
	},
	StateHumanApproval: {
		EventAdminApproved: StateQuoteSent,
		EventQuoteApproved: StateQuoteSent,
		EventAdminRejected: StateLost,
	},
	StateQuoteSent: {
		EventUserReplied: StateWaitingReply,
	},
	StateWaitingReply: {
		EventScheduleConfirmed: StateWon,
		EventUserDeclined:      StateLost,
	},
}

// terminalStates are states where no further events apply.
var terminalStates = map[State]bool{
	StateWon:  true,
	StateLost: true,
}

// IsTerminal returns true if the state admits no further transitions.
func IsTerminal(s State) bool {
	return terminalStates[s]
}

// Transition applies an event to a state and returns the next state. It is a
// pure function over the fixed table: the same (state, event) pair always
// yields the same result. An event not legal in the given state returns an
// *InvalidTransitionError naming both.
func Transition(current State, event Event) (State, error) {
	if event == EventWindowExpired {
		if terminalStates[current] {
			return "", &InvalidTransitionError{State: current, Event: event}
		}
		return StateLost, nil
	}

	next, ok := transitions[current][event]
	if !ok {
		return "", &InvalidTransitionError{State: current, Event: event}
	}
	return next, nil
}
