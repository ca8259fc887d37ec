package order

import "fmt"

// QuoteState is the lifecycle of one logical quote side (the bid slot or
// the ask slot). Exactly one working order backs a side in Placing, Live,
// Amending or Cancelling.
type QuoteState int

const (
	StateAbsent QuoteState = iota
	StatePlacing
	StateLive
	StateAmending
	StateCancelling
)

func (s QuoteState) String() string {
	switch s {
	case StateAbsent:
		return "ABSENT"
	case StatePlacing:
		return "PLACING"
	case StateLive:
		return "LIVE"
	case StateAmending:
		return "AMENDING"
	case StateCancelling:
		return "CANCELLING"
	default:
		return "UNKNOWN"
	}
}

// stateTransition is one directed edge of the side machine.
type stateTransition struct {
	From QuoteState
	To   QuoteState
}

var legalSideTransitions = map[stateTransition]bool{
	// Absent: a placement may go out.
	{StateAbsent, StatePlacing}: true,

	// Placing: the exchange acks, rejects, or fills immediately.
	{StatePlacing, StateLive}:   true,
	{StatePlacing, StateAbsent}: true,

	// Live: the order rests; we may amend it, cancel it, or it fills away.
	{StateLive, StateAmending}:   true,
	{StateLive, StateCancelling}: true,
	{StateLive, StateAbsent}:     true,

	// Amending: the amend acks back to Live or the order terminates.
	{StateAmending, StateLive}:       true,
	{StateAmending, StateCancelling}: true,
	{StateAmending, StateAbsent}:     true,

	// Cancelling: confirmation, or a race with a fill, empties the slot.
	{StateCancelling, StateAbsent}: true,
	{StateCancelling, StateLive}:   true, // cancel request failed, order still rests
}

// sideState tracks one quote side and the client id of its working order.
type sideState struct {
	state    QuoteState
	clientID string
}

// transition moves the side to a new state, enforcing the legal edges.
func (s *sideState) transition(to QuoteState) error {
	if s.state == to {
		return nil
	}
	if !legalSideTransitions[stateTransition{From: s.state, To: to}] {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, s.state, to)
	}
	s.state = to
	if to == StateAbsent {
		s.clientID = ""
	}
	return nil
}
