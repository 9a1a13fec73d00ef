package agent

// transitions is the closed phase transition table. A phase not listed as a
// target is unreachable from the source, which keeps illegal moves
// unrepresentable in handler code that goes through advance.
var transitions = map[Phase][]Phase{
	PhasePreVerification:  {PhaseVerification, PhaseClosing, PhaseEscalation},
	PhaseVerification:     {PhasePostVerification, PhaseClosing, PhaseEscalation},
	PhasePostVerification: {PhaseClosing, PhaseEscalation},
	PhaseClosing:          {PhaseEnded},
	PhaseEscalation:       {PhaseEnded},
	PhaseEnded:            {},
}

// CanTransition reports whether the table permits moving from one phase to
// another.
func CanTransition(from, to Phase) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// advance moves the state to the target phase when the transition table
// permits it. Illegal moves leave the state untouched.
func (s *CallState) advance(to Phase) bool {
	if !CanTransition(s.Phase, to) {
		return false
	}
	s.Phase = to
	return true
}

// terminate walks the state through its staging phase to ended and records
// the outcome. Closing and escalation always resolve to ended within the same
// turn.
func (s *CallState) terminate(via Phase, outcome string) {
	s.advance(via)
	s.advance(PhaseEnded)
	s.EndReason = outcome
}

// Terminate ends the call from outside a conversational turn, for hosts that
// lose the line without a final event. The state moves through closing per the
// transition table; an already ended call keeps its original outcome.
func (s *CallState) Terminate(outcome string) {
	if s.Ended() {
		return
	}
	s.terminate(PhaseClosing, outcome)
}
