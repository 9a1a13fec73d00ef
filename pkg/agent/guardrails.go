package agent

// Guardrail counters. Every repeatable behavior in the conversation is bounded
// by one of these, and each ceiling maps to exactly one consequence chosen by
// the caller the moment the breach is reported. Handlers never increment
// counters inline; they go through these functions so the pairing of ceiling
// and consequence stays auditable.

// recordTurn counts the assistant response being produced and reports whether
// the global turn ceiling has been reached.
func (s *CallState) recordTurn(maxTotalTurns int) (breached bool) {
	s.TurnCount++
	return s.TurnCount >= maxTotalTurns
}

// recordSilence counts one consecutive silence event.
func (s *CallState) recordSilence(maxSilencePrompts int) (breached bool) {
	s.SilenceCount++
	return s.SilenceCount >= maxSilencePrompts
}

// resetSilence clears the consecutive-silence counter after a meaningful
// utterance.
func (s *CallState) resetSilence() {
	s.SilenceCount = 0
}

// recordVerificationFailure counts one verification check that did not pass.
func (s *CallState) recordVerificationFailure(maxAttempts int) (breached bool) {
	s.VerificationAttempts++
	return s.VerificationAttempts >= maxAttempts
}

// recordReconduction counts one refusal-driven callback offer during
// verification.
func (s *CallState) recordReconduction(maxAttempts int) (breached bool) {
	s.ReconductionAttempts++
	return s.ReconductionAttempts >= maxAttempts
}

// recordProposal counts one negotiation proposal made by the assistant.
func (s *CallState) recordProposal(maxProposals int) (breached bool) {
	s.NegotiationProposals++
	return s.NegotiationProposals >= maxProposals
}

// recordClarification counts one low-confidence clarification prompt.
// A breach routes to escalation rather than another re-ask.
func (s *CallState) recordClarification(maxAttempts int) (breached bool) {
	s.ClarificationAttempts++
	return s.ClarificationAttempts > maxAttempts
}

// resetClarification clears the clarification counter after any confident
// classification.
func (s *CallState) resetClarification() {
	s.ClarificationAttempts = 0
}

// recordDateCorrection counts one out-of-range payment date rejection. After
// the first correction the handler must stop reconducting.
func (s *CallState) recordDateCorrection() (breached bool) {
	s.DateCorrections++
	return s.DateCorrections > 1
}

// recordQuestion tracks consecutive identical assistant questions. It reports
// a breach when the same question would be asked a third time in a row, at
// which point the caller must pivot to callback or escalation instead.
func (s *CallState) recordQuestion(question string) (breached bool) {
	if question == "" {
		return false
	}
	if question == s.LastAssistantQuestion {
		if s.RepeatedQuestionCount >= 2 {
			return true
		}
		s.RepeatedQuestionCount++
		return false
	}
	s.RepeatedQuestionCount = 1
	return false
}
