package agent

import (
	"time"

	"github.com/northstarrec/outdial/pkg/datenorm"
	"github.com/northstarrec/outdial/pkg/intent"
	"github.com/northstarrec/outdial/pkg/policy"
)

// preVerification confirms the right person answered before anything else is
// said. Nothing sensitive is reachable from this phase.
func (t *turn) preVerification() Response {
	if t.nlu.Has(intent.WrongParty) {
		return t.wrongParty()
	}
	if t.nlu.Has(intent.Busy) {
		return t.busy()
	}

	if t.nlu.Has(intent.IdentityQuestion) {
		// Role only. No company name, no mention of a debt.
		text := "I am an automated assistant calling about a personal business matter for " +
			t.targetName() + ". Am I speaking with them?"
		return t.respond(text, intentRequestTarget)
	}

	if t.nlu.Has(intent.Affirmation) && !t.nlu.Has(intent.Negation) {
		t.st.TargetReached = AnswerYes
		t.st.advance(PhaseVerification)
		return t.askVerification()
	}
	if t.nlu.Has(intent.Negation) && !t.nlu.Has(intent.Affirmation) {
		return t.wrongParty()
	}

	if t.nlu.LowConfidenceUnknown() {
		return t.lowConfidence()
	}

	return t.respond("I'm trying to reach "+t.targetName()+". Is that you?", intentRequestTarget)
}

// verification runs the allow-listed identity checks one question at a time
// until the policy's required pass count is met.
func (t *turn) verification() Response {
	if t.nlu.Has(intent.WrongParty) {
		return t.wrongParty()
	}

	switch t.st.LastAssistantIntent {
	case intentOfferCallback:
		// We offered a reconduction callback after a refusal.
		if t.nlu.Has(intent.Affirmation) && !t.nlu.Has(intent.Negation) {
			return t.askCallbackTime()
		}
		return t.refuseVerification()
	case intentRequestCallbackTime:
		return t.scheduleCallback()
	case intentConfirmCallback:
		return t.handleCallbackConfirmAnswer()
	}

	// Refusal to verify: offer one reconduction, then end.
	if t.nlu.Has(intent.Uncomfortable) || t.nlu.Has(intent.Refusal) {
		return t.refuseVerification()
	}

	if t.nlu.Has(intent.IdentityQuestion) {
		text := "I understand, but to protect your privacy I need to verify your identity before discussing details. " +
			methodQuestion(t.pendingMethod())
		return t.respond(text, intentVerifyIdentity)
	}

	method := t.pendingMethod()
	answered, passed := checkMethod(method, t.transcript, t.acct)

	if answered && passed {
		t.st.VerificationPasses++
		if t.st.VerificationPasses >= t.pol.Verification.RequiredPasses {
			t.st.RightPartyVerified = true
			t.st.RightPartyConfidence = passConfidence(t.st.VerificationPasses)
			t.st.PendingVerificationMethod = ""
			t.st.advance(PhasePostVerification)
			return t.deliverDisclosure()
		}
		t.st.PendingVerificationMethod = string(t.nextVerificationMethod())
		return t.respond("Thank you, that matches. "+methodQuestion(t.pendingMethod()),
			intentVerifyIdentity)
	}

	if answered {
		if t.st.recordVerificationFailure(t.pol.Limits.MaxVerificationAttempts) {
			t.st.EscalationFlag = true
			return t.closeCall("I'm sorry, that doesn't match our records, so I'll have to end the call for security. Goodbye.",
				OutcomeVerificationFailed)
		}
		return t.respond("I'm sorry, that doesn't match our records. Could you please try again?",
			intentVerifyIdentity)
	}

	// Plain negation with no usable answer counts as a refusal to verify.
	if t.nlu.Has(intent.Negation) && !t.nlu.Has(intent.Affirmation) {
		return t.refuseVerification()
	}

	if t.nlu.LowConfidenceUnknown() {
		return t.lowConfidence()
	}

	// Some text, but no answer of the right shape. It still consumes an
	// attempt so an evasive caller cannot stall verification forever.
	if t.st.recordVerificationFailure(t.pol.Limits.MaxVerificationAttempts) {
		t.st.EscalationFlag = true
		return t.closeCall("I'm unable to verify your identity at this time. Goodbye.", OutcomeVerificationFailed)
	}
	return t.respond(methodQuestion(t.pendingMethod()), intentVerifyIdentity)
}

// askVerification asks the first verification question on entry to the
// verification phase.
func (t *turn) askVerification() Response {
	method := t.nextVerificationMethod()
	t.st.PendingVerificationMethod = string(method)
	return t.respond(methodQuestion(method), intentVerifyIdentity)
}

// refuseVerification offers a single reconduction callback; a further refusal
// ends the call.
func (t *turn) refuseVerification() Response {
	if t.st.recordReconduction(t.pol.Limits.MaxReconductionAttempts) {
		return t.closeCall("Since we are unable to verify your identity, I'll have to end the call now. Goodbye.",
			OutcomeVerificationRefused)
	}
	text := "I understand your concern for privacy, but I can only discuss this matter with the account holder. " +
		"Would it be better if I call you back at another time?"
	return t.respond(text, intentOfferCallback)
}

// askCallbackTime asks for a specific callback time. Used from verification
// reconduction and from the consent-declined path.
func (t *turn) askCallbackTime() Response {
	t.st.Callback.Requested = true
	return t.respond("Of course. What day and time work best for a callback?", intentRequestCallbackTime)
}

// scheduleCallback resolves the user's answer to a concrete local datetime.
// An ambiguous resolution is echoed back and held pending until the user
// confirms; a deterministic one commits immediately. An unresolvable answer
// gets one restatement request before the repetition guard pivots.
func (t *turn) scheduleCallback() Response {
	resolved := datenorm.Normalize(t.transcript, t.ref)
	if !resolved.OK {
		if t.nlu.LowConfidenceUnknown() {
			return t.lowConfidence()
		}
		return t.respond("Sorry, I didn't catch the day. Could you give me a day and time, for example Friday at 3 PM?",
			intentRequestCallbackTime)
	}

	clock, ok := extractClockTime(t.transcript)
	if !ok {
		clock = "10:00"
	}
	local := resolved.Date.Format("2006-01-02") + "T" + clock + ":00"

	if resolved.NeedsConfirmation {
		t.st.LastProposedCallbackLocal = local
		return t.respond("Just to confirm, should I call you back on "+resolved.Date.Format("Monday, January 2")+"?",
			intentConfirmCallback)
	}
	return t.commitCallback(local, resolved.Date)
}

// commitCallback records the callback time and ends the call. Only here does
// Callback.DatetimeLocal get set.
func (t *turn) commitCallback(local string, day time.Time) Response {
	t.st.Callback.Requested = true
	t.st.Callback.DatetimeLocal = local
	t.st.LastProposedCallbackLocal = ""

	text := "You're all set; I'll call back on " + day.Format("Monday, January 2") + ". Thank you, goodbye."
	return t.closeCall(text, OutcomeCallbackSet,
		Action{Type: ActionScheduleCallback, Payload: map[string]string{"datetime_local": local}})
}

// handleCallbackConfirmAnswer finalizes or discards the pending callback time
// based on the answer to the confirmation question.
func (t *turn) handleCallbackConfirmAnswer() Response {
	pending := t.st.LastProposedCallbackLocal
	if t.nlu.Has(intent.Affirmation) && !t.nlu.Has(intent.Negation) && pending != "" {
		day, err := time.Parse("2006-01-02T15:04:05", pending)
		if err == nil {
			return t.commitCallback(pending, day)
		}
	}
	if t.nlu.Has(intent.Negation) || t.nlu.Has(intent.Refusal) {
		t.st.LastProposedCallbackLocal = ""
		return t.respond("No problem. What day and time should I call back instead?", intentRequestCallbackTime)
	}
	// A new day in the answer replaces the pending one.
	if resolved := datenorm.Normalize(t.transcript, t.ref); resolved.OK {
		return t.scheduleCallback()
	}
	if t.nlu.LowConfidenceUnknown() {
		return t.lowConfidence()
	}
	if day, err := time.Parse("2006-01-02T15:04:05", pending); err == nil {
		return t.respond("Should I call you back on "+day.Format("Monday, January 2")+"?", intentConfirmCallback)
	}
	return t.askCallbackTime()
}

// pendingMethod returns the verification check currently awaiting an answer.
func (t *turn) pendingMethod() policy.VerificationMethod {
	if t.st.PendingVerificationMethod != "" {
		return policy.VerificationMethod(t.st.PendingVerificationMethod)
	}
	return t.nextVerificationMethod()
}

// passConfidence maps the number of passed checks to a right-party
// confidence score.
func passConfidence(passes int) float64 {
	c := 0.85 + 0.05*float64(passes)
	if c > 0.99 {
		c = 0.99
	}
	return c
}
