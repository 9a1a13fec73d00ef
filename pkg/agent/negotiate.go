package agent

import (
	"regexp"
	"strings"
	"time"

	"github.com/northstarrec/outdial/pkg/datenorm"
	"github.com/northstarrec/outdial/pkg/intent"
)

// hardshipRe spots hardship and vulnerability cues. These never enter
// free-form negotiation; they set the flag and hand off.
var hardshipRe = regexp.MustCompile(`\b(lost my job|laid off|unemployed|hospital|medical bills?|disability|disabled|hardship|food stamps|evicted|homeless|bankruptcy)\b`)

// deliverDisclosure runs exactly once, on entry to post-verification. The
// mandated wording is compressed to a single sentence so the consent question
// fits under the voice constraints without dropping any of it.
func (t *turn) deliverDisclosure() Response {
	disclosure := strings.TrimSpace(t.pol.DisclosureText)
	parts := []string{}
	for _, p := range strings.Split(disclosure, ".") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	single := strings.Join(parts, "; ")

	t.st.DisclosureDelivered = true
	return t.respond(single+". Is now a good time to continue?", intentDeliverDisclosure)
}

// negotiation handles the post-verification phase: consent, payment-date
// negotiation under the end-of-month policy, and the objection paths.
func (t *turn) negotiation() Response {
	if t.nlu.Has(intent.WrongParty) {
		// Late-revealed wrong party ends without further disclosure.
		return t.wrongParty()
	}
	if t.nlu.Has(intent.Dispute) {
		t.st.DisputeFlag = true
		t.st.EscalationReason = ReasonDispute
		return t.escalate(ReasonDispute)
	}
	if hardshipRe.MatchString(strings.ToLower(t.transcript)) {
		t.st.HardshipFlag = true
		t.st.EscalationReason = ReasonHardship
		return t.escalate(ReasonHardship)
	}
	if t.nlu.Has(intent.Busy) {
		return t.busy()
	}

	switch t.st.LastAssistantIntent {
	case intentDeliverDisclosure:
		return t.handleConsentAnswer()
	case intentRequestCallbackTime:
		return t.scheduleCallback()
	case intentConfirmCallback:
		return t.handleCallbackConfirmAnswer()
	case intentConfirmPTP:
		return t.handleRecapAnswer()
	}

	if t.nlu.Has(intent.Refusal) {
		return t.handleRefusal()
	}
	if t.nlu.Has(intent.Uncertain) || t.nlu.Has(intent.Uncomfortable) {
		return t.respond("I can wait while you check your calendar. Would a date near the end of the month work?",
			intentNegotiate)
	}

	// A concrete date anywhere in the utterance takes priority over bare
	// yes/no reading.
	if resolved := datenorm.Normalize(t.transcript, t.ref); resolved.OK {
		return t.handleProposedDate(resolved)
	}

	lastQ := strings.ToLower(t.st.LastAssistantQuestion)
	if isTodayPaymentPrompt(lastQ) {
		if t.nlu.Has(intent.Affirmation) && !t.nlu.Has(intent.Negation) {
			return t.recapPTP(datenorm.DateOnly(t.ref))
		}
		if t.nlu.Has(intent.Negation) {
			return t.respond("I understand. What date before the end of the month would work for you?",
				intentNegotiate)
		}
	}

	// Generic agreement to a "what date works" prompt still needs an actual
	// date before anything is recorded.
	if t.nlu.Has(intent.Affirmation) {
		return t.respond("Thanks. What exact date works for you, for example February 20?",
			intentNegotiate)
	}
	if t.nlu.Has(intent.Negation) {
		return t.handleRefusal()
	}

	if t.nlu.LowConfidenceUnknown() {
		return t.lowConfidence()
	}

	return t.respond("Can you find a day before the end of the month to settle the $"+t.amountDue()+" balance?",
		intentNegotiate)
}

// handleConsentAnswer interprets the yes/no answer to the consent question
// asked right after the disclosure.
func (t *turn) handleConsentAnswer() Response {
	if t.nlu.Has(intent.Affirmation) && !t.nlu.Has(intent.Negation) {
		t.st.ConsentToContinue = AnswerYes
		return t.respond("Great. Can you take care of the $"+t.amountDue()+" balance today?", intentNegotiate)
	}
	if t.nlu.Has(intent.Negation) {
		t.st.ConsentToContinue = AnswerNo
		return t.askCallbackTime()
	}
	if t.nlu.LowConfidenceUnknown() {
		return t.lowConfidence()
	}
	return t.respond("Is now a good time to continue?", intentDeliverDisclosure)
}

// handleProposedDate validates a resolved payment date against the
// end-of-month policy and routes it to the recap step.
func (t *turn) handleProposedDate(resolved datenorm.Result) Response {
	ref := datenorm.DateOnly(t.ref)
	lastDay := datenorm.LastDayOfMonth(ref)

	if resolved.Date.Before(ref) {
		return t.respond("That date has already passed. What date before the end of the month works for you?",
			intentNegotiate)
	}

	if resolved.Date.After(lastDay) {
		if t.st.recordDateCorrection() {
			// The user insists on a date past month end; stop reconducting.
			t.st.EscalationReason = ReasonDatePolicy
			return t.escalate(ReasonDatePolicy)
		}
		alts := datenorm.AlternativeDates(ref)
		text := "I'm sorry, but we need a commitment by the end of this month. Could you do " +
			alts[0].Format("January 2") + " or " + alts[1].Format("January 2") + " instead?"
		return t.respond(text, intentNegotiate)
	}

	return t.recapPTP(resolved.Date)
}

// recapPTP echoes the full commitment back and asks for explicit
// acknowledgment. No payment action is emitted until the user confirms this
// recap; resolved-but-unconfirmed dates stay in LastProposedPaymentDate only.
func (t *turn) recapPTP(date time.Time) Response {
	iso := date.Format("2006-01-02")
	t.st.LastProposedPaymentDate = iso
	text := "To confirm, you'll pay $" + t.amountDue() + " on " + date.Format("Monday, January 2") + ". Is that right?"
	return t.respond(text, intentConfirmPTP)
}

// handleRecapAnswer finalizes or discards the pending promise-to-pay based on
// the answer to the recap question.
func (t *turn) handleRecapAnswer() Response {
	if t.nlu.Has(intent.Affirmation) && !t.nlu.Has(intent.Negation) {
		return t.confirmPTP()
	}
	if t.nlu.Has(intent.Negation) || t.nlu.Has(intent.Refusal) {
		t.st.LastProposedPaymentDate = ""
		if t.st.recordProposal(t.pol.Limits.MaxNegotiationProposals) {
			t.st.EscalationReason = ReasonHardRefusal
			return t.escalate(ReasonHardRefusal)
		}
		return t.respond("No problem. What exact date before month end works for you?", intentNegotiate)
	}
	// A new date in the answer replaces the pending one.
	if resolved := datenorm.Normalize(t.transcript, t.ref); resolved.OK {
		return t.handleProposedDate(resolved)
	}
	if t.nlu.LowConfidenceUnknown() {
		return t.lowConfidence()
	}
	return t.respond("Just to be sure, is $"+t.amountDue()+" on "+t.st.LastProposedPaymentDate+" correct?",
		intentConfirmPTP)
}

// confirmPTP records the confirmed promise and ends the call. Only here does
// PromiseToPay.Confirmed become true.
func (t *turn) confirmPTP() Response {
	amount := t.amountDue()
	date := t.st.LastProposedPaymentDate
	t.st.PromiseToPay = PromiseToPay{Date: date, Amount: amount, Confirmed: true}

	text := "Perfect, I've noted your commitment for $" + amount + " on " + date +
		". We'll text you a payment link, thank you and have a great day."
	return t.closeCall(text, OutcomePTPSet,
		Action{Type: ActionCreatePromiseToPay, Payload: map[string]string{"date": date, "amount": amount}},
		Action{Type: ActionSendPaymentLink, Payload: map[string]string{"date": date, "amount": amount}},
	)
}

// handleRefusal counts a proposal and either offers a reduced ask or stops
// proposing and escalates.
func (t *turn) handleRefusal() Response {
	if t.st.recordProposal(t.pol.Limits.MaxNegotiationProposals) {
		t.st.EscalationReason = ReasonHardRefusal
		return t.escalate(ReasonHardRefusal)
	}
	return t.respond("I understand things can be tight. Is there a partial amount you could handle before the end of the month?",
		intentNegotiate)
}

func (t *turn) amountDue() string {
	if t.acct.AmountDue == "" {
		return "0.00"
	}
	return t.acct.AmountDue
}

func isTodayPaymentPrompt(lastQuestion string) bool {
	if !strings.Contains(lastQuestion, "today") {
		return false
	}
	for _, marker := range []string{"take care", "pay", "balance"} {
		if strings.Contains(lastQuestion, marker) {
			return true
		}
	}
	return false
}
