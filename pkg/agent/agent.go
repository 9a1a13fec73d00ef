package agent

import (
	"strings"
	"time"

	"github.com/northstarrec/outdial/pkg/intent"
	"github.com/northstarrec/outdial/pkg/policy"
)

// Assistant intent labels attached to every response. They name what the
// assistant is doing, and the context-sensitive handlers use the previous
// label to interpret short answers like "yes".
const (
	intentRequestTarget       = "request_target"
	intentVerifyIdentity      = "verify_identity"
	intentOfferCallback       = "offer_callback"
	intentRequestCallbackTime = "request_callback_time"
	intentConfirmCallback     = "confirm_callback"
	intentDeliverDisclosure   = "deliver_disclosure"
	intentNegotiate           = "negotiate"
	intentConfirmPTP          = "confirm_ptp"
	intentHandleSilence       = "handle_silence"
	intentClose               = "close"
	intentEscalate            = "escalate"
	intentAlreadyClosed       = "already_closed"
)

// Agent is the per-turn decision engine. It is stateless apart from its
// policy, so a single Agent is safely shared across concurrent calls.
type Agent struct {
	pol policy.Policy
}

// New creates an agent governed by the given policy. A nil policy selects the
// built-in default.
func New(pol *policy.Policy) *Agent {
	if pol == nil {
		def := policy.Default()
		return &Agent{pol: def}
	}
	return &Agent{pol: *pol}
}

// StartCall produces the initial outbound prompt. No debt or company mention
// is permitted yet.
func (a *Agent) StartCall(state CallState, profile PartyProfile) Response {
	st := state
	st.TurnCount++

	name := profile.TargetName
	if name == "" {
		name = "the account holder"
	}
	text := "Hello, I'm looking for " + name + ". Am I speaking with them?"
	st.recordQuestion(text)
	st.LastAssistantQuestion = text
	st.LastAssistantIntent = intentRequestTarget
	return Response{
		AssistantText:   FormatVoice(text),
		AssistantIntent: intentRequestTarget,
		Actions:         []Action{},
		State:           st,
	}
}

// HandleTurn processes one turn event against the call state and returns the
// response plus the updated state. The only error it can return is a
// boundary-level validation failure; every conversational condition resolves
// to a well-formed Response.
func (a *Agent) HandleTurn(event TurnEvent, state CallState, profile PartyProfile, acct AccountContext) (Response, error) {
	if err := event.Validate(); err != nil {
		return Response{}, err
	}

	st := state
	if st.Ended() {
		// Idempotent termination: no counters move, actions stay empty.
		return Response{
			AssistantText:   "This call is already closed. Goodbye.",
			AssistantIntent: intentAlreadyClosed,
			Actions:         []Action{},
			State:           st,
		}, nil
	}

	ref := event.LocalDate
	if ref.IsZero() {
		ref = event.Timestamp
	}
	t := &turn{
		st:         &st,
		event:      event,
		profile:    profile,
		acct:       acct,
		pol:        &a.pol,
		transcript: strings.TrimSpace(event.Transcript),
		ref:        ref,
	}

	if st.recordTurn(a.pol.Limits.MaxTotalTurns) {
		return t.maxTurns(), nil
	}

	if event.Type == EventVoicemail {
		return t.voicemail(), nil
	}
	if event.Type == EventSilence || t.transcript == "" {
		return t.silence(), nil
	}

	st.resetSilence()
	st.LastUserUtterance = t.transcript
	t.nlu = intent.Classify(t.transcript)
	if !t.nlu.LowConfidenceUnknown() {
		st.resetClarification()
	}

	// Universal intents short-circuit phase routing in every phase.
	if t.nlu.Has(intent.StopRequest) {
		st.CeaseContactRequested = true
		return t.closeCall("Understood. I will update our records, and you will not be contacted again. Goodbye.",
			OutcomeCeaseContact, Action{Type: ActionMarkDoNotContact}), nil
	}
	if t.nlu.Has(intent.Goodbye) {
		return t.closeCall("Understood. Thanks for your time. Goodbye.", OutcomeUserEnded), nil
	}
	if t.nlu.Has(intent.HumanHandoff) {
		return t.escalate(ReasonUserRequestedHuman), nil
	}

	switch st.Phase {
	case PhasePreVerification:
		return t.preVerification(), nil
	case PhaseVerification:
		return t.verification(), nil
	case PhasePostVerification:
		return t.negotiation(), nil
	default:
		// Closing and escalation resolve within the turn that entered them,
		// so a persisted state here only happens on a stale blob.
		return t.closeCall("Thanks for your time. Goodbye.", OutcomeClosed), nil
	}
}

// turn bundles everything one turn needs so handlers stay readable.
type turn struct {
	st         *CallState
	event      TurnEvent
	profile    PartyProfile
	acct       AccountContext
	pol        *policy.Policy
	nlu        intent.Classification
	transcript string
	ref        time.Time
}

func (t *turn) targetName() string {
	if t.profile.TargetName != "" {
		return t.profile.TargetName
	}
	return "the account holder"
}

// respond formats and emits a non-terminal response. It enforces the
// repeated-question guard and the pre-verification confidentiality guard on
// the way out.
func (t *turn) respond(text, assistantIntent string, actions ...Action) Response {
	if t.transcript != "" {
		text = withAcknowledgment(text)
	}
	formatted := FormatVoice(t.sanitize(text))

	if strings.Contains(formatted, "?") {
		if t.st.recordQuestion(formatted) {
			return t.escalate(ReasonRepeatedQuestion)
		}
		t.st.LastAssistantQuestion = formatted
	}
	t.st.LastAssistantIntent = assistantIntent
	if actions == nil {
		actions = []Action{}
	}
	return Response{
		AssistantText:   formatted,
		AssistantIntent: assistantIntent,
		Actions:         actions,
		State:           *t.st,
		NLU:             t.nlu,
	}
}

// closeCall ends the call through the closing phase with one outcome code.
func (t *turn) closeCall(text, outcome string, extra ...Action) Response {
	t.st.terminate(PhaseClosing, outcome)
	actions := append(extra,
		Action{Type: ActionSetOutcome, Payload: map[string]string{"code": outcome}},
		Action{Type: ActionEndCall, Payload: map[string]string{"reason": outcome}},
	)
	t.st.LastAssistantIntent = intentClose
	return Response{
		AssistantText:   FormatVoice(t.sanitize(text)),
		AssistantIntent: intentClose,
		Actions:         actions,
		State:           *t.st,
		NLU:             t.nlu,
	}
}

// escalate hands the call to a human through the escalation phase.
func (t *turn) escalate(reason string) Response {
	t.st.EscalationFlag = true
	if t.st.EscalationReason == "" {
		t.st.EscalationReason = reason
	}
	outcome := "escalated_" + reason
	t.st.terminate(PhaseEscalation, outcome)
	t.st.LastAssistantIntent = intentEscalate
	return Response{
		AssistantText:   FormatVoice("I'll connect you with a specialist who can help further. Please hold."),
		AssistantIntent: intentEscalate,
		Actions: []Action{
			{Type: ActionEscalateToHuman, Payload: map[string]string{"reason": reason}},
			{Type: ActionSetOutcome, Payload: map[string]string{"code": outcome}},
			{Type: ActionEndCall, Payload: map[string]string{"reason": outcome}},
		},
		State: *t.st,
		NLU:   t.nlu,
	}
}

// sanitize strips account specifics from any text produced before
// verification. Handlers never put them there; this is the enforced
// invariant, not a formatting nicety.
func (t *turn) sanitize(text string) string {
	if t.st.RightPartyVerified {
		return text
	}
	lower := strings.ToLower(text)
	for _, secret := range []string{t.acct.AmountDue, t.acct.CreditorName, t.acct.Reference} {
		if secret == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(secret)) {
			return "I can only discuss details once I've verified I'm speaking with the right person."
		}
	}
	return text
}

// silence handles a turn with no usable speech. First prompt re-engages,
// second offers a callback, third ends the call.
func (t *turn) silence() Response {
	if t.st.recordSilence(t.pol.Limits.MaxSilencePrompts) {
		return t.closeCall("Since I haven't heard from you, I'll end the call for now. Goodbye.", OutcomeSilenceTimeout)
	}
	if t.st.SilenceCount == 1 {
		return t.respond("Are you still there? I didn't catch that.", intentHandleSilence)
	}
	t.st.Callback.Requested = true
	return t.respond("I still can't hear you; if now is a bad time, I can call back later. Are you there?", intentHandleSilence)
}

// voicemail delivers the policy voicemail message once and ends the call.
// Nothing sensitive is ever left on a recording.
func (t *turn) voicemail() Response {
	return t.closeCall(t.pol.VoicemailText, OutcomeVoicemail)
}

// maxTurns ends the call when the global turn ceiling is reached, with a
// human follow-up queued.
func (t *turn) maxTurns() Response {
	t.st.EscalationFlag = true
	if t.st.EscalationReason == "" {
		t.st.EscalationReason = ReasonMaxTurns
	}
	t.st.terminate(PhaseEscalation, OutcomeMaxTurns)
	t.st.LastAssistantIntent = intentClose
	return Response{
		AssistantText:   FormatVoice("Thank you for your time today. A specialist will follow up with you, goodbye."),
		AssistantIntent: intentClose,
		Actions: []Action{
			{Type: ActionEscalateToHuman, Payload: map[string]string{"reason": ReasonMaxTurns}},
			{Type: ActionSetOutcome, Payload: map[string]string{"code": OutcomeMaxTurns}},
			{Type: ActionEndCall, Payload: map[string]string{"reason": OutcomeMaxTurns}},
		},
		State: *t.st,
		NLU:   t.nlu,
	}
}

// lowConfidence asks one clarifying question, then escalates if the next
// classification is still unusable.
func (t *turn) lowConfidence() Response {
	if t.st.recordClarification(t.pol.Limits.MaxClarificationAttempts) {
		t.st.EscalationReason = ReasonLowConfidence
		return t.escalate(ReasonLowConfidence)
	}

	var text, label string
	switch t.st.Phase {
	case PhasePreVerification:
		text = "Sorry, I didn't catch that. Are you " + t.targetName() + "?"
		label = intentRequestTarget
	case PhaseVerification:
		text = "Sorry, I didn't catch that. " + methodQuestion(t.pendingMethod())
		label = intentVerifyIdentity
	default:
		text = "Sorry, I didn't catch that. Could you repeat the payment date that works for you?"
		label = intentNegotiate
	}
	return t.respond(text, label)
}

// busy closes the call; the busy outcome itself tells the host to retry, so
// no callback is scheduled without a concrete time.
func (t *turn) busy() Response {
	t.st.Callback.Requested = true
	return t.closeCall("I understand. We will try you again at a better time, goodbye.", OutcomeBusy)
}

// wrongParty ends the call without disclosing anything, in any phase.
func (t *turn) wrongParty() Response {
	t.st.WrongPartyIndicated = true
	t.st.TargetReached = AnswerNo
	return t.closeCall("My apologies, I must have the wrong number. I'll update my records.",
		OutcomeWrongParty, Action{Type: ActionMarkWrongNumber, Payload: map[string]string{"reason": OutcomeWrongParty}})
}
