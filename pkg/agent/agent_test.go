package agent

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/northstarrec/outdial/pkg/policy"
)

// Monday 2026-02-09 in the recipient's timezone.
var testRef = time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)

var testProfile = PartyProfile{TargetName: "Alex Morgan"}

var testAccount = AccountContext{
	AmountDue:        "240.00",
	CreditorName:     "Northstar Recovery",
	Reference:        "REF-9921",
	ExpectedZip:      "78701",
	ExpectedName:     "Alex Morgan",
	ExpectedLast4Ref: "4321",
}

func utter(text string) TurnEvent {
	return TurnEvent{Type: EventUserUtterance, Transcript: text, Timestamp: testRef, LocalDate: testRef}
}

func silenceEvent() TurnEvent {
	return TurnEvent{Type: EventSilence, Timestamp: testRef, LocalDate: testRef}
}

// singlePassAgent verifies with one ZIP check so conversation tests stay
// short.
func singlePassAgent() *Agent {
	p := policy.Default()
	p.Verification.AllowedMethods = []policy.VerificationMethod{policy.ConfirmZip}
	p.Verification.RequiredPasses = 1
	return New(&p)
}

// runTurns feeds transcripts through the agent in order and returns the final
// response.
func runTurns(t *testing.T, a *Agent, state CallState, transcripts ...string) Response {
	t.Helper()
	resp := Response{State: state}
	for _, tr := range transcripts {
		var err error
		resp, err = a.HandleTurn(utter(tr), resp.State, testProfile, testAccount)
		if err != nil {
			t.Fatalf("HandleTurn(%q): %v", tr, err)
		}
	}
	return resp
}

func hasAction(actions []Action, at ActionType) (Action, bool) {
	for _, a := range actions {
		if a.Type == at {
			return a, true
		}
	}
	return Action{}, false
}

func TestStartCallAsksForTargetWithoutDisclosure(t *testing.T) {
	a := singlePassAgent()
	resp := a.StartCall(NewCallState(), testProfile)

	if !strings.Contains(resp.AssistantText, "Alex Morgan") {
		t.Errorf("opening should name the target: %q", resp.AssistantText)
	}
	for _, secret := range []string{"240.00", "Northstar", "debt"} {
		if strings.Contains(resp.AssistantText, secret) {
			t.Errorf("opening leaked %q: %q", secret, resp.AssistantText)
		}
	}
	if resp.State.TurnCount != 1 {
		t.Errorf("turn count = %d, want 1", resp.State.TurnCount)
	}
}

func TestHappyPathPromiseToPayToday(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)

	resp := runTurns(t, a, start.State,
		"yes, this is Alex",
		"78701",
		"yes",        // consent after disclosure
		"yes, I can", // pay today
	)

	// The recap must echo amount and date before anything is committed.
	if resp.AssistantIntent != intentConfirmPTP {
		t.Fatalf("intent = %q, want %q (text %q)", resp.AssistantIntent, intentConfirmPTP, resp.AssistantText)
	}
	if !strings.Contains(resp.AssistantText, "240.00") || !strings.Contains(resp.AssistantText, "February 9") {
		t.Errorf("recap missing amount or date: %q", resp.AssistantText)
	}
	if resp.State.PromiseToPay.Confirmed {
		t.Error("promise must not be confirmed before the recap is acknowledged")
	}

	final, err := a.HandleTurn(utter("yes, that's right"), resp.State, testProfile, testAccount)
	if err != nil {
		t.Fatal(err)
	}
	if !final.State.PromiseToPay.Confirmed {
		t.Error("promise should be confirmed after recap acknowledgment")
	}
	if final.State.PromiseToPay.Date != "2026-02-09" || final.State.PromiseToPay.Amount != "240.00" {
		t.Errorf("promise = %+v", final.State.PromiseToPay)
	}
	if final.State.EndReason != OutcomePTPSet {
		t.Errorf("end reason = %q, want %q", final.State.EndReason, OutcomePTPSet)
	}
	ptp, ok := hasAction(final.Actions, ActionCreatePromiseToPay)
	if !ok {
		t.Fatal("create_promise_to_pay not emitted")
	}
	if ptp.Payload["amount"] != "240.00" || ptp.Payload["date"] != "2026-02-09" {
		t.Errorf("ptp payload = %v", ptp.Payload)
	}
	if _, ok := hasAction(final.Actions, ActionSendPaymentLink); !ok {
		t.Error("send_payment_link not emitted")
	}
	if _, ok := hasAction(final.Actions, ActionEndCall); !ok {
		t.Error("end_call not emitted")
	}
}

func TestHappyPathExplicitDateThisMonth(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)

	resp := runTurns(t, a, start.State,
		"yes, this is Alex",
		"78701",
		"yes",
		"no, how about february 15",
		"yes, that works",
	)

	if resp.State.PromiseToPay.Date != "2026-02-15" {
		t.Errorf("promise date = %q, want 2026-02-15", resp.State.PromiseToPay.Date)
	}
	if !resp.State.PromiseToPay.Confirmed {
		t.Error("promise should be confirmed")
	}
	if resp.State.EndReason != OutcomePTPSet {
		t.Errorf("end reason = %q", resp.State.EndReason)
	}
}

func TestTwoPassVerification(t *testing.T) {
	a := New(nil) // default policy: ZIP then name, two passes
	start := a.StartCall(NewCallState(), testProfile)

	resp := runTurns(t, a, start.State, "yes speaking", "78701")
	if resp.State.RightPartyVerified {
		t.Fatal("one pass must not satisfy a two-pass policy")
	}
	if !strings.Contains(strings.ToLower(resp.AssistantText), "full name") {
		t.Errorf("second check should ask for the name: %q", resp.AssistantText)
	}

	resp = runTurns(t, a, resp.State, "Alex Morgan")
	if !resp.State.RightPartyVerified {
		t.Fatal("two passing checks should verify")
	}
	if resp.State.RightPartyConfidence < 0.9 {
		t.Errorf("confidence = %v", resp.State.RightPartyConfidence)
	}
	if !resp.State.DisclosureDelivered {
		t.Error("disclosure should be delivered on entry to post-verification")
	}
	if !strings.Contains(resp.AssistantText, "Northstar Recovery") {
		t.Errorf("disclosure should carry the mandated wording: %q", resp.AssistantText)
	}
}

func TestWrongPartyPreVerification(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)

	resp := runTurns(t, a, start.State, "you have the wrong number")

	if !resp.State.WrongPartyIndicated {
		t.Error("wrong_party_indicated not set")
	}
	if resp.State.EndReason != OutcomeWrongParty {
		t.Errorf("end reason = %q", resp.State.EndReason)
	}
	if _, ok := hasAction(resp.Actions, ActionMarkWrongNumber); !ok {
		t.Error("mark_wrong_number not emitted")
	}
	if _, ok := hasAction(resp.Actions, ActionEndCall); !ok {
		t.Error("end_call not emitted")
	}
	if strings.Contains(resp.AssistantText, "?") {
		t.Errorf("no further questions after wrong party: %q", resp.AssistantText)
	}
}

func TestVerificationFailureCeiling(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)

	resp := runTurns(t, a, start.State, "yes, this is Alex", "11111", "22222", "33333")

	if resp.State.EndReason != OutcomeVerificationFailed {
		t.Fatalf("end reason = %q, want %q", resp.State.EndReason, OutcomeVerificationFailed)
	}
	if got, max := resp.State.VerificationAttempts, 3; got != max {
		t.Errorf("verification attempts = %d, want exactly the ceiling %d", got, max)
	}
	if !resp.State.EscalationFlag {
		t.Error("escalation flag should be set on verification failure")
	}
}

func TestVerificationRefusalEndsAfterOneReconduction(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)

	resp := runTurns(t, a, start.State, "yes, this is Alex", "I'm not comfortable giving that")
	if resp.AssistantIntent != intentOfferCallback {
		t.Fatalf("first refusal should offer a callback, got %q: %q", resp.AssistantIntent, resp.AssistantText)
	}
	if resp.State.ReconductionAttempts != 1 {
		t.Errorf("reconduction attempts = %d, want 1", resp.State.ReconductionAttempts)
	}

	resp = runTurns(t, a, resp.State, "no")
	if resp.State.EndReason != OutcomeVerificationRefused {
		t.Fatalf("end reason = %q, want %q", resp.State.EndReason, OutcomeVerificationRefused)
	}
	if resp.State.ReconductionAttempts != 2 {
		t.Errorf("reconduction attempts = %d, want exactly 2", resp.State.ReconductionAttempts)
	}
}

func TestVerificationReconductionSchedulesCallback(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)

	resp := runTurns(t, a, start.State,
		"yes, this is Alex",
		"I'm not comfortable giving that",
		"yes, that works",
		"friday at 3 pm",
	)

	// A weekday resolution is ambiguous, so the resolved day is echoed back
	// and nothing is committed yet.
	if resp.AssistantIntent != intentConfirmCallback {
		t.Fatalf("intent = %q, want %q (text %q)", resp.AssistantIntent, intentConfirmCallback, resp.AssistantText)
	}
	if resp.State.Ended() {
		t.Fatal("call must stay open until the day is confirmed")
	}
	if resp.State.Callback.DatetimeLocal != "" {
		t.Errorf("callback committed before confirmation: %q", resp.State.Callback.DatetimeLocal)
	}
	if _, ok := hasAction(resp.Actions, ActionScheduleCallback); ok {
		t.Error("schedule_callback emitted before confirmation")
	}

	resp = runTurns(t, a, resp.State, "yes, that's right")
	if resp.State.EndReason != OutcomeCallbackSet {
		t.Fatalf("end reason = %q, want %q (text %q)", resp.State.EndReason, OutcomeCallbackSet, resp.AssistantText)
	}
	if resp.State.Callback.DatetimeLocal != "2026-02-13T15:00:00" {
		t.Errorf("callback datetime = %q", resp.State.Callback.DatetimeLocal)
	}
	cb, ok := hasAction(resp.Actions, ActionScheduleCallback)
	if !ok {
		t.Fatal("schedule_callback not emitted")
	}
	if cb.Payload["datetime_local"] != "2026-02-13T15:00:00" {
		t.Errorf("callback payload = %v", cb.Payload)
	}
}

func TestAmbiguousCallbackDayConfirmedBeforeScheduling(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)

	resp := runTurns(t, a, start.State,
		"yes, this is Alex",
		"I'm not comfortable giving that",
		"yes, that works",
		"el viernes",
	)

	if resp.State.Ended() {
		t.Fatalf("call ended before the day was confirmed: %q", resp.AssistantText)
	}
	if resp.State.Callback.DatetimeLocal != "" {
		t.Errorf("callback committed without confirmation: %q", resp.State.Callback.DatetimeLocal)
	}
	if _, ok := hasAction(resp.Actions, ActionScheduleCallback); ok {
		t.Error("schedule_callback emitted before confirmation")
	}
	if !strings.Contains(resp.AssistantText, "February 13") {
		t.Errorf("confirmation should echo the resolved day: %q", resp.AssistantText)
	}

	resp = runTurns(t, a, resp.State, "yes")
	if resp.State.EndReason != OutcomeCallbackSet {
		t.Fatalf("end reason = %q (text %q)", resp.State.EndReason, resp.AssistantText)
	}
	if resp.State.Callback.DatetimeLocal != "2026-02-13T10:00:00" {
		t.Errorf("callback datetime = %q", resp.State.Callback.DatetimeLocal)
	}
}

func TestCallbackConfirmationDeclinedReasksForTime(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)

	resp := runTurns(t, a, start.State,
		"yes, this is Alex",
		"I'm not comfortable giving that",
		"yes, that works",
		"friday at 3 pm",
		"no, that doesn't work",
	)

	if resp.AssistantIntent != intentRequestCallbackTime {
		t.Fatalf("intent = %q, want %q", resp.AssistantIntent, intentRequestCallbackTime)
	}
	if resp.State.LastProposedCallbackLocal != "" {
		t.Errorf("pending callback not cleared: %q", resp.State.LastProposedCallbackLocal)
	}

	// A deterministic phrase commits without another confirmation round.
	resp = runTurns(t, a, resp.State, "tomorrow at 9 am")
	if resp.State.EndReason != OutcomeCallbackSet {
		t.Fatalf("end reason = %q (text %q)", resp.State.EndReason, resp.AssistantText)
	}
	if resp.State.Callback.DatetimeLocal != "2026-02-10T09:00:00" {
		t.Errorf("callback datetime = %q", resp.State.Callback.DatetimeLocal)
	}
}

func TestConsentDeclinedRequestsCallbackTime(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)

	resp := runTurns(t, a, start.State, "yes, this is Alex", "78701", "no, this is a bad time")

	if resp.State.ConsentToContinue != AnswerNo {
		t.Errorf("consent = %q, want no", resp.State.ConsentToContinue)
	}
	if resp.AssistantIntent != intentRequestCallbackTime {
		t.Fatalf("intent = %q, want %q", resp.AssistantIntent, intentRequestCallbackTime)
	}

	resp = runTurns(t, a, resp.State, "tomorrow at 9 am")
	if resp.State.EndReason != OutcomeCallbackSet {
		t.Fatalf("end reason = %q", resp.State.EndReason)
	}
	if resp.State.Callback.DatetimeLocal != "2026-02-10T09:00:00" {
		t.Errorf("callback datetime = %q", resp.State.Callback.DatetimeLocal)
	}
}

func TestDisputeEscalates(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)

	resp := runTurns(t, a, start.State, "yes, this is Alex", "78701", "yes", "I don't owe this")

	if !resp.State.DisputeFlag || !resp.State.EscalationFlag {
		t.Error("dispute and escalation flags should be set")
	}
	if resp.State.EscalationReason != ReasonDispute {
		t.Errorf("escalation reason = %q", resp.State.EscalationReason)
	}
	esc, ok := hasAction(resp.Actions, ActionEscalateToHuman)
	if !ok {
		t.Fatal("escalate_to_human not emitted")
	}
	if esc.Payload["reason"] != ReasonDispute {
		t.Errorf("escalation payload = %v", esc.Payload)
	}
	if resp.State.NegotiationProposals != 0 {
		t.Error("no further proposals after a dispute")
	}
}

func TestHardshipEscalates(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)

	resp := runTurns(t, a, start.State, "yes, this is Alex", "78701", "yes", "I just lost my job and I'm in the hospital")

	if !resp.State.HardshipFlag {
		t.Error("hardship flag should be set")
	}
	if resp.State.EscalationReason != ReasonHardship {
		t.Errorf("escalation reason = %q", resp.State.EscalationReason)
	}
}

func TestCeaseContactBypassesEverything(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)

	// Mid-verification, before any identity check passed.
	resp := runTurns(t, a, start.State, "yes, this is Alex", "stop calling me")

	if !resp.State.CeaseContactRequested {
		t.Error("cease_contact_requested not set")
	}
	if resp.State.EndReason != OutcomeCeaseContact {
		t.Errorf("end reason = %q", resp.State.EndReason)
	}
	if _, ok := hasAction(resp.Actions, ActionMarkDoNotContact); !ok {
		t.Error("mark_do_not_contact not emitted")
	}
	if _, ok := hasAction(resp.Actions, ActionEndCall); !ok {
		t.Error("end_call not emitted")
	}
}

func TestSilenceSequence(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)

	first, err := a.HandleTurn(silenceEvent(), start.State, testProfile, testAccount)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(strings.ToLower(first.AssistantText), "still there") {
		t.Errorf("first silence should re-engage: %q", first.AssistantText)
	}

	second, err := a.HandleTurn(silenceEvent(), first.State, testProfile, testAccount)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(strings.ToLower(second.AssistantText), "call back") {
		t.Errorf("second silence should offer a callback: %q", second.AssistantText)
	}

	third, err := a.HandleTurn(silenceEvent(), second.State, testProfile, testAccount)
	if err != nil {
		t.Fatal(err)
	}
	if third.State.EndReason != OutcomeSilenceTimeout {
		t.Errorf("end reason = %q, want %q", third.State.EndReason, OutcomeSilenceTimeout)
	}
	if third.State.SilenceCount != 3 {
		t.Errorf("silence count = %d, want exactly 3", third.State.SilenceCount)
	}
}

func TestSilenceCounterResetsOnSpeech(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)

	resp, err := a.HandleTurn(silenceEvent(), start.State, testProfile, testAccount)
	if err != nil {
		t.Fatal(err)
	}
	resp = runTurns(t, a, resp.State, "sorry, I'm here")
	if resp.State.SilenceCount != 0 {
		t.Errorf("silence count = %d, want 0 after speech", resp.State.SilenceCount)
	}
}

func TestAmbiguousDateNeedsConfirmationBeforePTP(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)

	resp := runTurns(t, a, start.State, "yes, this is Alex", "78701", "yes", "el viernes")

	if resp.AssistantIntent != intentConfirmPTP {
		t.Fatalf("intent = %q, want confirmation prompt (text %q)", resp.AssistantIntent, resp.AssistantText)
	}
	if !strings.Contains(resp.AssistantText, "February 13") {
		t.Errorf("resolved weekday should be echoed: %q", resp.AssistantText)
	}
	if resp.State.PromiseToPay.Confirmed {
		t.Error("no promise before explicit confirmation")
	}

	// The user disagrees with the resolution: nothing may be committed.
	declined := runTurns(t, a, resp.State, "no")
	if declined.State.PromiseToPay.Confirmed {
		t.Error("declined recap must not create a promise")
	}
	if declined.State.LastProposedPaymentDate != "" {
		t.Errorf("pending date should be cleared, got %q", declined.State.LastProposedPaymentDate)
	}
	if declined.State.Ended() {
		t.Error("call should continue negotiating after one declined recap")
	}
}

func TestDatePastMonthEndRejectedWithTwoAlternatives(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)

	resp := runTurns(t, a, start.State, "yes, this is Alex", "78701", "yes", "march 15")

	if resp.State.Ended() {
		t.Fatalf("first out-of-range date should get a correction, not an ending: %q", resp.AssistantText)
	}
	if !strings.Contains(resp.AssistantText, "February 10") || !strings.Contains(resp.AssistantText, "February 28") {
		t.Errorf("exactly two in-month alternatives expected: %q", resp.AssistantText)
	}
	if QuestionCount(resp.AssistantText) != 1 {
		t.Errorf("question count = %d: %q", QuestionCount(resp.AssistantText), resp.AssistantText)
	}

	// Insisting on a date past month end stops the reconduction.
	resp = runTurns(t, a, resp.State, "it has to be march 20")
	if resp.State.EscalationReason != ReasonDatePolicy {
		t.Errorf("escalation reason = %q (text %q)", resp.State.EscalationReason, resp.AssistantText)
	}
	if !resp.State.Ended() {
		t.Error("insistence should end the call via escalation")
	}
}

func TestRefusalCeilingStopsProposals(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)

	resp := runTurns(t, a, start.State, "yes, this is Alex", "78701", "yes", "I can't pay anything")
	if resp.State.Ended() {
		t.Fatalf("first refusal should get one reduced ask: %q", resp.AssistantText)
	}
	if resp.State.NegotiationProposals != 1 {
		t.Errorf("proposals = %d, want 1", resp.State.NegotiationProposals)
	}

	resp = runTurns(t, a, resp.State, "no, I'm not paying")
	if !resp.State.Ended() {
		t.Fatal("second refusal should stop proposing")
	}
	if resp.State.NegotiationProposals != 2 {
		t.Errorf("proposals = %d, want exactly the ceiling 2", resp.State.NegotiationProposals)
	}
	if resp.State.EscalationReason != ReasonHardRefusal {
		t.Errorf("escalation reason = %q", resp.State.EscalationReason)
	}
}

func TestLowConfidenceClarifiesOnceThenEscalates(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)

	resp := runTurns(t, a, start.State, "zzz qqq blorp")
	if resp.State.ClarificationAttempts != 1 {
		t.Fatalf("clarification attempts = %d, want 1 (text %q)", resp.State.ClarificationAttempts, resp.AssistantText)
	}
	if resp.State.Ended() {
		t.Fatal("first low-confidence turn should clarify, not end")
	}

	resp = runTurns(t, a, resp.State, "blorp zzz again")
	if resp.State.EscalationReason != ReasonLowConfidence {
		t.Errorf("escalation reason = %q", resp.State.EscalationReason)
	}
	if !resp.State.Ended() {
		t.Error("second unusable turn should escalate")
	}
}

func TestRepeatedQuestionPivots(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)

	// Reach the exact-date prompt, then answer "sure" until the guard fires.
	resp := runTurns(t, a, start.State, "yes, this is Alex", "78701", "yes", "no", "sure")
	question := resp.AssistantText
	resp = runTurns(t, a, resp.State, "sure")
	if resp.AssistantText != question {
		t.Fatalf("second identical ask expected, got %q", resp.AssistantText)
	}

	resp = runTurns(t, a, resp.State, "sure")
	if resp.State.EscalationReason != ReasonRepeatedQuestion {
		t.Errorf("escalation reason = %q (text %q)", resp.State.EscalationReason, resp.AssistantText)
	}
	if !resp.State.Ended() {
		t.Error("third identical ask must pivot instead of repeating")
	}
}

func TestMaxTurnsCeiling(t *testing.T) {
	a := singlePassAgent()
	st := NewCallState()
	st.TurnCount = 24

	resp, err := a.HandleTurn(utter("hello"), st, testProfile, testAccount)
	if err != nil {
		t.Fatal(err)
	}
	if resp.State.EndReason != OutcomeMaxTurns {
		t.Errorf("end reason = %q, want %q", resp.State.EndReason, OutcomeMaxTurns)
	}
	if _, ok := hasAction(resp.Actions, ActionEscalateToHuman); !ok {
		t.Error("a human follow-up should be queued at the turn ceiling")
	}
}

func TestVoicemailDeliversPolicyMessage(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)

	resp, err := a.HandleTurn(TurnEvent{Type: EventVoicemail, Timestamp: testRef, LocalDate: testRef},
		start.State, testProfile, testAccount)
	if err != nil {
		t.Fatal(err)
	}
	if resp.State.EndReason != OutcomeVoicemail {
		t.Errorf("end reason = %q", resp.State.EndReason)
	}
	if strings.Contains(resp.AssistantText, "240.00") || strings.Contains(resp.AssistantText, "debt") {
		t.Errorf("voicemail leaked account details: %q", resp.AssistantText)
	}
}

func TestBusyClosesWithRetry(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)

	resp := runTurns(t, a, start.State, "I'm driving, call me later")
	if resp.State.EndReason != OutcomeBusy {
		t.Errorf("end reason = %q", resp.State.EndReason)
	}
	if !resp.State.Callback.Requested {
		t.Error("busy should flag a callback request")
	}
	// No concrete time was given, so no schedule_callback with an empty
	// datetime is emitted; the busy outcome already signals the retry.
	if _, ok := hasAction(resp.Actions, ActionScheduleCallback); ok {
		t.Error("schedule_callback emitted without a datetime")
	}
}

func TestIdempotentTermination(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)
	ended := runTurns(t, a, start.State, "you have the wrong number")

	first, err := a.HandleTurn(utter("hello? are you there?"), ended.State, testProfile, testAccount)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.HandleTurn(utter("one more thing"), first.State, testProfile, testAccount)
	if err != nil {
		t.Fatal(err)
	}

	if first.AssistantText != second.AssistantText || first.AssistantIntent != second.AssistantIntent {
		t.Error("post-termination responses should be identical")
	}
	if len(first.Actions) != 0 || len(second.Actions) != 0 {
		t.Error("post-termination turns emit no actions")
	}
	if second.State.TurnCount != ended.State.TurnCount {
		t.Error("post-termination turns must not mutate counters")
	}
}

func TestConfidentialityBeforeVerification(t *testing.T) {
	utterances := []string{
		"who is this?",
		"what is this about",
		"why are you calling",
		"maybe",
		"yes",
		"I can't pay anything",
		"is this about money?",
		"tell me how much I owe",
	}

	for _, text := range utterances {
		t.Run(text, func(t *testing.T) {
			a := singlePassAgent()
			start := a.StartCall(NewCallState(), testProfile)

			resp, err := a.HandleTurn(utter(text), start.State, testProfile, testAccount)
			if err != nil {
				t.Fatal(err)
			}
			for !resp.State.RightPartyVerified {
				for _, secret := range []string{"240.00", "Northstar", "REF-9921"} {
					if strings.Contains(resp.AssistantText, secret) {
						t.Fatalf("unverified response leaked %q: %q", secret, resp.AssistantText)
					}
				}
				if resp.State.Ended() {
					break
				}
				resp, err = a.HandleTurn(utter(text), resp.State, testProfile, testAccount)
				if err != nil {
					t.Fatal(err)
				}
			}
		})
	}
}

func TestVoiceConstraintsOnEveryResponse(t *testing.T) {
	a := singlePassAgent()
	start := a.StartCall(NewCallState(), testProfile)

	transcripts := []string{
		"yes, this is Alex", "78701", "yes", "no", "sure",
		"el viernes", "no", "march 15", "february 20", "yes",
	}
	resp := Response{State: start.State}
	check := func(text string) {
		if n := SentenceCount(text); n > 2 {
			t.Errorf("%d sentences: %q", n, text)
		}
		if n := QuestionCount(text); n > 1 {
			t.Errorf("%d question marks: %q", n, text)
		}
	}
	check(start.AssistantText)
	var err error
	for _, tr := range transcripts {
		resp, err = a.HandleTurn(utter(tr), resp.State, testProfile, testAccount)
		if err != nil {
			t.Fatal(err)
		}
		check(resp.AssistantText)
		if resp.State.Ended() {
			break
		}
	}
}

func TestMalformedEventRejectedAtBoundary(t *testing.T) {
	a := singlePassAgent()

	_, err := a.HandleTurn(TurnEvent{Type: "bogus", Timestamp: testRef}, NewCallState(), testProfile, testAccount)
	if err == nil {
		t.Fatal("unknown event type should be rejected")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T", err)
	}

	_, err = a.HandleTurn(TurnEvent{Type: EventUserUtterance, Transcript: "hi"}, NewCallState(), testProfile, testAccount)
	if err == nil {
		t.Fatal("missing timestamp should be rejected")
	}
}
