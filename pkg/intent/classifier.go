// Package intent classifies caller utterances into ranked intent labels.
//
// Classification is deliberately rule-based: an ordered table of pattern
// rules, each carrying a base confidence. The table order is the priority
// order, so adding an intent means adding a row, not touching control flow.
// Classify never fails; text that matches nothing resolves to Unknown with
// low confidence.
package intent

import (
	"regexp"
	"strings"
)

// Label identifies a recognized caller intent.
type Label string

const (
	StopRequest      Label = "stop_request"
	Goodbye          Label = "goodbye"
	HumanHandoff     Label = "human_handoff"
	WrongParty       Label = "wrong_party"
	Dispute          Label = "dispute"
	Busy             Label = "busy"
	Uncomfortable    Label = "uncomfortable"
	Refusal          Label = "refusal"
	Uncertain        Label = "uncertain"
	IdentityQuestion Label = "identity_question"
	Affirmation      Label = "affirmation"
	Negation         Label = "negation"
	Unknown          Label = "unknown"
)

// LowConfidenceThreshold is the bar under which a classification routes to
// the clarification path instead of the nominal handler.
const LowConfidenceThreshold = 0.45

// ambiguityWindow and ambiguityPenalty govern how a near-tie between two
// matched labels reduces the winner's confidence.
const (
	ambiguityWindow  = 0.08
	ambiguityPenalty = 0.15
	penaltyFloor     = 0.35
)

// rule is one row of the classification table. Rows are evaluated in order;
// the first matched row of highest priority wins.
type rule struct {
	label Label
	re    *regexp.Regexp
	base  float64
}

var rules = []rule{
	{StopRequest, regexp.MustCompile(`\b(stop calling|do not call|don'?t call|cease contact|remove (me|my number)|opt out)\b`), 0.93},
	{Goodbye, regexp.MustCompile(`\b(bye|goodbye|bye bye|see you|talk later|gotta go|have to go|end this call|hang up)\b`), 0.90},
	{HumanHandoff, regexp.MustCompile(`\b(human|representative|agent|specialist|operator|talk to (someone|a person|a human|an agent)|real person)\b`), 0.88},
	{WrongParty, regexp.MustCompile(`\b(wrong (number|person)|doesn'?t live|does not live|no longer (at|here)|not (the person|here)|moved out|you reached the wrong)\b`), 0.90},
	{Dispute, regexp.MustCompile(`\b(don'?t owe|do not owe|not my debt|dispute|fraud|mistake|wrong amount)\b`), 0.90},
	{Busy, regexp.MustCompile(`\b(not a good time|can'?t talk|cannot talk|busy|call back|later|in a meeting|driving|call me later)\b`), 0.82},
	{Uncomfortable, regexp.MustCompile(`\b(not comfortable|why do you need|why should i (give|provide)|won'?t give|don'?t want to (provide|give))\b`), 0.75},
	{Refusal, regexp.MustCompile(`\b(don'?t want to pay|not paying|won'?t pay|refuse|can'?t pay|not able to pay|never paying|can'?t afford|no chance)\b`), 0.86},
	{Uncertain, regexp.MustCompile(`\b(don'?t know|not sure|maybe|i'?ll see|depends|have to check)\b`), 0.74},
	{IdentityQuestion, regexp.MustCompile(`\b(who is this|who are you|what is this about|why are you calling)\b`), 0.76},
	{Affirmation, regexp.MustCompile(`\b(yes|yeah|yep|yup|correct|that'?s right|sure|okay|ok|i can|sounds good|absolutely|definitely|go ahead|speaking|this is)\b`), 0.72},
	{Negation, regexp.MustCompile(`\b(no|nope|not|cannot|can'?t|don'?t|do not|never|incorrect|won'?t be able to|wont be able to)\b`), 0.72},
}

// strongLabels override the yes/no ambiguity rule: when one of these also
// matched, a simultaneous affirmation+negation does not collapse to Unknown.
var strongLabels = map[Label]bool{
	StopRequest:   true,
	HumanHandoff:  true,
	WrongParty:    true,
	Dispute:       true,
	Busy:          true,
	Uncomfortable: true,
	Refusal:       true,
}

// Classification is the ranked result for one utterance.
type Classification struct {
	Label      Label
	Confidence float64
	Scores     map[Label]float64
	Matches    []Label
}

// Has reports whether the given label matched with a meaningful score,
// regardless of whether it won the ranking.
func (c Classification) Has(label Label) bool {
	return c.Scores[label] >= 0.5
}

// LowConfidenceUnknown reports whether the result should route to the
// clarification path rather than a nominal handler.
func (c Classification) LowConfidenceUnknown() bool {
	return c.Label == Unknown && c.Confidence < LowConfidenceThreshold
}

// Classify runs the rule table over the utterance.
func Classify(text string) Classification {
	normalized := strings.ToLower(strings.TrimSpace(text))
	scores := make(map[Label]float64, len(rules))
	if normalized == "" {
		return Classification{Label: Unknown, Confidence: 0, Scores: scores}
	}

	var matches []Label
	for _, r := range rules {
		if r.re.MatchString(normalized) {
			scores[r.label] = r.base
			matches = append(matches, r.label)
		}
	}

	// A bare "why" is an identity question even though the pattern table
	// requires fuller phrases.
	if strings.Trim(normalized, " .!?") == "why" && scores[IdentityQuestion] == 0 {
		scores[IdentityQuestion] = 0.76
		matches = append(matches, IdentityQuestion)
	}

	if len(matches) == 0 {
		return Classification{Label: Unknown, Confidence: 0.2, Scores: scores}
	}

	// Contradictory yes/no with nothing stronger present is unusable.
	if scores[Affirmation] > 0 && scores[Negation] > 0 && !hasStrong(matches) {
		return Classification{Label: Unknown, Confidence: 0.3, Scores: scores, Matches: matches}
	}

	// First matched rule in table order wins.
	var winner Label = Unknown
	confidence := 0.2
	for _, r := range rules {
		if scores[r.label] > 0 {
			winner = r.label
			confidence = scores[r.label]
			break
		}
	}

	// Penalize the winner when a competing label scored within the
	// ambiguity window.
	for _, m := range matches {
		if m == winner {
			continue
		}
		if scores[m] >= confidence-ambiguityWindow {
			confidence -= ambiguityPenalty
			if confidence < penaltyFloor {
				confidence = penaltyFloor
			}
			break
		}
	}

	return Classification{Label: winner, Confidence: confidence, Scores: scores, Matches: matches}
}

func hasStrong(matches []Label) bool {
	for _, m := range matches {
		if strongLabels[m] {
			return true
		}
	}
	return false
}
