// Package policy defines the compliance policy document that governs every
// call: verification requirements, conversation limits, verbatim disclosure
// wording, and allowed dialing windows. Policies are plain data threaded into
// each handler call; nothing in this package is process-wide mutable state.
package policy

import (
	"fmt"
)

// VerificationMethod is one allow-listed, low-sensitivity identity check.
// Full SSN, full date of birth, full address, and payment credentials are
// never acceptable checks and have no representation here.
type VerificationMethod string

const (
	ConfirmName         VerificationMethod = "confirm_name"
	ConfirmZip          VerificationMethod = "confirm_zip"
	ConfirmDOBMonthDay  VerificationMethod = "confirm_dob_month_day"
	ConfirmLast4Ref     VerificationMethod = "confirm_last4_ref"
	ConfirmStreetNumber VerificationMethod = "confirm_street_number"
)

var knownMethods = map[VerificationMethod]bool{
	ConfirmName:         true,
	ConfirmZip:          true,
	ConfirmDOBMonthDay:  true,
	ConfirmLast4Ref:     true,
	ConfirmStreetNumber: true,
}

// Verification configures right-party verification.
type Verification struct {
	AllowedMethods []VerificationMethod `yaml:"allowed_methods" json:"allowed_methods"`
	// RequiredPasses is the number of independent checks that must pass
	// before the party is treated as verified. Policy-overridable; never
	// hardcode this count.
	RequiredPasses int `yaml:"required_passes" json:"required_passes"`
}

// Limits holds the guardrail ceilings. Every ceiling maps to exactly one
// deterministic consequence in the conversation engine.
type Limits struct {
	MaxVerificationAttempts  int `yaml:"max_verification_attempts"  json:"max_verification_attempts"`
	MaxReconductionAttempts  int `yaml:"max_reconduction_attempts"  json:"max_reconduction_attempts"`
	MaxNegotiationProposals  int `yaml:"max_negotiation_proposals"  json:"max_negotiation_proposals"`
	MaxSilencePrompts        int `yaml:"max_silence_prompts"        json:"max_silence_prompts"`
	MaxClarificationAttempts int `yaml:"max_clarification_attempts" json:"max_clarification_attempts"`
	MaxTotalTurns            int `yaml:"max_total_turns"            json:"max_total_turns"`
}

// Policy is one YAML-mappable policy document.
type Policy struct {
	Name      string `yaml:"name"       json:"name"`
	Version   string `yaml:"version"    json:"version"`
	BrandName string `yaml:"brand_name" json:"brand_name"`

	// DisclosureText is delivered verbatim, exactly once, on entry to the
	// post-verification phase.
	DisclosureText string `yaml:"disclosure_text" json:"disclosure_text"`
	// VoicemailText is spoken verbatim when the host reports voicemail.
	VoicemailText string `yaml:"voicemail_text" json:"voicemail_text"`

	Verification Verification `yaml:"verification" json:"verification"`
	Limits       Limits       `yaml:"limits"       json:"limits"`

	// CallWindows are allowed local dialing windows in "HH:MM-HH:MM" form.
	// Consumed by the pre-dial compliance gate, not by turn handling.
	CallWindows []string `yaml:"call_windows" json:"call_windows"`

	EscalationReasons []string `yaml:"escalation_reasons" json:"escalation_reasons"`
}

// Default returns the built-in policy used when no document is loaded.
func Default() Policy {
	return Policy{
		Name:      "default",
		BrandName: "Northstar Recovery",
		DisclosureText: "This is Northstar Recovery. This is an attempt to collect a debt, " +
			"and any information obtained will be used for that purpose.",
		VoicemailText: "Hello, this message is intended for the account holder. " +
			"Please call us back at your earliest convenience regarding an important personal business matter.",
		Verification: Verification{
			AllowedMethods: []VerificationMethod{ConfirmZip, ConfirmName},
			RequiredPasses: 2,
		},
		Limits: Limits{
			MaxVerificationAttempts:  3,
			MaxReconductionAttempts:  2,
			MaxNegotiationProposals:  2,
			MaxSilencePrompts:        3,
			MaxClarificationAttempts: 1,
			MaxTotalTurns:            25,
		},
		CallWindows:       []string{"08:00-20:00"},
		EscalationReasons: []string{"dispute", "hardship", "verification_failed", "user_requested_human", "low_confidence"},
	}
}

// Validate checks the policy document for consistency.
func (p *Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("policy: name is required")
	}
	if p.DisclosureText == "" {
		return fmt.Errorf("policy %q: disclosure_text is required", p.Name)
	}
	if len(p.Verification.AllowedMethods) == 0 {
		return fmt.Errorf("policy %q: at least one verification method is required", p.Name)
	}
	for _, m := range p.Verification.AllowedMethods {
		if !knownMethods[m] {
			return fmt.Errorf("policy %q: unknown verification method %q", p.Name, m)
		}
	}
	if p.Verification.RequiredPasses < 1 {
		return fmt.Errorf("policy %q: required_passes must be at least 1", p.Name)
	}
	if p.Verification.RequiredPasses > len(p.Verification.AllowedMethods) {
		return fmt.Errorf("policy %q: required_passes %d exceeds the %d allowed methods",
			p.Name, p.Verification.RequiredPasses, len(p.Verification.AllowedMethods))
	}

	l := p.Limits
	limits := []struct {
		name  string
		value int
	}{
		{"max_verification_attempts", l.MaxVerificationAttempts},
		{"max_reconduction_attempts", l.MaxReconductionAttempts},
		{"max_negotiation_proposals", l.MaxNegotiationProposals},
		{"max_silence_prompts", l.MaxSilencePrompts},
		{"max_clarification_attempts", l.MaxClarificationAttempts},
		{"max_total_turns", l.MaxTotalTurns},
	}
	for _, lim := range limits {
		if lim.value < 1 {
			return fmt.Errorf("policy %q: %s must be at least 1", p.Name, lim.name)
		}
	}

	for _, w := range p.CallWindows {
		if _, _, err := ParseWindow(w); err != nil {
			return fmt.Errorf("policy %q: %w", p.Name, err)
		}
	}
	return nil
}

// ParseWindow parses an "HH:MM-HH:MM" local time window into minutes since
// midnight. Overnight windows (start after end) are legal.
func ParseWindow(window string) (startMin, endMin int, err error) {
	var sh, sm, eh, em int
	if _, err := fmt.Sscanf(window, "%d:%d-%d:%d", &sh, &sm, &eh, &em); err != nil {
		return 0, 0, fmt.Errorf("invalid call window %q", window)
	}
	if sh < 0 || sh > 23 || eh < 0 || eh > 23 || sm < 0 || sm > 59 || em < 0 || em > 59 {
		return 0, 0, fmt.Errorf("invalid call window %q", window)
	}
	return sh*60 + sm, eh*60 + em, nil
}
