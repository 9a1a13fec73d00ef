package agent

import (
	"strings"

	"github.com/northstarrec/outdial/pkg/policy"
)

// Right-party verification checks. Each allow-listed method pairs a question
// with a matcher against the account context. Full SSN, full date of birth,
// full address, and payment credentials are never asked for.

// methodQuestion returns the question text for a verification method.
func methodQuestion(method policy.VerificationMethod) string {
	switch method {
	case policy.ConfirmZip:
		return "To protect your privacy, could you confirm your 5-digit ZIP code?"
	case policy.ConfirmName:
		return "To protect your privacy, could you confirm your full name?"
	case policy.ConfirmDOBMonthDay:
		return "To protect your privacy, could you confirm the month and day of your birth?"
	case policy.ConfirmLast4Ref:
		return "To protect your privacy, could you confirm the last four digits of your reference number?"
	case policy.ConfirmStreetNumber:
		return "To protect your privacy, could you confirm your street number?"
	default:
		return "To protect your privacy, could you confirm your 5-digit ZIP code?"
	}
}

// checkMethod evaluates the user's answer for one verification method.
// answered reports whether the transcript contained an answer of the right
// shape at all; passed reports whether that answer matched the account.
func checkMethod(method policy.VerificationMethod, transcript string, acct AccountContext) (answered, passed bool) {
	switch method {
	case policy.ConfirmZip:
		provided := extractDigits(transcript, 5)
		if provided == "" {
			return false, false
		}
		return true, provided == strings.TrimSpace(acct.ExpectedZip)

	case policy.ConfirmName:
		expected := strings.ToLower(strings.TrimSpace(acct.ExpectedName))
		if expected == "" {
			return false, false
		}
		lower := strings.ToLower(transcript)
		// Every word of the expected name must be spoken; order is free.
		for _, part := range strings.Fields(expected) {
			if !strings.Contains(lower, part) {
				return true, false
			}
		}
		return true, true

	case policy.ConfirmDOBMonthDay:
		// Expected form "MM-DD".
		expected := strings.SplitN(strings.TrimSpace(acct.ExpectedDOBMonthDay), "-", 2)
		if len(expected) != 2 {
			return false, false
		}
		provided := extractDigits(transcript, 4)
		if provided == "" {
			// Spoken month names come through the date path instead.
			return monthDayMatches(transcript, expected[0], expected[1])
		}
		return true, provided == expected[0]+expected[1]

	case policy.ConfirmLast4Ref:
		provided := extractDigits(transcript, 4)
		if provided == "" {
			return false, false
		}
		return true, provided == strings.TrimSpace(acct.ExpectedLast4Ref)

	case policy.ConfirmStreetNumber:
		expected := strings.TrimSpace(acct.ExpectedStreetNumber)
		if expected == "" {
			return false, false
		}
		provided := extractDigits(transcript, len(expected))
		if provided == "" {
			return false, false
		}
		return true, provided == expected

	default:
		return false, false
	}
}

var monthNumberNames = map[string][]string{
	"01": {"january"}, "02": {"february"}, "03": {"march"},
	"04": {"april"}, "05": {"may"}, "06": {"june"},
	"07": {"july"}, "08": {"august"}, "09": {"september"},
	"10": {"october"}, "11": {"november"}, "12": {"december"},
}

func monthDayMatches(transcript, month, day string) (answered, passed bool) {
	lower := strings.ToLower(transcript)
	names := monthNumberNames[month]
	monthSpoken := false
	for _, name := range names {
		if strings.Contains(lower, name) {
			monthSpoken = true
			break
		}
	}
	if !monthSpoken {
		// Any month name at all counts as an answer of the right shape.
		for _, candidates := range monthNumberNames {
			for _, name := range candidates {
				if strings.Contains(lower, name) {
					return true, false
				}
			}
		}
		return false, false
	}
	wantDay := strings.TrimPrefix(day, "0")
	gotDay := extractDigits(transcript, len(wantDay))
	return true, gotDay == wantDay
}

// nextVerificationMethod picks the first allowed method not yet attempted in
// this pass sequence. The pending method is retried until answered.
func (t *turn) nextVerificationMethod() policy.VerificationMethod {
	allowed := t.pol.Verification.AllowedMethods
	if len(allowed) == 0 {
		return policy.ConfirmZip
	}
	idx := t.st.VerificationPasses
	if idx >= len(allowed) {
		idx = len(allowed) - 1
	}
	return allowed[idx]
}
