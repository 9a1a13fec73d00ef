// Package compliance implements the pre-dial gate. Every outbound attempt
// passes through Evaluate before a call is placed; the gate never runs
// mid-call. Suppression blocks are permanent, policy blocks carry a retry
// hint for the dial worker's backoff.
package compliance

import (
	"context"
	"time"

	"github.com/northstarrec/outdial/pkg/policy"
)

// Reason codes returned by the gate.
const (
	ReasonAllowed                = "allowed"
	ReasonBlockedDNC             = "blocked_suppression_dnc"
	ReasonBlockedCeaseContact    = "blocked_suppression_cease_contact"
	ReasonBlockedLegalHold       = "blocked_suppression_legal_hold"
	ReasonBlockedOutsideWindow   = "blocked_policy_outside_call_window"
	ReasonBlockedDailyAttemptCap = "blocked_policy_daily_attempt_cap"
	ReasonBlockedMinGap          = "blocked_policy_min_gap"
)

// Suppression holds the account-level do-not-dial controls. Any true flag is
// a non-retryable block.
type Suppression struct {
	DNC          bool `json:"dnc"`
	CeaseContact bool `json:"cease_contact"`
	LegalHold    bool `json:"legal_hold"`
}

// DialRules are the per-account dialing constraints evaluated alongside the
// policy call windows.
type DialRules struct {
	Timezone        string
	DailyAttemptCap int
	MinGapMinutes   int
}

// Decision is the gate's verdict for one prospective dial.
type Decision struct {
	Allowed       bool          `json:"allowed"`
	ReasonCode    string        `json:"reason_code"`
	Retryable     bool          `json:"retryable"`
	AttemptsToday int           `json:"attempts_today"`
	RetryAfter    time.Duration `json:"-"`
}

// AttemptCounter reports prior contact attempts for an account. The gate only
// reads; recording happens after the dial outcome is known.
type AttemptCounter interface {
	// CountForLocalDay counts attempts for the account on the given local
	// calendar day.
	CountForLocalDay(ctx context.Context, accountRef, localDay string) (int, error)
	// LastAttemptAt returns the time of the most recent counted attempt, or
	// a zero time when none exists.
	LastAttemptAt(ctx context.Context, accountRef string) (time.Time, error)
}

// Gate evaluates pre-dial compliance against one policy document.
type Gate struct {
	pol      *policy.Policy
	attempts AttemptCounter
}

// NewGate builds a gate over the given policy and attempt history.
func NewGate(pol *policy.Policy, attempts AttemptCounter) *Gate {
	return &Gate{pol: pol, attempts: attempts}
}

// Evaluate decides whether the account may be dialed right now.
func (g *Gate) Evaluate(ctx context.Context, accountRef string, sup Suppression, rules DialRules, now time.Time) (Decision, error) {
	// Non-retryable suppression controls come first; no policy rule can
	// override them.
	switch {
	case sup.DNC:
		return Decision{ReasonCode: ReasonBlockedDNC}, nil
	case sup.CeaseContact:
		return Decision{ReasonCode: ReasonBlockedCeaseContact}, nil
	case sup.LegalHold:
		return Decision{ReasonCode: ReasonBlockedLegalHold}, nil
	}

	local := localTime(now, rules.Timezone)
	if !g.windowAllows(local) {
		return Decision{
			ReasonCode: ReasonBlockedOutsideWindow,
			Retryable:  true,
			RetryAfter: 15 * time.Minute,
		}, nil
	}

	attemptsToday, err := g.attempts.CountForLocalDay(ctx, accountRef, local.Format("2006-01-02"))
	if err != nil {
		return Decision{}, err
	}
	if rules.DailyAttemptCap > 0 && attemptsToday >= rules.DailyAttemptCap {
		retryAfter := time.Until(nextLocalMidnight(local))
		if retryAfter < time.Minute {
			retryAfter = time.Minute
		}
		return Decision{
			ReasonCode:    ReasonBlockedDailyAttemptCap,
			Retryable:     true,
			AttemptsToday: attemptsToday,
			RetryAfter:    retryAfter,
		}, nil
	}

	if rules.MinGapMinutes > 0 {
		last, err := g.attempts.LastAttemptAt(ctx, accountRef)
		if err != nil {
			return Decision{}, err
		}
		if !last.IsZero() {
			elapsed := now.Sub(last)
			minGap := time.Duration(rules.MinGapMinutes) * time.Minute
			if elapsed < minGap {
				remaining := minGap - elapsed
				if remaining < time.Minute {
					remaining = time.Minute
				}
				return Decision{
					ReasonCode:    ReasonBlockedMinGap,
					Retryable:     true,
					AttemptsToday: attemptsToday,
					RetryAfter:    remaining,
				}, nil
			}
		}
	}

	return Decision{
		Allowed:       true,
		ReasonCode:    ReasonAllowed,
		Retryable:     true,
		AttemptsToday: attemptsToday,
	}, nil
}

// windowAllows checks the local clock time against the policy call windows.
// An empty window list allows all times. Overnight windows wrap midnight.
func (g *Gate) windowAllows(local time.Time) bool {
	windows := g.pol.CallWindows
	if len(windows) == 0 {
		return true
	}
	current := local.Hour()*60 + local.Minute()
	for _, w := range windows {
		start, end, err := policy.ParseWindow(w)
		if err != nil {
			continue
		}
		if start <= end {
			if current >= start && current <= end {
				return true
			}
		} else if current >= start || current <= end {
			return true
		}
	}
	return false
}

func localTime(now time.Time, tz string) time.Time {
	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		return now.UTC()
	}
	return now.In(loc)
}

func nextLocalMidnight(local time.Time) time.Time {
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, local.Location()).AddDate(0, 0, 1)
}
