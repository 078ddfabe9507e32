package renew

import "time"

// EligibilityGate decides whether the renewal window is open: the panel
// accepts renewals from one day before expiry. The check is advisory; the
// remote page remains authoritative.
type EligibilityGate struct {
	loc *time.Location
	now func() time.Time
}

// NewEligibilityGate creates a gate evaluating "today" in the panel's
// timezone.
func NewEligibilityGate(loc *time.Location) *EligibilityGate {
	return &EligibilityGate{loc: loc, now: time.Now}
}

// WindowStart returns the first calendar day on which renewal is accepted.
func (g *EligibilityGate) WindowStart(expiry time.Time) time.Time {
	return expiry.AddDate(0, 0, -1)
}

// IsEligible reports whether today (panel-local calendar day) is on or after
// the window start.
func (g *EligibilityGate) IsEligible(expiry time.Time) bool {
	now := g.now().In(g.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := g.WindowStart(expiry)
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	return !today.Before(start)
}
