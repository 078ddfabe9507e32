package renew

import "time"

// Status is the terminal outcome of one renewal run.
type Status string

const (
	// StatusUnknown means the submission response matched neither the
	// success nor the failure keyword set. It is deliberately distinct from
	// Failed: the renewal may well have gone through, and over-reporting
	// failure causes needless alerting.
	StatusUnknown Status = "Unknown"
	// StatusSuccess means the panel confirmed the renewal.
	StatusSuccess Status = "Success"
	// StatusFailed covers workflow mismatches and rejected submissions.
	StatusFailed Status = "Failed"
	// StatusUnexpired means the renewal window is not open yet.
	StatusUnexpired Status = "Unexpired"
	// StatusNeedVerify means the new-environment email verification could
	// not be completed automatically.
	StatusNeedVerify Status = "NeedVerify"
)

// DateLayout is the calendar-date format used for expiry fields.
const DateLayout = "2006-01-02"

// RunRecord is the reported outcome of one invocation. It starts as Unknown
// and settles to exactly one terminal status before the run ends; once
// settled it never changes again.
type RunRecord struct {
	Status     Status    `json:"status"`
	OldExpiry  string    `json:"last_expiry,omitempty"`
	NewExpiry  string    `json:"new_expiry,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	ExitIP     string    `json:"browser_exit_ip,omitempty"`
	RunnerIP   string    `json:"runner_ip,omitempty"`
	VPSID      string    `json:"vps_id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	settled bool
}

// NewRunRecord creates a record in the initial Unknown state.
func NewRunRecord() *RunRecord {
	return &RunRecord{
		Status:    StatusUnknown,
		StartedAt: time.Now(),
	}
}

// Settle assigns the terminal status. Only the first call takes effect.
func (r *RunRecord) Settle(status Status, detail string) {
	if r.settled {
		return
	}
	r.settled = true
	r.Status = status
	r.Detail = detail
	r.FinishedAt = time.Now()
}

// Settled reports whether a terminal status has been assigned.
func (r *RunRecord) Settled() bool {
	return r.settled
}
