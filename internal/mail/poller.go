package mail

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yeye296/Xserver-VPS-Renew/internal/metrics"
)

// Poller obtains the verification code for the most recently triggered
// challenge within a bounded wall-clock budget, tolerating transient mailbox
// failures. A fresh session is dialed on every pass.
type Poller struct {
	dialer    Dialer
	filter    *Filter
	scanLimit int
	metrics   *metrics.Metrics
	log       *logrus.Entry
}

// NewPoller creates a poller. scanLimit bounds how many unread messages are
// examined per pass on large mailboxes; <=0 means unbounded. m may be nil.
func NewPoller(dialer Dialer, filter *Filter, scanLimit int, m *metrics.Metrics) *Poller {
	return &Poller{
		dialer:    dialer,
		filter:    filter,
		scanLimit: scanLimit,
		metrics:   m,
		log:       logrus.WithField("component", "mail"),
	}
}

// FetchCode polls the mailbox until a matching unread message yields a code
// or the budget is exhausted. Budget exhaustion is a normal negative result,
// not an error; the caller classifies it.
//
// Within one pass messages are scanned newest-first, so absent a prior sweep
// the most recent matching message wins. The winning message is marked read
// exactly once, immediately after its code is accepted; all other unread
// messages are left untouched.
func (p *Poller) FetchCode(ctx context.Context, budget, interval time.Duration) (string, bool) {
	deadline := time.Now().Add(budget)

	for time.Now().Before(deadline) {
		code, found := p.poll()
		if found {
			if p.metrics != nil {
				p.metrics.CodeFetches.Inc()
			}
			return code, true
		}

		select {
		case <-ctx.Done():
			p.log.Warn("code fetch cancelled")
			return "", false
		case <-time.After(interval):
		}
	}

	p.log.Error("timed out waiting for verification code")
	if p.metrics != nil {
		p.metrics.CodeFetchMisses.Inc()
	}
	return "", false
}

// poll runs one search-and-scan pass. Any failure is logged and absorbed so
// the enclosing budget loop can retry.
func (p *Poller) poll() (string, bool) {
	session, err := p.dialer.Dial()
	if err != nil {
		p.log.Warnf("Mailbox connection failed, will retry: %v", err)
		return "", false
	}
	defer session.Close()

	uids, err := session.SearchUnseen(p.filter.ServerCriteria())
	if err != nil {
		p.log.Warnf("Mailbox search failed, will retry: %v", err)
		return "", false
	}

	if len(uids) == 0 {
		p.log.Info("no unread verification mail yet, waiting")
		return "", false
	}

	// Newest first, bounded to the most recent scanLimit messages.
	if p.scanLimit > 0 && len(uids) > p.scanLimit {
		uids = uids[len(uids)-p.scanLimit:]
	}

	matched := false
	for i := len(uids) - 1; i >= 0; i-- {
		uid := uids[i]

		msg, err := session.Fetch(uid)
		if err != nil {
			p.log.Warnf("Failed to fetch message %d: %v", uid, err)
			continue
		}

		if !p.filter.Matches(msg) {
			continue
		}
		matched = true

		code, ok := ExtractCode(msg.SearchText())
		if !ok {
			continue
		}

		// Consume only the winner so a concurrent legitimate message is
		// not discarded by this pass.
		if err := session.MarkSeen(uid); err != nil {
			p.log.Warnf("Failed to mark message %d as read: %v", uid, err)
		}
		p.log.Infof("Verification code received from message %d", uid)
		return code, true
	}

	if matched {
		p.log.Info("matching mail seen but no code extracted, waiting")
	} else {
		p.log.Info("unread mail did not match sender/subject filters, waiting")
	}
	return "", false
}

// Sweep marks every currently unread matching message as read without
// inspecting it for a code. Run before triggering a new verification mail it
// guarantees the next FetchCode only observes messages delivered after the
// sweep, which is the sole mechanism preventing a stale code from winning.
func (p *Poller) Sweep() error {
	session, err := p.dialer.Dial()
	if err != nil {
		return err
	}
	defer session.Close()

	uids, err := session.SearchUnseen(p.filter.ServerCriteria())
	if err != nil {
		return err
	}

	swept := 0
	for _, uid := range uids {
		msg, err := session.Fetch(uid)
		if err != nil {
			p.log.Warnf("Sweep: failed to fetch message %d: %v", uid, err)
			continue
		}
		if !p.filter.Matches(msg) {
			continue
		}
		if err := session.MarkSeen(uid); err != nil {
			p.log.Warnf("Sweep: failed to mark message %d as read: %v", uid, err)
			continue
		}
		swept++
	}

	if swept > 0 {
		p.log.Infof("Swept %d stale unread message(s) before requesting a new code", swept)
	}
	return nil
}
