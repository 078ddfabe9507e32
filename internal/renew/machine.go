package renew

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yeye296/Xserver-VPS-Renew/internal/config"
)

// Selectors for the panel's forms. The markup varies between renders, so the
// value selectors cast a wide net and the first match wins.
const (
	selMemberID    = "input[name='memberid']"
	selPassword    = "input[name='user_password']"
	selSubmit      = "input[type='submit'], button[type='submit']"
	selCodeInput   = "input[name*='code'], input[name*='auth'], input[type='tel'], input[type='text']"
	selCaptchaWrap = "[placeholder*='上の画像'], input[type='text']"
	selCaptchaImg  = "img[src^='data:image'], img[src^='data:'], img[alt='画像認証']"
)

const (
	pauseShort  = 2 * time.Second
	pauseMedium = 3 * time.Second
	pauseSubmit = 5 * time.Second
	pauseVerify = 6 * time.Second

	// Diagnostic hints are bounded so notifications stay readable.
	hintLimit = 350
)

// Flow drives one renewal run: login, optional email challenge, expiry read,
// eligibility gate, renewal submission. Every run settles its RunRecord to
// exactly one terminal status; no error escapes unresolved.
type Flow struct {
	cfg    *config.Config
	drv    Driver
	codes  CodeSource
	solver CaptchaSolver
	gate   *EligibilityGate
	log    *logrus.Entry

	sleep func(ctx context.Context, d time.Duration)
}

// NewFlow wires a flow. codes may be nil when no mailbox is configured; a
// login challenge then terminates the run as NeedVerify.
func NewFlow(cfg *config.Config, drv Driver, codes CodeSource, solver CaptchaSolver) (*Flow, error) {
	loc, err := time.LoadLocation(cfg.Panel.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid panel timezone %q: %w", cfg.Panel.Timezone, err)
	}

	return &Flow{
		cfg:    cfg,
		drv:    drv,
		codes:  codes,
		solver: solver,
		gate:   NewEligibilityGate(loc),
		log:    logrus.WithField("component", "renew"),
		sleep: func(ctx context.Context, d time.Duration) {
			select {
			case <-ctx.Done():
			case <-time.After(d):
			}
		},
	}, nil
}

// Run executes one renewal attempt and returns the settled record.
func (f *Flow) Run(ctx context.Context) *RunRecord {
	rec := NewRunRecord()
	rec.VPSID = f.cfg.Panel.VPSID
	rec.RunnerIP = f.cfg.Browser.RunnerIP

	f.observeExitIP(ctx, rec)

	if !f.login(ctx, rec) {
		return rec
	}

	// Expiry is read even on ineligible runs so every record carries a
	// fresh date.
	if expiry, ok := f.readExpiry(ctx); ok {
		rec.OldExpiry = expiry.Format(DateLayout)

		if !f.gate.IsEligible(expiry) {
			f.log.Infof("Renewal window opens %s, nothing to do",
				f.gate.WindowStart(expiry).Format(DateLayout))
			rec.Settle(StatusUnexpired, "")
			return rec
		}
	} else {
		f.log.Warn("could not read expiry date, attempting renewal anyway")
	}

	f.attemptRenewal(ctx, rec)

	if !rec.Settled() {
		rec.Settle(StatusUnknown, "renewal outcome did not match known markers")
	}
	return rec
}

// observeExitIP records the browser egress IP when the driver can report it.
// Observed and logged only; a direct connection never aborts the run.
func (f *Flow) observeExitIP(ctx context.Context, rec *RunRecord) {
	o, ok := f.drv.(ExitIPObserver)
	if !ok {
		return
	}
	ip, ok := o.ExitIP(ctx)
	if !ok {
		f.log.Warn("could not determine browser egress IP")
		return
	}
	rec.ExitIP = ip
	f.log.Infof("Browser egress IP: %s", ip)
	if rec.RunnerIP != "" && rec.RunnerIP == ip {
		f.log.Warnf("Browser egress matches runner IP %s, continuing", ip)
	}
}

// login submits credentials and, when the panel challenges the session,
// completes the email verification. Settles the record on every failure
// path.
func (f *Flow) login(ctx context.Context, rec *RunRecord) bool {
	f.log.Info("Logging in")

	if err := f.drv.Navigate(ctx, f.cfg.Panel.LoginURL); err != nil {
		rec.Settle(StatusFailed, fmt.Sprintf("login page navigation failed: %v", err))
		return false
	}
	f.sleep(ctx, pauseShort)
	f.drv.Screenshot(ctx, "01_login")

	if ok, err := f.drv.Fill(ctx, selMemberID, f.cfg.Panel.Email); err != nil || !ok {
		rec.Settle(StatusFailed, "login form not found")
		return false
	}
	if ok, err := f.drv.Fill(ctx, selPassword, f.cfg.Panel.Password); err != nil || !ok {
		rec.Settle(StatusFailed, "password field not found")
		return false
	}
	f.drv.Screenshot(ctx, "02_before_submit")

	if ok, err := f.drv.Click(ctx, selSubmit); err != nil || !ok {
		rec.Settle(StatusFailed, "login submit control not found")
		return false
	}
	f.sleep(ctx, pauseSubmit)
	f.drv.Screenshot(ctx, "03_after_submit")

	loc, err := f.drv.Location(ctx)
	if err != nil {
		rec.Settle(StatusFailed, fmt.Sprintf("could not read location after login: %v", err))
		return false
	}
	if loggedIn(loc) {
		f.log.Info("Logged in")
		return true
	}

	text, _ := f.drv.VisibleText(ctx)
	if !NeedsChallenge(text) {
		rec.Settle(StatusFailed, "login failed without a verification prompt: "+loc)
		return false
	}

	f.log.Warn("New-environment verification required, fetching code from mailbox")
	return f.passChallenge(ctx, rec)
}

// passChallenge handles the email second factor: sweep stale mail, trigger
// the code email, poll the mailbox, fill and submit the code.
func (f *Flow) passChallenge(ctx context.Context, rec *RunRecord) bool {
	f.drv.Screenshot(ctx, "03b_need_email_verify")

	if f.codes == nil {
		rec.Settle(StatusNeedVerify, "verification challenge shown but no mailbox is configured")
		return false
	}

	// The sweep must complete before the dispatch click: consuming every
	// pre-existing unread message is what guarantees the poller only sees
	// the freshly triggered one. No timestamps are compared.
	if err := f.codes.Sweep(); err != nil {
		f.log.Warnf("Sweep failed, accepting the residual stale-mail race: %v", err)
	}

	if ok, err := f.drv.ClickText(ctx, "送信"); err != nil || !ok {
		rec.Settle(StatusNeedVerify, "could not click the send-code control")
		return false
	}
	f.sleep(ctx, pauseShort)
	f.drv.Screenshot(ctx, "03c_after_send_code")

	code, ok := f.codes.FetchCode(ctx, f.cfg.Mail.CodeTimeout, f.cfg.Mail.PollInterval)
	if !ok {
		rec.Settle(StatusNeedVerify, "no verification code arrived within the mailbox budget")
		return false
	}
	f.log.Info("Verification code received, submitting")

	if ok, err := f.drv.Fill(ctx, selCodeInput, code); err != nil || !ok {
		rec.Settle(StatusNeedVerify, "verification code input not found")
		return false
	}
	f.drv.Screenshot(ctx, "03d_code_filled")

	submitted, err := f.drv.ClickText(ctx, "認証")
	if err == nil && !submitted {
		submitted, err = f.drv.ClickText(ctx, "確認")
	}
	if err == nil && !submitted {
		submitted, _ = f.drv.Click(ctx, selSubmit)
	}
	if !submitted {
		rec.Settle(StatusNeedVerify, "could not submit the verification code")
		return false
	}
	f.sleep(ctx, pauseVerify)
	f.drv.Screenshot(ctx, "03e_after_verify_submit")

	loc, _ := f.drv.Location(ctx)
	if loggedIn(loc) {
		f.log.Info("Email verification passed, logged in")
		return true
	}

	text, _ := f.drv.VisibleText(ctx)
	rec.Settle(StatusNeedVerify,
		"still on the login page after submitting the code: "+hint(text))
	return false
}

// readExpiry loads the detail page and parses the current expiry date.
func (f *Flow) readExpiry(ctx context.Context) (time.Time, bool) {
	if err := f.drv.Navigate(ctx, f.cfg.Panel.DetailURL()); err != nil {
		f.log.Warnf("Detail page navigation failed: %v", err)
		return time.Time{}, false
	}
	f.sleep(ctx, pauseMedium)
	f.drv.Screenshot(ctx, "04_detail")

	text, err := f.drv.VisibleText(ctx)
	if err != nil {
		f.log.Warnf("Could not read detail page: %v", err)
		return time.Time{}, false
	}

	expiry, ok := ParseExpiry(text)
	if !ok {
		return time.Time{}, false
	}
	f.log.Infof("Current expiry: %s", expiry.Format(DateLayout))
	return expiry, true
}

// attemptRenewal opens the renewal page and submits the captcha-gated form.
func (f *Flow) attemptRenewal(ctx context.Context, rec *RunRecord) {
	// Back to the detail page; the update control is optional depending on
	// how close to expiry the server thinks we are.
	if err := f.drv.Navigate(ctx, f.cfg.Panel.DetailURL()); err != nil {
		rec.Settle(StatusFailed, fmt.Sprintf("detail page navigation failed: %v", err))
		return
	}
	f.sleep(ctx, pauseShort)
	if ok, _ := f.drv.ClickText(ctx, "更新する"); ok {
		f.log.Info("Clicked the update control")
	}
	f.sleep(ctx, pauseMedium)

	if !f.openExtend(ctx, rec) {
		return
	}
	f.submitExtend(ctx, rec)
}

// openExtend navigates to the renewal form, first via the continue control,
// then via the direct URL. Window-closed markers settle the run as
// Unexpired regardless of the local eligibility result.
func (f *Flow) openExtend(ctx context.Context, rec *RunRecord) bool {
	f.drv.Screenshot(ctx, "05_before_extend")

	if ok, _ := f.drv.ClickText(ctx, ContinueMarker); ok {
		f.sleep(ctx, pauseSubmit)
		f.drv.Screenshot(ctx, "06_extend_page")
		return true
	}

	if err := f.drv.Navigate(ctx, f.cfg.Panel.ExtendURL()); err != nil {
		rec.Settle(StatusFailed, fmt.Sprintf("renewal page navigation failed: %v", err))
		return false
	}
	f.sleep(ctx, pauseMedium)
	f.drv.Screenshot(ctx, "05_extend_url")

	text, _ := f.drv.VisibleText(ctx)
	if strings.Contains(text, ContinueMarker) {
		if ok, _ := f.drv.ClickText(ctx, ContinueMarker); ok {
			f.sleep(ctx, pauseSubmit)
			f.drv.Screenshot(ctx, "06_extend_page")
			return true
		}
	}

	if WindowClosed(text) {
		f.log.Info("Renewal window not open yet per the panel")
		rec.Settle(StatusUnexpired, "")
		return false
	}

	rec.Settle(StatusFailed, "could not open the renewal page")
	return false
}

// submitExtend solves the image captcha and submits the renewal form, then
// classifies the response.
func (f *Flow) submitExtend(ctx context.Context, rec *RunRecord) {
	f.sleep(ctx, pauseShort)

	if cc, ok := f.drv.(ChallengeCompleter); ok {
		if !cc.CompleteChallenge(ctx, 90*time.Second) {
			f.log.Warn("interactive challenge not confirmed, submitting anyway")
		}
	}

	img, found, err := f.drv.ImageDataURL(ctx, selCaptchaImg)
	if err != nil || !found {
		// The captcha image only renders inside an open renewal window, so
		// its absence means "not yet", not a failure.
		f.log.Info("No captcha image on the renewal page, window closed")
		rec.Settle(StatusUnexpired, "")
		return
	}
	f.drv.Screenshot(ctx, "08_captcha_found")

	code, ok := f.solver.Solve(ctx, img)
	if !ok {
		rec.Settle(StatusFailed, "captcha recognition failed")
		return
	}

	if ok, err := f.drv.Fill(ctx, selCaptchaWrap, code); err != nil || !ok {
		rec.Settle(StatusFailed, "captcha input not found")
		return
	}
	f.sleep(ctx, time.Second)
	f.drv.Screenshot(ctx, "09_captcha_filled")

	if ok, err := f.drv.Click(ctx, selSubmit); err != nil || !ok {
		rec.Settle(StatusFailed, "could not submit the renewal form")
		return
	}
	f.sleep(ctx, pauseSubmit)
	f.drv.Screenshot(ctx, "11_after_submit")

	text, _ := f.drv.VisibleText(ctx)
	switch ClassifySubmission(text) {
	case OutcomeFailure:
		rec.Settle(StatusFailed, "renewal rejected: captcha code or challenge verification failed")
	case OutcomeSuccess:
		f.log.Info("Renewal confirmed")
		if expiry, ok := f.readExpiry(ctx); ok {
			rec.NewExpiry = expiry.Format(DateLayout)
		}
		rec.Settle(StatusSuccess, "")
	default:
		rec.Settle(StatusUnknown, "submission response matched neither success nor failure markers")
	}
}

// loggedIn reports whether the location is past the login flow.
func loggedIn(url string) bool {
	if url == "" {
		return false
	}
	return strings.Contains(url, "xvps/index") || !strings.Contains(strings.ToLower(url), "login")
}

// hint compresses page text into a bounded one-line diagnostic.
func hint(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if len(runes) > hintLimit {
		return string(runes[:hintLimit])
	}
	if collapsed == "" {
		return "(no page text)"
	}
	return collapsed
}
