package renew

import (
	"context"
	"time"
)

// Driver is the page-interaction capability the state machine runs against.
// Every operation carries an implicit per-step timeout; "element not found
// within the timeout" is a normal negative result (false, nil), not an error.
type Driver interface {
	// Navigate loads a URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error
	// Click clicks the first element matching the CSS selector.
	Click(ctx context.Context, selector string) (bool, error)
	// ClickText clicks the first link, button or submit control whose
	// visible label contains text.
	ClickText(ctx context.Context, text string) (bool, error)
	// Fill sets the value of the first element matching the CSS selector,
	// firing input/change events so framework-bound forms notice.
	Fill(ctx context.Context, selector, value string) (bool, error)
	// VisibleText returns the rendered text of the current page.
	VisibleText(ctx context.Context) (string, error)
	// Location returns the current page URL.
	Location(ctx context.Context) (string, error)
	// ImageDataURL returns the data URI of the first image matching the
	// selector, if the image exists and is inline.
	ImageDataURL(ctx context.Context, selector string) (string, bool, error)
	// Screenshot captures the page under the given checkpoint name.
	// Best effort; failures are swallowed.
	Screenshot(ctx context.Context, name string)
}

// ExitIPObserver is an optional driver capability: observing the browser's
// network egress IP. Observed and logged only, never enforced.
type ExitIPObserver interface {
	ExitIP(ctx context.Context) (string, bool)
}

// ChallengeCompleter is an optional driver capability for interactive
// anti-automation widgets on the renewal form.
type ChallengeCompleter interface {
	CompleteChallenge(ctx context.Context, maxWait time.Duration) bool
}

// CaptchaSolver recognizes the renewal form's image captcha.
type CaptchaSolver interface {
	Solve(ctx context.Context, imageDataURL string) (string, bool)
}

// CodeSource acquires email verification codes for login challenges.
type CodeSource interface {
	// Sweep marks all currently unread matching messages read, so a
	// subsequent FetchCode only sees mail delivered after this point.
	Sweep() error
	// FetchCode polls for a code within the budget. ("", false) on
	// exhaustion.
	FetchCode(ctx context.Context, budget, interval time.Duration) (string, bool)
}
