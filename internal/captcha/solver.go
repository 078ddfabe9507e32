package captcha

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yeye296/Xserver-VPS-Renew/internal/config"
	"github.com/yeye296/Xserver-VPS-Renew/internal/metrics"
)

var digitRun = regexp.MustCompile(`\d+`)

// Solver recognizes the renewal form's image captcha through an external
// OCR endpoint: the image data-URI is posted as text/plain and the response
// body is expected to contain the digits.
type Solver struct {
	apiURL     string
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
	metrics    *metrics.Metrics
	log        *logrus.Entry
}

// NewSolver creates a solver for the configured endpoint. m may be nil.
func NewSolver(cfg *config.CaptchaConfig, m *metrics.Metrics) *Solver {
	return &Solver{
		apiURL:     cfg.APIURL,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		client:     &http.Client{Timeout: cfg.Timeout},
		metrics:    m,
		log:        logrus.WithField("component", "captcha"),
	}
}

// Solve submits the image and returns a validated code. Each attempt that
// yields no valid code counts against the retry budget; ("", false) after
// the last attempt.
func (s *Solver) Solve(ctx context.Context, imageDataURL string) (string, bool) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		code, err := s.recognize(ctx, imageDataURL)
		if err == nil {
			s.log.Infof("Captcha recognized on attempt %d", attempt)
			if s.metrics != nil {
				s.metrics.CaptchaSolves.Inc()
			}
			return code, true
		}

		s.log.Warnf("Captcha recognition failed (attempt %d/%d): %v", attempt, s.maxRetries, err)
		if s.metrics != nil {
			s.metrics.CaptchaFailures.Inc()
		}
		if attempt == s.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(s.retryDelay):
		}
	}
	return "", false
}

// recognize performs one API round trip and validates the result.
func (s *Solver) recognize(ctx context.Context, imageDataURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, strings.NewReader(imageDataURL))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	run := digitRun.FindString(strings.TrimSpace(string(body)))
	if run == "" {
		return "", fmt.Errorf("no digits in response")
	}
	if len(run) > 6 {
		run = run[:6]
	}
	if !ValidCode(run) {
		return "", fmt.Errorf("invalid code candidate %q", run)
	}
	return run, nil
}

// ValidCode checks a captcha code candidate: 4 to 6 digits and not a single
// repeated digit, which the OCR produces when it misreads the image.
func ValidCode(code string) bool {
	if len(code) < 4 || len(code) > 6 {
		return false
	}
	same := true
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
		if code[i] != code[0] {
			same = false
		}
	}
	return !same
}
