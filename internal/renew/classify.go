package renew

import (
	"regexp"
	"strings"
	"time"
)

// Outcome classifies the page shown after submitting the renewal form.
type Outcome int

const (
	// OutcomeAmbiguous means neither keyword set matched.
	OutcomeAmbiguous Outcome = iota
	// OutcomeSuccess means a success keyword was present.
	OutcomeSuccess
	// OutcomeFailure means a failure keyword was present.
	OutcomeFailure
)

// The keyword tables below are the single source of truth for interpreting
// the panel's free-form page text. The sets are disjoint but not exhaustive;
// a page matching neither yields OutcomeAmbiguous.
var (
	challengeMarkers = []string{
		"新しい環境からのログイン",
		"ログイン用認証コード",
		"認証コードを送信",
	}

	windowClosedMarkers = []string{
		"延長期限",
		"期限まで",
	}

	failureMarkers = []string{
		"入力された認証コードが正しくありません",
		"認証コードが正しくありません",
		"エラー",
		"間違",
	}

	successMarkers = []string{
		"完了",
		"継続",
		"完成",
		"更新しました",
	}
)

// ContinueMarker is the renewal page's "keep using the free VPS" control.
const ContinueMarker = "引き続き無料VPSの利用を継続する"

// NeedsChallenge reports whether post-login page text indicates the
// new-environment email verification challenge.
func NeedsChallenge(text string) bool {
	for _, m := range challengeMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	// A generic code prompt next to a send control also counts.
	return strings.Contains(text, "認証コード") && strings.Contains(text, "送信")
}

// WindowClosed reports whether the renewal page says the window has not
// opened yet. The remote service is authoritative here; the local
// eligibility check is only a pre-filter.
func WindowClosed(text string) bool {
	for _, m := range windowClosedMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// ClassifySubmission classifies the page returned by the renewal submission.
// Failure markers win over success markers: the error page repeats enough of
// the form that a success word can appear on it.
func ClassifySubmission(text string) Outcome {
	for _, m := range failureMarkers {
		if strings.Contains(text, m) {
			return OutcomeFailure
		}
	}
	for _, m := range successMarkers {
		if strings.Contains(text, m) {
			return OutcomeSuccess
		}
	}
	return OutcomeAmbiguous
}

var expiryPattern = regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日`)

// ParseExpiry extracts the VPS expiry date from the detail page text. Only
// the 利用期限 row counts; the 利用開始 row carries the same date format.
func ParseExpiry(text string) (time.Time, bool) {
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, "利用期限") || strings.Contains(line, "利用開始") {
			continue
		}
		m := expiryPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		t, err := time.Parse("2006-1-2", m[1]+"-"+m[2]+"-"+m[3])
		if err != nil {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}
