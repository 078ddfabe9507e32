package mail

import "regexp"

var (
	// Verification codes are usually 5 or 6 digits; some arrive as 4 or up
	// to 8. Prefer the common case, fall back to the wider range.
	codePreferred = regexp.MustCompile(`\b(\d{5,6})\b`)
	codeFallback  = regexp.MustCompile(`\b(\d{4,8})\b`)
)

// ExtractCode scans text for a numeric verification code and returns the
// first match in document order. Pure and deterministic: the same text always
// yields the same result.
func ExtractCode(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	if m := codePreferred.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	if m := codeFallback.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	return "", false
}
