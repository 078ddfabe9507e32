package mail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterASCIITermsGoServerSide(t *testing.T) {
	f := NewFilter("support@xserver.ne.jp", "login code")

	c := f.ServerCriteria()
	assert.Equal(t, "support@xserver.ne.jp", c.Header["From"])
	assert.Equal(t, "login code", c.Header["Subject"])

	// Nothing residual: every message passes the client-side predicate.
	assert.True(t, f.Matches(&Message{From: "anyone@example.com", Subject: "whatever"}))
}

func TestFilterNonASCIITermsStayClientSide(t *testing.T) {
	f := NewFilter("support@xserver.ne.jp", "ログイン用認証コード")

	c := f.ServerCriteria()
	assert.Equal(t, "support@xserver.ne.jp", c.Header["From"])
	_, present := c.Header["Subject"]
	assert.False(t, present, "non-ASCII subject filter must never be sent to the server")

	for _, v := range c.Header {
		assert.True(t, isASCII(v), "server criteria must be ASCII-clean")
	}

	assert.True(t, f.Matches(&Message{Subject: "【重要】ログイン用認証コードのお知らせ"}))
	assert.False(t, f.Matches(&Message{Subject: "別件のお知らせ"}))
}

func TestFilterServerCriteriaNeverContainsNonASCII(t *testing.T) {
	inputs := [][2]string{
		{"サポート", "ログイン用認証コード"},
		{"support@example.com", "認証"},
		{"mixed サポート", "mixed 認証"},
		{"", ""},
	}
	for _, in := range inputs {
		f := NewFilter(in[0], in[1])
		for _, v := range f.ServerCriteria().Header {
			assert.True(t, isASCII(v), "filter %q/%q leaked non-ASCII", in[0], in[1])
		}
	}
}

func TestFilterUnconfiguredMatchesEverything(t *testing.T) {
	f := NewFilter("", "  ")

	assert.Empty(t, f.ServerCriteria().Header)
	assert.True(t, f.Matches(&Message{From: "x@y.z", Subject: "anything"}))
	assert.True(t, f.Matches(&Message{}))
}

func TestFilterResidualMatchIsCaseInsensitive(t *testing.T) {
	// Force the from term client-side by mixing in a non-ASCII rune.
	f := NewFilter("サポート Support", "")
	assert.True(t, f.Matches(&Message{From: "サポート SUPPORT <support@xserver.ne.jp>"}))
	assert.False(t, f.Matches(&Message{From: "noreply@example.com"}))
}
