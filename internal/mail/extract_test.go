package mail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCodePrefersFiveToSixDigits(t *testing.T) {
	code, ok := ExtractCode("ログイン用認証コード: 48213 をご入力ください")
	assert.True(t, ok)
	assert.Equal(t, "48213", code)

	code, ok = ExtractCode("your code is 482133 thanks")
	assert.True(t, ok)
	assert.Equal(t, "482133", code)
}

func TestExtractCodeFallsBackToWiderRange(t *testing.T) {
	// Only a 7-digit run present: the fallback picks it up.
	code, ok := ExtractCode("reference 4821337 end")
	assert.True(t, ok)
	assert.Equal(t, "4821337", code)

	code, ok = ExtractCode("pin 4821")
	assert.True(t, ok)
	assert.Equal(t, "4821", code)
}

func TestExtractCodeFirstMatchWins(t *testing.T) {
	code, ok := ExtractCode("first 55555 then 66666")
	assert.True(t, ok)
	assert.Equal(t, "55555", code)
}

func TestExtractCodeNoCandidate(t *testing.T) {
	for _, text := range []string{"", "no digits here", "123", "order id 123456789012"} {
		code, ok := ExtractCode(text)
		assert.False(t, ok, "text %q", text)
		assert.Empty(t, code)
	}
}

func TestExtractCodeFromMessageSurface(t *testing.T) {
	msg := &Message{
		From:    "サポート <support@xserver.ne.jp>",
		Subject: "ログイン用認証コードのお知らせ",
		Body:    "認証コード: 48213\nこのコードの有効期限は10分です。",
	}
	code, ok := ExtractCode(msg.SearchText())
	assert.True(t, ok)
	assert.Equal(t, "48213", code)
}
