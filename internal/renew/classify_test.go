package renew

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeedsChallenge(t *testing.T) {
	assert.True(t, NeedsChallenge("新しい環境からのログインを検知しました"))
	assert.True(t, NeedsChallenge("ログイン用認証コードのお知らせ"))
	assert.True(t, NeedsChallenge("認証コードを送信しました"))

	// Generic code prompt next to a send control.
	assert.True(t, NeedsChallenge("認証コードを入力してください 送信"))

	assert.False(t, NeedsChallenge("認証コードを入力してください"))
	assert.False(t, NeedsChallenge("ログインに失敗しました"))
	assert.False(t, NeedsChallenge(""))
}

func TestWindowClosed(t *testing.T) {
	assert.True(t, WindowClosed("延長期限は2025年3月9日からです"))
	assert.True(t, WindowClosed("期限まで残り3日"))
	assert.False(t, WindowClosed("引き続き無料VPSの利用を継続する"))
	assert.False(t, WindowClosed(""))
}

func TestClassifySubmission(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, ClassifySubmission("お手続きが完了しました"))
	assert.Equal(t, OutcomeSuccess, ClassifySubmission("利用を継続します"))
	assert.Equal(t, OutcomeSuccess, ClassifySubmission("更新しました"))

	assert.Equal(t, OutcomeFailure, ClassifySubmission("入力された認証コードが正しくありません"))
	assert.Equal(t, OutcomeFailure, ClassifySubmission("エラーが発生しました"))
	assert.Equal(t, OutcomeFailure, ClassifySubmission("コードが間違っています"))

	assert.Equal(t, OutcomeAmbiguous, ClassifySubmission("メンテナンス中です"))
	assert.Equal(t, OutcomeAmbiguous, ClassifySubmission(""))
}

func TestClassifySubmissionFailureWinsOverSuccess(t *testing.T) {
	// The error page repeats parts of the form, so both sets can match.
	text := "エラー: 完了できませんでした"
	assert.Equal(t, OutcomeFailure, ClassifySubmission(text))
}

func TestParseExpiry(t *testing.T) {
	text := "サーバー情報\n利用開始 2025年2月10日\n利用期限 2025年3月10日\nプラン 無料VPS"
	expiry, ok := ParseExpiry(text)
	assert.True(t, ok)
	assert.Equal(t, "2025-03-10", expiry.Format(DateLayout))
}

func TestParseExpirySingleDigitMonthAndDay(t *testing.T) {
	expiry, ok := ParseExpiry("利用期限 2025年3月5日")
	assert.True(t, ok)
	assert.Equal(t, "2025-03-05", expiry.Format(DateLayout))
}

func TestParseExpiryIgnoresStartRow(t *testing.T) {
	// A line carrying both labels is ambiguous and must be skipped.
	_, ok := ParseExpiry("利用開始 利用期限 2025年3月10日")
	assert.False(t, ok)

	_, ok = ParseExpiry("利用開始 2025年2月10日")
	assert.False(t, ok)
}

func TestParseExpiryNoMatch(t *testing.T) {
	for _, text := range []string{"", "利用期限 未設定", "2025年3月10日"} {
		_, ok := ParseExpiry(text)
		assert.False(t, ok, "text %q", text)
	}
}
