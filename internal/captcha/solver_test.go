package captcha

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeye296/Xserver-VPS-Renew/internal/config"
)

func solverFor(url string) *Solver {
	return NewSolver(&config.CaptchaConfig{
		APIURL:     url,
		Timeout:    time.Second,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}, nil)
}

func TestSolvePostsDataURIAndReturnsCode(t *testing.T) {
	var gotBody string
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotContentType = r.Header.Get("Content-Type")
		io.WriteString(w, "48213")
	}))
	defer srv.Close()

	code, ok := solverFor(srv.URL).Solve(context.Background(), "data:image/png;base64,AAAA")
	require.True(t, ok)
	assert.Equal(t, "48213", code)
	assert.Equal(t, "data:image/png;base64,AAAA", gotBody)
	assert.Equal(t, "text/plain", gotContentType)
}

func TestSolveExtractsDigitsFromNoisyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "  result: 4821\n")
	}))
	defer srv.Close()

	code, ok := solverFor(srv.URL).Solve(context.Background(), "data:image/png;base64,AAAA")
	require.True(t, ok)
	assert.Equal(t, "4821", code)
}

func TestSolveTruncatesLongDigitRuns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "48213579")
	}))
	defer srv.Close()

	code, ok := solverFor(srv.URL).Solve(context.Background(), "data:image/png;base64,AAAA")
	require.True(t, ok)
	assert.Equal(t, "482135", code)
}

func TestSolveRetriesOnRepeatedDigitMisread(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		// The OCR's classic misread: a single repeated digit.
		io.WriteString(w, "111111")
	}))
	defer srv.Close()

	code, ok := solverFor(srv.URL).Solve(context.Background(), "data:image/png;base64,AAAA")
	assert.False(t, ok)
	assert.Empty(t, code)
	assert.Equal(t, 3, attempts)
}

func TestSolveRecoversWithinRetryBudget(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, "48213")
	}))
	defer srv.Close()

	code, ok := solverFor(srv.URL).Solve(context.Background(), "data:image/png;base64,AAAA")
	require.True(t, ok)
	assert.Equal(t, "48213", code)
	assert.Equal(t, 3, attempts)
}

func TestSolveStopsWhenContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := solverFor(srv.URL).Solve(ctx, "data:image/png;base64,AAAA")
	assert.False(t, ok)
}

func TestValidCode(t *testing.T) {
	valid := []string{"4821", "48213", "482135", "1000"}
	for _, c := range valid {
		assert.True(t, ValidCode(c), "code %q", c)
	}

	invalid := []string{"", "123", "4821357", "1111", "999999", "48a13", "48 21"}
	for _, c := range invalid {
		assert.False(t, ValidCode(c), "code %q", c)
	}
}
