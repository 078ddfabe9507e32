package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeye296/Xserver-VPS-Renew/internal/config"
	"github.com/yeye296/Xserver-VPS-Renew/internal/renew"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(&config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "renewal.db")})
	require.NoError(t, err)
	return st
}

func settledRecord(status renew.Status, detail string) *renew.RunRecord {
	rec := renew.NewRunRecord()
	rec.VPSID = "12345"
	rec.OldExpiry = "2025-03-10"
	rec.Settle(status, detail)
	return rec
}

func TestOpenCreatesSchema(t *testing.T) {
	st := testStore(t)
	assert.NoError(t, st.Ping())

	entries, err := st.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecordAndLatest(t *testing.T) {
	st := testStore(t)

	require.NoError(t, st.Record(settledRecord(renew.StatusUnexpired, "")))
	require.NoError(t, st.Record(settledRecord(renew.StatusSuccess, "")))

	latest, err := st.Latest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "Success", latest.Status)
	assert.Equal(t, "12345", latest.VPSID)
	assert.Equal(t, "2025-03-10", latest.OldExpiry)
}

func TestLatestOnEmptyHistory(t *testing.T) {
	st := testStore(t)

	latest, err := st.Latest()
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	st := testStore(t)

	for _, status := range []renew.Status{renew.StatusFailed, renew.StatusUnexpired, renew.StatusSuccess} {
		require.NoError(t, st.Record(settledRecord(status, "")))
	}

	entries, err := st.Recent(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Success", entries[0].Status)
	assert.Equal(t, "Unexpired", entries[1].Status)
}

func TestRecentDefaultsLimit(t *testing.T) {
	st := testStore(t)
	require.NoError(t, st.Record(settledRecord(renew.StatusSuccess, "")))

	entries, err := st.Recent(0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
