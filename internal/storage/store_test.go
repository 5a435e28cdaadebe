package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", "dcsm_", nil)
	require.NoError(t, err)
	return s
}

func TestStore_RecordAndListInjections(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.RecordInjection("TYRANO.kag.variable.sf", []byte(`{"gold":999}`), "success", ""))
	require.NoError(t, s.RecordInjection("TYRANO.kag.variable.sf", []byte(`{"gold":1}`), "conflict", ""))
	require.NoError(t, s.RecordInjection("TYRANO.kag.stat", []byte(`{"scene":"x"}`), "failed", "remote returned false"))

	records, err := s.RecentInjections(10)
	require.NoError(t, err)
	require.Len(t, records, 3)

	for _, r := range records {
		assert.NotEmpty(t, r.ID)
		assert.False(t, r.CreatedAt.IsZero())
	}
}

func TestStore_RecentInjectionsLimit(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordInjection("o", []byte(`{}`), "success", ""))
	}

	records, err := s.RecentInjections(2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestStore_RecordAndListConsole(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.RecordConsole("typeof TYRANO", `"object"`, ""))
	require.NoError(t, s.RecordConsole("broken(", "", "SyntaxError"))

	records, err := s.RecentConsole(10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	errs := []string{records[0].Error, records[1].Error}
	assert.Contains(t, errs, "SyntaxError")
}
