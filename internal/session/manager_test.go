package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dcsm/internal/state"
)

func baseline(t *testing.T, raw string) state.Snapshot {
	t.Helper()
	s, err := state.NewSnapshot([]byte(raw))
	require.NoError(t, err)
	return s
}

func TestManager_CreateGetDelete(t *testing.T) {
	m := NewManager(nil)

	s := m.Create("TYRANO.kag.variable.sf", baseline(t, `{"gold":1}`))
	require.NotEmpty(t, s.ID)
	assert.False(t, s.StartedAt.IsZero())

	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, "TYRANO.kag.variable.sf", got.Object)
	assert.Equal(t, float64(1), got.Baseline.Data["gold"])

	m.Delete(s.ID)
	_, ok = m.Get(s.ID)
	assert.False(t, ok)
}

func TestManager_UniqueIDs(t *testing.T) {
	m := NewManager(nil)
	a := m.Create("o", baseline(t, `{}`))
	b := m.Create("o", baseline(t, `{}`))
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, m.List(), 2)
}

func TestManager_RefreshBaseline(t *testing.T) {
	m := NewManager(nil)
	s := m.Create("o", baseline(t, `{"gold":1}`))

	m.RefreshBaseline(s.ID, baseline(t, `{"gold":2}`))
	got, _ := m.Get(s.ID)
	assert.Equal(t, float64(2), got.Baseline.Data["gold"])

	// 空快照不覆盖现有基线
	m.RefreshBaseline(s.ID, state.Snapshot{})
	got, _ = m.Get(s.ID)
	assert.Equal(t, float64(2), got.Baseline.Data["gold"])

	// 未知会话静默忽略
	m.RefreshBaseline("missing", baseline(t, `{}`))
}
