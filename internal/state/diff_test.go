package state

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(t *testing.T, raw string) Snapshot {
	t.Helper()
	s, err := NewSnapshot([]byte(raw))
	require.NoError(t, err)
	return s
}

func TestCompare_Identical(t *testing.T) {
	a := snap(t, `{"x":1,"y":{"z":[1,2]}}`)
	b := snap(t, `{"y":{"z":[1,2]},"x":1}`) // 键序不同不算漂移

	changed, changes := Compare(a, b)
	assert.False(t, changed)
	assert.Empty(t, changes)
}

func TestCompare_ScalarChange(t *testing.T) {
	a := snap(t, `{"x":1}`)
	b := snap(t, `{"x":2}`)

	changed, changes := Compare(a, b)
	require.True(t, changed)
	require.Len(t, changes, 1)
	assert.Equal(t, "x", changes[0].Key)
	assert.Equal(t, "1 -> 2", changes[0].Detail)
}

func TestCompare_StringChangeRendersBare(t *testing.T) {
	a := snap(t, `{"name":"a"}`)
	b := snap(t, `{"name":"b"}`)

	changed, changes := Compare(a, b)
	require.True(t, changed)
	require.Len(t, changes, 1)
	assert.Equal(t, "a -> b", changes[0].Detail)
}

func TestCompare_ArrayLengthChange(t *testing.T) {
	a := snap(t, `{"record":[1,2,3]}`)
	b := snap(t, `{"record":[1,2,3,4,5]}`)

	changed, changes := Compare(a, b)
	require.True(t, changed)
	require.Len(t, changes, 1)
	assert.Equal(t, "Array changed (length: 3 -> 5)", changes[0].Detail)
}

func TestCompare_ObjectChange(t *testing.T) {
	a := snap(t, `{"flags":{"cleared":false}}`)
	b := snap(t, `{"flags":{"cleared":true}}`)

	changed, changes := Compare(a, b)
	require.True(t, changed)
	require.Len(t, changes, 1)
	assert.Equal(t, "flags", changes[0].Key)
	assert.Equal(t, "Object changed", changes[0].Detail)
}

func TestCompare_AddedAndRemovedKeys(t *testing.T) {
	a := snap(t, `{"gone":1,"kept":2}`)
	b := snap(t, `{"kept":2,"added":"hi"}`)

	changed, changes := Compare(a, b)
	require.True(t, changed)
	require.Len(t, changes, 2)
	// 按键名排序
	assert.Equal(t, "added", changes[0].Key)
	assert.Equal(t, "null -> hi", changes[0].Detail)
	assert.Equal(t, "gone", changes[1].Key)
	assert.Equal(t, "1 -> null", changes[1].Detail)
}

func TestCompare_ChangeString(t *testing.T) {
	a := snap(t, `{"x":1}`)
	b := snap(t, `{"x":2}`)

	_, changes := Compare(a, b)
	require.Len(t, changes, 1)
	if !strings.HasPrefix(changes[0].String(), "x: ") {
		t.Errorf("unexpected change line: %q", changes[0].String())
	}
}

func TestNewSnapshot_RejectsNonObject(t *testing.T) {
	_, err := NewSnapshot([]byte(`[1,2,3]`))
	assert.Error(t, err)

	_, err = NewSnapshot([]byte(`not json`))
	assert.Error(t, err)
}
