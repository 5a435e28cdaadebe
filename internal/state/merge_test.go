package state

import (
	"encoding/json"
	"reflect"
	"testing"
)

func mustMerge(t *testing.T, current, patch string) map[string]any {
	t.Helper()
	out, err := DeepMerge([]byte(current), []byte(patch))
	if err != nil {
		t.Fatalf("DeepMerge failed: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("merged output is not valid JSON: %v\n%s", err, out)
	}
	return m
}

func TestDeepMerge_DisjointKeys(t *testing.T) {
	m := mustMerge(t, `{"a":1}`, `{"b":2}`)
	if m["a"] != float64(1) || m["b"] != float64(2) {
		t.Errorf("expected union of keys, got %v", m)
	}
}

func TestDeepMerge_NestedObjects(t *testing.T) {
	m := mustMerge(t,
		`{"flags":{"cleared":false,"route":"a"},"gold":100}`,
		`{"flags":{"cleared":true}}`)

	flags := m["flags"].(map[string]any)
	if flags["cleared"] != true {
		t.Errorf("nested key not overwritten: %v", flags)
	}
	if flags["route"] != "a" {
		t.Errorf("sibling key lost during merge: %v", flags)
	}
	if m["gold"] != float64(100) {
		t.Errorf("untouched top-level key lost: %v", m)
	}
}

func TestDeepMerge_ArrayReplacedWholesale(t *testing.T) {
	m := mustMerge(t, `{"record":[1,2,3]}`, `{"record":[9]}`)
	got := m["record"].([]any)
	if len(got) != 1 || got[0] != float64(9) {
		t.Errorf("array should be replaced, not merged: %v", got)
	}
}

func TestDeepMerge_TypeMismatchOverwrites(t *testing.T) {
	m := mustMerge(t, `{"x":{"a":1}}`, `{"x":5}`)
	if m["x"] != float64(5) {
		t.Errorf("patch scalar should overwrite object: %v", m["x"])
	}

	m = mustMerge(t, `{"x":5}`, `{"x":{"a":1}}`)
	if _, ok := m["x"].(map[string]any); !ok {
		t.Errorf("patch object should overwrite scalar: %v", m["x"])
	}
}

func TestDeepMerge_Identity(t *testing.T) {
	current := `{"a":{"b":[1,2]},"c":"text"}`
	m1 := mustMerge(t, current, current)
	m2 := mustMerge(t, current, `{}`)
	var orig map[string]any
	if err := json.Unmarshal([]byte(current), &orig); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(m1, orig) {
		t.Errorf("self-merge changed data: %v", m1)
	}
	if !reflect.DeepEqual(m2, orig) {
		t.Errorf("empty patch changed data: %v", m2)
	}
}

func TestDeepMerge_Idempotent(t *testing.T) {
	current := `{"flags":{"cleared":false},"gold":100}`
	patch := `{"flags":{"cleared":true},"gold":500}`

	once := mustMerge(t, current, patch)
	out1, _ := DeepMerge([]byte(current), []byte(patch))
	twice := mustMerge(t, string(out1), patch)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("merge not idempotent:\nonce:  %v\ntwice: %v", once, twice)
	}
}

func TestDeepMerge_KeysWithPathMetacharacters(t *testing.T) {
	// 存档里出现过带点号的键名
	m := mustMerge(t, `{"a.b":1}`, `{"a.b":2,"c*d":3}`)
	if m["a.b"] != float64(2) {
		t.Errorf("dotted key not overwritten: %v", m)
	}
	if m["c*d"] != float64(3) {
		t.Errorf("starred key not set: %v", m)
	}
	if _, ok := m["a"]; ok {
		t.Errorf("dotted key was split into nested path: %v", m)
	}
}
