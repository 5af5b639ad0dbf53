package identity

import "testing"

func TestCompositeKeyIsDeterministic(t *testing.T) {
	a, err := CompositeKey("auth", "login_fail")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := CompositeKey("auth", "login_fail")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Errorf("expected deterministic key, got %q and %q", a, b)
	}
}

func TestCompositeKeyDiffersByInput(t *testing.T) {
	a, _ := CompositeKey("auth", "login_fail")
	b, _ := CompositeKey("auth", "login_ok")
	c, _ := CompositeKey("billing", "login_fail")
	if a == b || a == c || b == c {
		t.Errorf("expected distinct keys for distinct inputs, got %q %q %q", a, b, c)
	}
}

func TestCompositeKeyRejectsEmptyInputs(t *testing.T) {
	cases := [][2]string{
		{"", "id"},
		{"category", ""},
		{"", ""},
	}
	for _, c := range cases {
		if _, err := CompositeKey(c[0], c[1]); err == nil {
			t.Errorf("expected error for category=%q id=%q", c[0], c[1])
		}
	}
}

func TestDetailsHashNilAndEmpty(t *testing.T) {
	if got := DetailsHash(nil); got != "" {
		t.Errorf("nil details: got %q, want empty", got)
	}
	if got := DetailsHash(map[string]any{}); got != "" {
		t.Errorf("empty details: got %q, want empty", got)
	}
}

func TestDetailsHashIsOrderIndependent(t *testing.T) {
	a := DetailsHash(map[string]any{"ip": "1.2.3.4", "user": "bob"})
	b := DetailsHash(map[string]any{"user": "bob", "ip": "1.2.3.4"})
	if a != b {
		t.Errorf("expected key-order-independent hash, got %q vs %q", a, b)
	}
	if a == "" {
		t.Error("expected non-empty hash for non-empty details")
	}
}

func TestDetailsHashDiffersOnValueChange(t *testing.T) {
	a := DetailsHash(map[string]any{"ip": "1.2.3.4"})
	b := DetailsHash(map[string]any{"ip": "5.6.7.8"})
	if a == b {
		t.Error("expected different hashes for different values")
	}
}

func TestDetailsHashHandlesNestedStructures(t *testing.T) {
	a := DetailsHash(map[string]any{
		"outer": map[string]any{"b": 1, "a": 2},
		"list":  []any{1, 2, 3},
	})
	b := DetailsHash(map[string]any{
		"list":  []any{1, 2, 3},
		"outer": map[string]any{"a": 2, "b": 1},
	})
	if a != b {
		t.Errorf("expected nested key-order independence, got %q vs %q", a, b)
	}
}
