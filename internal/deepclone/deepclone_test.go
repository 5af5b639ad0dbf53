package deepclone

import (
	"regexp"
	"testing"
	"time"
)

type withUnexported struct {
	Exported string
	hidden   int
}

func TestCloneCopiesUnexportedFields(t *testing.T) {
	src := withUnexported{Exported: "a", hidden: 7}
	got, err := Clone(&src)
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	clone := got.(*withUnexported)
	if clone.Exported != "a" || clone.hidden != 7 {
		t.Fatalf("clone = %+v, want Exported=a hidden=7", *clone)
	}

	clone.hidden = 99
	if src.hidden != 7 {
		t.Errorf("mutating clone.hidden affected source: got %d", src.hidden)
	}
}

func TestCloneRegexpCompilesFresh(t *testing.T) {
	src := regexp.MustCompile(`^a+$`)
	got, err := Clone(src)
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	clone := got.(*regexp.Regexp)
	if clone == src {
		t.Fatal("expected a freshly compiled *regexp.Regexp, got the same pointer")
	}
	if clone.String() != src.String() {
		t.Errorf("clone pattern = %q, want %q", clone.String(), src.String())
	}
}

func TestCloneTimeIsCopiedByValue(t *testing.T) {
	src := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := Clone(src)
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	if !got.(time.Time).Equal(src) {
		t.Errorf("clone = %v, want %v", got, src)
	}
}

func TestCloneRejectsFunc(t *testing.T) {
	_, err := Clone(func() {})
	if err == nil {
		t.Fatal("expected an error cloning a func value")
	}
	if _, ok := err.(*ErrNotCloneable); !ok {
		t.Errorf("expected *ErrNotCloneable, got %T", err)
	}
}

func TestCloneSliceAndMapAreIndependent(t *testing.T) {
	src := map[string]any{
		"list": []int{1, 2, 3},
	}
	got, err := Clone(src)
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	clone := got.(map[string]any)
	clone["list"].([]int)[0] = 99
	if src["list"].([]int)[0] != 1 {
		t.Errorf("mutating clone slice affected source: got %+v", src["list"])
	}
}
