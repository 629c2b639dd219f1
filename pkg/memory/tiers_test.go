package memory

import (
	"fmt"
	"reflect"
	"testing"
)

func TestTiersAppend_OverflowMovesOldestToMidTerm(t *testing.T) {
	var tiers Tiers
	for i := 1; i <= 13; i++ {
		tiers.Append(fmt.Sprintf("event %d", i), "2024-1-1", 10)
	}
	if len(tiers.ShortTerm) != 10 {
		t.Fatalf("short-term len = %d, want 10", len(tiers.ShortTerm))
	}
	wantMid := []string{"[2024-1-1] event 1", "[2024-1-1] event 2", "[2024-1-1] event 3"}
	if !reflect.DeepEqual(tiers.MidTerm, wantMid) {
		t.Fatalf("mid-term = %v, want %v", tiers.MidTerm, wantMid)
	}
	if tiers.ShortTerm[0] != "[2024-1-1] event 4" {
		t.Fatalf("oldest short-term = %q", tiers.ShortTerm[0])
	}
}

func TestTiersAppend_KeepsExistingPrefix(t *testing.T) {
	var tiers Tiers
	tiers.Append("[2024-3-1] shipped", "2024-5-5", 0)
	tiers.Append("hired a designer", "", 0)
	want := []string{"[2024-3-1] shipped", "[unknown time] hired a designer"}
	if !reflect.DeepEqual(tiers.ShortTerm, want) {
		t.Fatalf("short-term = %v, want %v", tiers.ShortTerm, want)
	}
}

func TestTiersPromote_ConsumesFromFront(t *testing.T) {
	tiers := Tiers{MidTerm: []string{"a", "b", "c", "d"}, LongTerm: []string{"old"}}
	tiers.Promote(2, []string{"summary"})
	if !reflect.DeepEqual(tiers.MidTerm, []string{"c", "d"}) {
		t.Fatalf("mid-term = %v", tiers.MidTerm)
	}
	if !reflect.DeepEqual(tiers.LongTerm, []string{"old", "summary"}) {
		t.Fatalf("long-term = %v", tiers.LongTerm)
	}

	tiers.Promote(10, nil)
	if len(tiers.MidTerm) != 0 {
		t.Fatalf("expected mid-term drained, got %v", tiers.MidTerm)
	}
}

func TestTiersCloneIsIndependent(t *testing.T) {
	orig := Tiers{ShortTerm: []string{"a"}}
	clone := orig.Clone()
	clone.ShortTerm[0] = "b"
	clone.Append("c", "x", 0)
	if orig.ShortTerm[0] != "a" || len(orig.ShortTerm) != 1 {
		t.Fatalf("original changed: %v", orig.ShortTerm)
	}
	if (Tiers{}).Empty() != true || orig.Empty() {
		t.Fatalf("Empty() mismatch")
	}
}
