package rtp

import (
	"reflect"
	"sort"
	"testing"
)

var defaultMultipliers = []float64{4, 2, 1.4, 0, 0.5, 0, 1.2, 1.5, 5}

func sorted(xs []int) []int {
	out := append([]int(nil), xs...)
	sort.Ints(out)
	return out
}

func TestNewTable_DefaultZones(t *testing.T) {
	table := NewTable(defaultMultipliers)

	if got := sorted(table.Red()); !reflect.DeepEqual(got, []int{3, 5}) {
		t.Fatalf("red zone = %v, want [3 5]", got)
	}
	if got := sorted(table.indices(ZoneYellow, "")); !reflect.DeepEqual(got, []int{2, 4, 6}) {
		t.Fatalf("yellow zone = %v, want [2 4 6]", got)
	}
	if got := sorted(table.indices(ZoneGreen, "")); !reflect.DeepEqual(got, []int{0, 1, 7, 8}) {
		t.Fatalf("green zone = %v, want [0 1 7 8]", got)
	}
}

func TestNewTable_DefaultSubsets(t *testing.T) {
	table := NewTable(defaultMultipliers)

	if got := sorted(table.indices(ZoneGreen, "high")); !reflect.DeepEqual(got, []int{0, 8}) {
		t.Fatalf("green high = %v, want [0 8]", got)
	}
	if got := sorted(table.indices(ZoneGreen, "low")); !reflect.DeepEqual(got, []int{1, 7}) {
		t.Fatalf("green low = %v, want [1 7]", got)
	}
	if got := sorted(table.indices(ZoneYellow, "high")); !reflect.DeepEqual(got, []int{2, 6}) {
		t.Fatalf("yellow high = %v, want [2 6]", got)
	}
	if got := sorted(table.indices(ZoneYellow, "low")); !reflect.DeepEqual(got, []int{4}) {
		t.Fatalf("yellow low = %v, want [4]", got)
	}
}

func TestNewTable_EmptySubsetFallsBackToFullZone(t *testing.T) {
	// Two yellow indices of equal magnitude would split 1/1 evenly; force
	// a size-1 zone instead so one subset is empty and must fall back.
	multipliers := []float64{0, 1.2, 4}
	table := NewTable(multipliers)

	// yellow zone is just {1}; the single element lands in the high half,
	// leaving low empty, which must fall back to the full zone.
	if got := sorted(table.indices(ZoneYellow, "low")); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("yellow low fallback = %v, want [1]", got)
	}
}
