// Package rtp implements the RTP decision engine from spec.md §4.4: a
// pure, dependency-free function mapping per-symbol price deltas and the
// current RTP state to a multiplier-slot index, biased toward the
// configured desired payout percentage once enough rounds have been
// played.
package rtp

import "sort"

// Zone is one of the three multiplier-index partitions.
type Zone int

const (
	ZoneRed Zone = iota
	ZoneYellow
	ZoneGreen
)

// zoneSet holds a zone's full index list plus its high/low subsets.
type zoneSet struct {
	all  []int
	low  []int
	high []int
}

// Table is the precomputed zone/subset partition for one multiplier
// array, built once at construction so decide() is O(1) per call.
type Table struct {
	multipliers []float64
	red         []int
	yellow      zoneSet
	green       zoneSet
}

// NewTable partitions multipliers into RED/YELLOW/GREEN per spec.md
// §4.4: RED is every zero-valued index; the remaining (nonzero) indices
// are sorted ascending by multiplier (ties broken by index) and split in
// half, the lower half becoming YELLOW and the upper half GREEN. Each of
// YELLOW and GREEN is then split the same way into low/high subsets.
func NewTable(multipliers []float64) *Table {
	t := &Table{multipliers: append([]float64(nil), multipliers...)}

	var nonzero []int
	for i, m := range multipliers {
		if m == 0 {
			t.red = append(t.red, i)
		} else {
			nonzero = append(nonzero, i)
		}
	}

	sortByMagnitude(nonzero, multipliers)
	yellowIdx, greenIdx := splitHalf(nonzero)

	t.yellow = newZoneSet(yellowIdx, multipliers)
	t.green = newZoneSet(greenIdx, multipliers)

	return t
}

func newZoneSet(indices []int, multipliers []float64) zoneSet {
	sorted := append([]int(nil), indices...)
	sortByMagnitude(sorted, multipliers)
	low, high := splitHalf(sorted)
	return zoneSet{all: indices, low: low, high: high}
}

// sortByMagnitude orders indices ascending by their multiplier value,
// breaking ties by index.
func sortByMagnitude(indices []int, multipliers []float64) {
	sort.Slice(indices, func(i, j int) bool {
		a, b := indices[i], indices[j]
		if multipliers[a] != multipliers[b] {
			return multipliers[a] < multipliers[b]
		}
		return a < b
	})
}

// splitHalf divides an ascending-sorted slice into a low half (floor(n/2)
// elements) and a high half (the remainder).
func splitHalf(sorted []int) (low, high []int) {
	mid := len(sorted) / 2
	return append([]int(nil), sorted[:mid]...), append([]int(nil), sorted[mid:]...)
}

// Red returns the RED zone's indices.
func (t *Table) Red() []int { return t.red }

// indices returns a zone's full index set, or its low/high subset. An empty
// subset falls back to the full zone per spec.md §4.4's tie/degenerate
// rule.
func (t *Table) indices(z Zone, subset string) []int {
	var zs zoneSet
	switch z {
	case ZoneYellow:
		zs = t.yellow
	case ZoneGreen:
		zs = t.green
	default:
		return t.red
	}

	var picked []int
	switch subset {
	case "high":
		picked = zs.high
	case "low":
		picked = zs.low
	default:
		picked = zs.all
	}
	if len(picked) == 0 {
		return zs.all
	}
	return picked
}

// Multiplier returns the configured multiplier value at index.
func (t *Table) Multiplier(index int) float64 {
	return t.multipliers[index]
}
