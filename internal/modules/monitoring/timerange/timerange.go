// Package timerange maps a symbolic range selection onto concrete query bounds.
package timerange

import (
	"fmt"
	"strings"
	"time"
)

type Range string

const (
	Range1h     Range = "1h"
	Range6h     Range = "6h"
	Range24h    Range = "24h"
	Range7d     Range = "7d"
	Range30d    Range = "30d"
	RangeCustom Range = "custom"
)

const DefaultRange = Range24h

// Selection is a range selector plus the custom bounds, which only apply
// when Range is RangeCustom.
type Selection struct {
	Range Range     `json:"range"`
	Start time.Time `json:"start,omitzero"`
	End   time.Time `json:"end,omitzero"`
}

// Bounds is the resolved window. End is exclusive when HalfOpen is set.
type Bounds struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	HalfOpen bool      `json:"half_open"`
}

// Custom builds a custom selection.
func Custom(start, end time.Time) Selection {
	return Selection{Range: RangeCustom, Start: start, End: end}
}

func ParseRange(s string) (Range, error) {
	switch r := Range(strings.ToLower(strings.TrimSpace(s))); r {
	case Range1h, Range6h, Range24h, Range7d, Range30d, RangeCustom:
		return r, nil
	default:
		return "", fmt.Errorf("invalid range %q (allowed: 1h, 6h, 24h, 7d, 30d, custom)", s)
	}
}

// Resolve anchors sel on the calendar day of ref, in ref's location.
// Custom bounds are returned as given, even when End is before Start.
// An unknown selector resolves like 24h.
func Resolve(sel Selection, ref time.Time) Bounds {
	day := StartOfDay(ref)
	switch sel.Range {
	case Range1h:
		return Bounds{Start: day, End: day.Add(time.Hour), HalfOpen: true}
	case Range6h:
		return Bounds{Start: day, End: day.Add(6 * time.Hour), HalfOpen: true}
	case Range7d:
		return Bounds{Start: StartOfDay(ref.AddDate(0, 0, -7)), End: EndOfDay(ref)}
	case Range30d:
		return Bounds{Start: StartOfDay(ref.AddDate(0, 0, -30)), End: EndOfDay(ref)}
	case RangeCustom:
		return Bounds{Start: sel.Start, End: sel.End}
	default:
		return Bounds{Start: day, End: EndOfDay(ref)}
	}
}

func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay is the last representable instant of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// Day returns the closed bounds of t's calendar day.
func Day(t time.Time) Bounds {
	return Bounds{Start: StartOfDay(t), End: EndOfDay(t)}
}

func (b Bounds) Contains(t time.Time) bool {
	if t.Before(b.Start) {
		return false
	}
	if b.HalfOpen {
		return t.Before(b.End)
	}
	return !t.After(b.End)
}

// QueryEnd is the inclusive upper bound to hand to a store that only
// supports closed ranges.
func (b Bounds) QueryEnd() time.Time {
	if b.HalfOpen {
		return b.End.Add(-time.Nanosecond)
	}
	return b.End
}

// Empty reports whether no instant can satisfy the bounds.
func (b Bounds) Empty() bool {
	if b.HalfOpen {
		return !b.End.After(b.Start)
	}
	return b.End.Before(b.Start)
}
