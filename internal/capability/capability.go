// Package capability implements the capability model, spec.md §4.13
// and the capability-containment invariant of §3/§8: the declared
// (type, code, value-range) set a virtual Output advertises to the
// kernel must be a conservative superset of what ever actually reaches
// it. Widening only ever grows a Set; it is never narrowed once a
// runtime event would need to fit inside it.
//
// Grounded on original_source/src/capability.rs and
// src/stream/capability_override.rs for the lattice shape (a per-code
// value range, widened by union, never intersected).
package capability

import "math"

// ValueRange is an inclusive [Min, Max] range of values a (type, code)
// pair may carry. A pair with no declared range defaults to
// [math.MinInt32, math.MaxInt32] ("full range", the most conservative
// widening spec.md §4.13 allows).
type ValueRange struct {
	Min, Max int32
}

// Full is the maximally conservative range: any 32-bit value.
var Full = ValueRange{Min: math.MinInt32, Max: math.MaxInt32}

// Union widens r to also cover o.
func (r ValueRange) Union(o ValueRange) ValueRange {
	if o.Min < r.Min {
		r.Min = o.Min
	}
	if o.Max > r.Max {
		r.Max = o.Max
	}
	return r
}

// Single returns the degenerate range containing exactly v.
func Single(v int32) ValueRange { return ValueRange{Min: v, Max: v} }

// Contains reports whether v falls within the range.
func (r ValueRange) Contains(v int32) bool { return v >= r.Min && v <= r.Max }

// Key identifies one (type, code) capability slot.
type Key struct {
	Type uint16
	Code uint16
}

// Set is the capability set advertised by an input or a virtual
// output: the union of (type, code) pairs that can occur, each with
// its widened value range.
type Set struct {
	m map[Key]ValueRange
}

func NewSet() *Set { return &Set{m: make(map[Key]ValueRange)} }

// Clone returns an independent copy, used wherever a stage needs to
// fork capability flow (e.g. Copy, which feeds both the pass-through
// and the generated branch).
func (s *Set) Clone() *Set {
	out := NewSet()
	for k, v := range s.m {
		out.m[k] = v
	}
	return out
}

// Add widens the set to include (key, within range). If key is
// already present, the ranges are unioned, never replaced.
func (s *Set) Add(key Key, r ValueRange) {
	if cur, ok := s.m[key]; ok {
		s.m[key] = cur.Union(r)
	} else {
		s.m[key] = r
	}
}

// Merge widens s with every entry of o (used to union the outputs of
// multiple Map targets, or multiple upstream branches feeding one
// Output).
func (s *Set) Merge(o *Set) {
	for k, v := range o.m {
		s.Add(k, v)
	}
}

// Contains reports whether (key.Type, key.Code, value) is within the
// declared set — the capability-containment check spec.md §3 and §8
// require at each Output.
func (s *Set) Contains(key Key, value int32) bool {
	r, ok := s.m[key]
	return ok && r.Contains(value)
}

// Has reports whether (type, code) is declared at all, independent of
// value range; used for advertising capability bitmaps to the kernel.
func (s *Set) Has(key Key) bool {
	_, ok := s.m[key]
	return ok
}

// Keys returns the declared (type, code) pairs, order unspecified.
func (s *Set) Keys() []Key {
	out := make([]Key, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	return out
}

// Range returns the widened value range declared for key.
func (s *Set) Range(key Key) (ValueRange, bool) {
	r, ok := s.m[key]
	return r, ok
}

// Len reports how many distinct (type, code) pairs are declared.
func (s *Set) Len() int { return len(s.m) }

// Equal reports whether s and o declare exactly the same (type, code)
// keys with exactly the same value ranges, used by the lifecycle
// manager to decide whether a reopened input's capability change
// requires tearing down and recreating a dependent Output (spec.md
// §6/§9).
func (s *Set) Equal(o *Set) bool {
	if len(s.m) != len(o.m) {
		return false
	}
	for k, v := range s.m {
		ov, ok := o.m[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}
