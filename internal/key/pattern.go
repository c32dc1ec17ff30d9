package key

import (
	"strconv"
	"strings"

	"github.com/evsieve/evsieve/internal/domain"
	"github.com/evsieve/evsieve/internal/track"
	"github.com/juju/errors"
)

// valueKind discriminates the shapes a predicate's value component can
// take, per spec.md §3 "Key / Predicate".
type valueKind int

const (
	vAny valueKind = iota
	vExact
	vRange
	vTransition
)

// pattern is a value pattern as used on either side of a transition,
// or as a whole predicate's value component. Transitions cannot nest
// (spec.md §4.1: "Transitions in key patterns are forbidden" applies
// transitively — a transition's own sides are ranges/exacts/wildcards
// only), so TransLHS/TransRHS are never themselves vTransition.
type pattern struct {
	kind valueKind

	exact int32

	// vRange: [min, max], either bound may be "open" (unbounded).
	minOpen, maxOpen bool
	min, max         int32

	transLHS, transRHS *pattern
}

var anyPattern = &pattern{kind: vAny}

// parseValueAtom parses one value-component string (not yet split on
// ".." for transitions) into a non-transition pattern: empty, an
// integer, or a range.
func parseValueAtom(s string) (*pattern, error) {
	if s == "" {
		return &pattern{kind: vAny}, nil
	}
	if idx := strings.IndexByte(s, '~'); idx >= 0 {
		left, right := s[:idx], s[idx+1:]
		p := &pattern{kind: vRange}
		if left == "" {
			p.minOpen = true
		} else {
			v, err := strconv.ParseInt(left, 10, 32)
			if err != nil {
				return nil, errors.Annotatef(err, "invalid range lower bound %q", left)
			}
			p.min = int32(v)
		}
		if right == "" {
			p.maxOpen = true
		} else {
			v, err := strconv.ParseInt(right, 10, 32)
			if err != nil {
				return nil, errors.Annotatef(err, "invalid range upper bound %q", right)
			}
			p.max = int32(v)
		}
		if !p.minOpen && !p.maxOpen && p.min > p.max {
			return nil, errors.Errorf("range %q has min > max", s)
		}
		return p, nil
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return nil, errors.Annotatef(err, "invalid value %q", s)
	}
	return &pattern{kind: vExact, exact: int32(v)}, nil
}

// parseValueComponent parses a full predicate value component,
// including a possible transition "LHS..RHS".
func parseValueComponent(s string) (*pattern, error) {
	if idx := strings.Index(s, ".."); idx >= 0 {
		lhs, err := parseValueAtom(s[:idx])
		if err != nil {
			return nil, errors.Annotate(err, "transition lhs")
		}
		rhs, err := parseValueAtom(s[idx+2:])
		if err != nil {
			return nil, errors.Annotate(err, "transition rhs")
		}
		return &pattern{kind: vTransition, transLHS: lhs, transRHS: rhs}, nil
	}
	return parseValueAtom(s)
}

func (p *pattern) matchesStatic(v int32) bool {
	switch p.kind {
	case vAny:
		return true
	case vExact:
		return v == p.exact
	case vRange:
		if !p.minOpen && v < p.min {
			return false
		}
		if !p.maxOpen && v > p.max {
			return false
		}
		return true
	default:
		return false
	}
}

// matches evaluates this pattern against the current event's value.
// For a transition pattern it consults tracker for the previous value
// of (device, typ, code); dom is not part of that lookup, so events of
// one device and (type, code) share one previous value whatever their
// domain. Per spec.md §4.2's ordering rule, this must be called
// *before* the tracker is updated for this event.
func (p *pattern) matches(v int32, dev uint32, dom domain.ID, typ, code uint16, tracker *track.Tracker) bool {
	switch p.kind {
	case vTransition:
		if !p.transRHS.matchesStatic(v) {
			return false
		}
		prev, ok := tracker.PreviousByDevice(dev, typ, code)
		if !ok {
			return false
		}
		return p.transLHS.matchesStatic(prev)
	default:
		return p.matchesStatic(v)
	}
}

func (p *pattern) isWildcard() bool { return p.kind == vAny }
