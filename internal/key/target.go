package key

import (
	"math"
	"strconv"
	"strings"

	"github.com/evsieve/evsieve/internal/capability"
	"github.com/evsieve/evsieve/internal/domain"
	"github.com/evsieve/evsieve/internal/event"
	"github.com/evsieve/evsieve/internal/track"
	"github.com/juju/errors"
)

// Target is a parsed output key: spec.md §4.1 "Target". Unspecified
// components default to "same as matched source event"; value may be
// a constant or an affine expression over x (current source value)
// and d (source value minus previous source value of the same
// (device, type, code); the domain is not part of that lookup).
type Target struct {
	hasType bool
	typ     uint16
	hasCode bool
	code    uint16
	hasDom  bool
	dom     domain.ID

	isExpr      bool
	constant    int32
	coefX       float64
	coefD       float64
	constTerm   float64

	raw string
}

// ParseTarget parses textual form "[type[:code[:value]]][@domain]"
// under Target semantics: ranges and transitions are rejected.
func ParseTarget(text string) (Target, error) {
	t := Target{raw: text}

	left, domPart, hasDomPart := cutDomain(text)
	if hasDomPart {
		t.hasDom = true
		t.dom = domain.Intern(domPart)
	}

	if left == "" {
		return t, nil
	}

	fields := strings.SplitN(left, ":", 3)
	if len(fields) >= 1 && fields[0] != "" {
		typ, err := resolveType(fields[0])
		if err != nil {
			return Target{}, errors.Annotatef(err, "target %q", text)
		}
		t.hasType = true
		t.typ = typ
	}
	if len(fields) >= 2 && fields[1] != "" {
		c, err := resolveCode(t.typ, t.hasType, fields[1])
		if err != nil {
			return Target{}, errors.Annotatef(err, "target %q", text)
		}
		t.hasCode = true
		t.code = c
	}
	if len(fields) >= 3 && fields[2] != "" {
		if err := parseTargetValue(fields[2], &t); err != nil {
			return Target{}, errors.Annotatef(err, "target %q", text)
		}
	}
	return t, nil
}

// parseTargetValue parses a*x + b*d + c, any subset of terms, e.g.
// "0.5x", "-x", "255-x", "d", "0.2d", a bare integer constant, or
// "0.3x+10" — or rejects the value outright if it looks like a range
// or transition, which are illegal in targets (spec.md §4.1).
func parseTargetValue(s string, t *Target) error {
	if strings.ContainsAny(s, "~") || strings.Contains(s, "..") {
		return errors.Errorf("ranges and transitions are not allowed in targets: %q", s)
	}
	if !strings.ContainsAny(s, "xd") {
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return errors.Annotatef(err, "invalid target value %q", s)
		}
		t.constant = int32(v)
		t.isExpr = false
		return nil
	}

	t.isExpr = true
	for _, term := range splitTerms(s) {
		if err := applyTerm(term, t); err != nil {
			return errors.Annotatef(err, "invalid term %q in %q", term, s)
		}
	}
	return nil
}

// splitTerms splits "a*x+b*d+c" style expressions into signed terms,
// e.g. "255-x" -> ["+255", "-x"].
func splitTerms(s string) []string {
	var terms []string
	start := 0
	for i := 1; i < len(s); i++ {
		if s[i] == '+' || s[i] == '-' {
			terms = append(terms, s[start:i])
			start = i
		}
	}
	terms = append(terms, s[start:])
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		if term != "" && term[0] != '+' && term[0] != '-' {
			term = "+" + term
		}
		out = append(out, term)
	}
	return out
}

func applyTerm(term string, t *Target) error {
	sign := 1.0
	if term[0] == '+' {
		term = term[1:]
	} else if term[0] == '-' {
		sign = -1.0
		term = term[1:]
	}
	term = strings.TrimPrefix(term, "*")

	switch {
	case term == "x":
		t.coefX += sign * 1.0
	case term == "d":
		t.coefD += sign * 1.0
	case strings.HasSuffix(term, "x"):
		coef, err := strconv.ParseFloat(strings.TrimSuffix(term, "x"), 64)
		if err != nil {
			return err
		}
		t.coefX += sign * coef
	case strings.HasSuffix(term, "d"):
		coef, err := strconv.ParseFloat(strings.TrimSuffix(term, "d"), 64)
		if err != nil {
			return err
		}
		t.coefD += sign * coef
	default:
		c, err := strconv.ParseFloat(term, 64)
		if err != nil {
			return err
		}
		t.constTerm += sign * c
	}
	return nil
}

// Apply produces the output event for source event src, per spec.md
// §4.1's Target rules. device and tracker are used only to look up d
// for expression evaluation; tracker must not yet have been updated
// with src's value (d needs the value *before* this event).
func (t Target) Apply(src event.Event, tracker *track.Tracker) event.Event {
	out := src

	if t.hasType {
		out.Type = t.typ
	}
	if t.hasCode {
		out.Code = t.code
	}
	if t.hasDom {
		out.Domain = t.dom
	}

	if !t.isExpr {
		// ParseTarget leaves constant==0 and isExpr==false when no
		// value component was given at all, which must mean "copy
		// source value" rather than "force value to zero".
		if valueComponentPresent(t.raw) {
			out.Value = t.constant
		}
		return out
	}

	x := float64(src.Value)
	d := 0.0
	if prev, ok := tracker.PreviousByDevice(uint32(src.Device), src.Type, src.Code); ok {
		d = x - float64(prev)
	}
	raw := t.coefX*x + t.coefD*d + t.constTerm
	out.Value = clampRound(raw)
	return out
}

// valueComponentPresent reports whether the parsed target's raw text
// included a third (value) field at all.
func valueComponentPresent(raw string) bool {
	left, _, _ := cutDomain(raw)
	fields := strings.SplitN(left, ":", 3)
	return len(fields) >= 3 && fields[2] != ""
}

// clampRound rounds half-away-from-zero and clamps to int32, per
// spec.md §4.1.
func clampRound(v float64) int32 {
	var rounded float64
	if v >= 0 {
		rounded = math.Floor(v + 0.5)
	} else {
		rounded = math.Ceil(v - 0.5)
	}
	if rounded > math.MaxInt32 {
		return math.MaxInt32
	}
	if rounded < math.MinInt32 {
		return math.MinInt32
	}
	return int32(rounded)
}

// PropagateRange computes the widened output range a target can
// produce given that its source value ranges over in, for capability
// propagation (spec.md §4.13). The `d` term is unresolvable from a
// static range alone, so any non-zero d coefficient widens to the
// full range — the conservative "false positives acceptable" choice
// the spec calls for.
func (t Target) PropagateRange(in capability.ValueRange) capability.ValueRange {
	if !t.isExpr {
		if valueComponentPresent(t.raw) {
			return capability.Single(t.constant)
		}
		return in
	}
	if t.coefD != 0 {
		return capability.Full
	}
	lo := clampRound(t.coefX*float64(in.Min) + t.constTerm)
	hi := clampRound(t.coefX*float64(in.Max) + t.constTerm)
	if lo > hi {
		lo, hi = hi, lo
	}
	return capability.ValueRange{Min: lo, Max: hi}
}

func (t Target) String() string { return t.raw }

// HasDomain reports whether the target explicitly sets a domain.
func (t Target) HasDomain() (domain.ID, bool) { return t.dom, t.hasDom }

// Identity reports the (type, code) this target can statically
// produce when fed a source of (srcType, srcCode), used by capability
// propagation (spec.md §4.13).
func (t Target) Identity(srcType, srcCode uint16) (uint16, uint16) {
	typ, code := srcType, srcCode
	if t.hasType {
		typ = t.typ
	}
	if t.hasCode {
		code = t.code
	}
	return typ, code
}

// IsExpr reports whether this target computes its value from an
// affine expression rather than a constant.
func (t Target) IsExpr() bool { return t.isExpr }

// Constant returns the fixed value this target emits, valid only
// when !IsExpr() and a value component was present in the source text.
func (t Target) Constant() int32 { return t.constant }
