package key

import (
	"strings"

	"github.com/evsieve/evsieve/internal/domain"
	"github.com/evsieve/evsieve/internal/ecodes"
	"github.com/evsieve/evsieve/internal/event"
	"github.com/evsieve/evsieve/internal/track"
	"github.com/juju/errors"
)

// Predicate is a parsed source key: spec.md §4.1. Empty components
// match any.
type Predicate struct {
	hasType bool
	typ     uint16
	hasCode bool
	code    uint16
	hasDom  bool
	dom     domain.ID
	value   *pattern

	// raw retains the original text for diagnostics and for Hook's
	// "identity" comparisons (type/code/domain only, ignoring value).
	raw string
}

// ParsePredicate parses textual form "[type[:code[:value]]][@domain]".
func ParsePredicate(text string) (Predicate, error) {
	p := Predicate{raw: text, value: anyPattern}

	left, domPart, hasDomPart := cutDomain(text)

	if hasDomPart {
		p.hasDom = true
		p.dom = domain.Intern(domPart)
	}

	if left == "" {
		return p, nil
	}

	fields := strings.SplitN(left, ":", 3)
	if len(fields) >= 1 && fields[0] != "" {
		t, err := resolveType(fields[0])
		if err != nil {
			return Predicate{}, errors.Annotatef(err, "key %q", text)
		}
		p.hasType = true
		p.typ = t
	}
	if len(fields) >= 2 && fields[1] != "" {
		c, err := resolveCode(p.typ, p.hasType, fields[1])
		if err != nil {
			return Predicate{}, errors.Annotatef(err, "key %q", text)
		}
		p.hasCode = true
		p.code = c
	}
	if len(fields) >= 3 && fields[2] != "" {
		v, err := parseValueComponent(fields[2])
		if err != nil {
			return Predicate{}, errors.Annotatef(err, "key %q", text)
		}
		p.value = v
	}
	return p, nil
}

// cutDomain splits "left@domain" into ("left", "domain", true), or
// returns (text, "", false) if there is no '@'.
func cutDomain(text string) (left, dom string, ok bool) {
	idx := strings.IndexByte(text, '@')
	if idx < 0 {
		return text, "", false
	}
	return text[:idx], text[idx+1:], true
}

const numericMarker = '#'

func resolveType(s string) (uint16, error) {
	if len(s) > 0 && s[0] == numericMarker {
		return parseNumeric(s[1:], "type")
	}
	t, ok := ecodes.ResolveTypeName(strings.ToLower(s))
	if !ok {
		return 0, errors.Errorf("unknown type name %q", s)
	}
	return t, nil
}

func resolveCode(typ uint16, hasType bool, s string) (uint16, error) {
	if len(s) > 0 && s[0] == numericMarker {
		return parseNumeric(s[1:], "code")
	}
	if !hasType {
		return 0, errors.Errorf("code name %q requires an explicit type", s)
	}
	c, ok := ecodes.ResolveCodeName(typ, strings.ToLower(s))
	if !ok {
		return 0, errors.Errorf("unknown code name %q", s)
	}
	return c, nil
}

func parseNumeric(s, what string) (uint16, error) {
	v, err := parseUint16(s)
	if err != nil {
		return 0, errors.Annotatef(err, "invalid numeric %s %q", what, s)
	}
	return v, nil
}

// Matches implements spec.md §4.1's matching rules.
func (p Predicate) Matches(e event.Event, tracker *track.Tracker) bool {
	if p.hasType && e.Type != p.typ {
		return false
	}
	if p.hasCode && e.Code != p.code {
		return false
	}
	if p.hasDom && e.Domain != p.dom {
		return false
	}
	return p.value.matches(e.Value, uint32(e.Device), e.Domain, e.Type, e.Code, tracker)
}

// MatchesIdentity reports whether e matches this predicate's
// type/code/domain components only, ignoring the value pattern. Used
// by Hook to decide which slot (if any) an incoming event updates,
// per spec.md §4.9.
func (p Predicate) MatchesIdentity(e event.Event) bool {
	if p.hasType && e.Type != p.typ {
		return false
	}
	if p.hasCode && e.Code != p.code {
		return false
	}
	if p.hasDom && e.Domain != p.dom {
		return false
	}
	return true
}

// IsTransition reports whether the value component is a transition;
// Hook key patterns forbid these (spec.md §4.9).
func (p Predicate) IsTransition() bool { return p.value.kind == vTransition }

// IsValueWildcard reports whether no value component was given at
// all (as opposed to an explicit "~" spelling an open range).
func (p Predicate) IsValueWildcard() bool { return p.value.kind == vAny }

// WithDefaultValue returns a copy of p whose value pattern is
// defaultText, parsed, if and only if p had no explicit value
// component. Used by Hook to apply its "1~" default slot pattern
// (spec.md §4.9).
func (p Predicate) WithDefaultValue(defaultText string) (Predicate, error) {
	if !p.IsValueWildcard() {
		return p, nil
	}
	v, err := parseValueComponent(defaultText)
	if err != nil {
		return Predicate{}, err
	}
	p.value = v
	return p, nil
}

// MatchesTypeCode reports whether p's type/code components (ignoring
// domain and value) admit (typ, code); used by capability propagation
// (spec.md §4.13), which operates purely on the kernel-level
// (type, code) identity and has no notion of domain.
func (p Predicate) MatchesTypeCode(typ, code uint16) bool {
	if p.hasType && typ != p.typ {
		return false
	}
	if p.hasCode && code != p.code {
		return false
	}
	return true
}

func (p Predicate) String() string { return p.raw }

// AnyKeyDown is the implicit default predicate for Merge (spec.md
// §4.6): "any EV_KEY event".
var AnyKeyDown = Predicate{hasType: true, typ: ecodes.EV_KEY, value: anyPattern}
