package stage

import (
	"github.com/evsieve/evsieve/internal/domain"
	"github.com/evsieve/evsieve/internal/ecodes"
	"github.com/evsieve/evsieve/internal/event"
	"github.com/evsieve/evsieve/internal/key"
)

// Merge implements spec.md §4.6: "Merge [predicate…]" (default: any
// EV_KEY event). Maintains an unsigned counter per (code, domain) and
// passes at most one logical "held" transition through per key,
// aggregated across sources.
type Merge struct {
	Predicates []key.Predicate
	counters   map[mergeKey]uint32
}

type mergeKey struct {
	dom  domain.ID
	code uint16
}

func NewMerge(preds []key.Predicate) *Merge {
	if len(preds) == 0 {
		preds = []key.Predicate{key.AnyKeyDown}
	}
	return &Merge{Predicates: preds, counters: make(map[mergeKey]uint32)}
}

func (m *Merge) Name() string { return "merge" }

func (m *Merge) matches(e event.Event, tracker Runtime) bool {
	for _, p := range m.Predicates {
		if p.Matches(e, tracker.Tracker()) {
			return true
		}
	}
	return false
}

func (m *Merge) Process(rt Runtime, e event.Event) []event.Event {
	if !m.matches(e, rt) {
		return []event.Event{e}
	}

	switch e.Value {
	case ecodes.KeyDown:
		k := mergeKey{dom: e.Domain, code: e.Code}
		n := m.counters[k]
		m.counters[k] = n + 1
		if n == 0 {
			return []event.Event{e}
		}
		return nil
	case ecodes.KeyUp:
		k := mergeKey{dom: e.Domain, code: e.Code}
		n := m.counters[k]
		if n > 0 {
			n--
		}
		m.counters[k] = n
		if n == 0 {
			return []event.Event{e}
		}
		return nil
	default:
		return []event.Event{e}
	}
}
