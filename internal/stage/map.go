package stage

import (
	"github.com/evsieve/evsieve/internal/event"
	"github.com/evsieve/evsieve/internal/key"
)

// Map implements spec.md §4.4: "Map predicate [target…] [yield]".
type Map struct {
	Predicate key.Predicate
	Targets   []key.Target
	Yield     bool

	// copySource makes this a Copy stage (spec.md §4.4): the source
	// event is also emitted unchanged, before the generated targets.
	copySource bool
}

func NewMap(pred key.Predicate, targets []key.Target, yield bool) *Map {
	return &Map{Predicate: pred, Targets: targets, Yield: yield}
}

func NewCopy(pred key.Predicate, targets []key.Target, yield bool) *Map {
	return &Map{Predicate: pred, Targets: targets, Yield: yield, copySource: true}
}

func (m *Map) Name() string {
	if m.copySource {
		return "copy"
	}
	return "map"
}

func (m *Map) Process(rt Runtime, e event.Event) []event.Event {
	if !m.Predicate.Matches(e, rt.Tracker()) {
		return []event.Event{e}
	}

	var out []event.Event
	if m.copySource {
		out = append(out, e)
	}
	for _, tgt := range m.Targets {
		produced := tgt.Apply(e, rt.Tracker())
		if m.Yield {
			produced = produced.WithYield()
		}
		out = append(out, produced)
	}
	return out
}
