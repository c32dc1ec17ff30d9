package stage

import (
	"time"

	"github.com/evsieve/evsieve/internal/event"
	"github.com/evsieve/evsieve/internal/key"
)

// Delay implements spec.md §4.7: "Delay [predicate…] period=SECONDS".
// Matching events are detached and re-injected at their original
// pipeline position at time now+period; re-injections run through the
// stages after Delay only. Index is assigned by the pipeline compiler
// once the full stage list is known (spec.md §4.9 design notes: "hold
// only the handle").
type Delay struct {
	Predicates []key.Predicate
	Period     time.Duration
	Index      int
}

func NewDelay(preds []key.Predicate, period time.Duration) *Delay {
	return &Delay{Predicates: preds, Period: period}
}

func (d *Delay) Name() string { return "delay" }

func (d *Delay) matches(rt Runtime, e event.Event) bool {
	if len(d.Predicates) == 0 {
		return true
	}
	for _, p := range d.Predicates {
		if p.Matches(e, rt.Tracker()) {
			return true
		}
	}
	return false
}

func (d *Delay) Process(rt Runtime, e event.Event) []event.Event {
	if !d.matches(rt, e) {
		return []event.Event{e}
	}
	rt.ScheduleDelay(e, d.Index, rt.Now().Add(d.Period))
	return nil
}
