// Package stage implements the ten pipeline operators of spec.md §4:
// Map, Copy, Toggle, Block, Merge, Delay, Hook, Withhold, Print,
// Output, built from the common event-matcher/transformer in
// internal/key and the shared memory of internal/track.
//
// Grounded on the teacher's internal/engine Doer interface
// (internal/engine/do.go: one-method interface, pure function of
// (context, input) to effects) for the "small uniform interface, one
// struct per behavior" idiom, generalized here to a stage that
// consumes one event and produces zero or more.
package stage

import (
	"time"

	"github.com/evsieve/evsieve/internal/event"
	"github.com/evsieve/evsieve/internal/track"
)

// Runtime is the narrow set of scheduler facilities a stage may use
// to produce side effects, per spec.md §4.3 ("possibly producing side
// effects"). Stages never block; every method here is either
// non-blocking bookkeeping or a scheduling request fulfilled later by
// the scheduler (spec.md §4.14: "Stages never block").
type Runtime interface {
	Tracker() *track.Tracker
	Now() time.Time

	// ScheduleDelay requests that ev be re-injected into the pipeline
	// at stage index fromStage+1 no earlier than at. Ties at equal
	// deadlines preserve arrival order (spec.md §4.7).
	ScheduleDelay(ev event.Event, fromStage int, at time.Time)

	// ScheduleTimer requests a one-shot callback no earlier than at.
	// No stage calls it; the lifecycle manager uses it to run output
	// reconciliation on the loop (spec.md §4.14).
	ScheduleTimer(at time.Time, fn func(now time.Time)) (cancel func())

	// SpawnShell runs `sh -c cmd` asynchronously and tracks it for
	// reaping/SIGTERM-on-shutdown (spec.md §4.9, §5).
	SpawnShell(cmd string)

	// Logf records a runtime diagnostic (spec.md §7 kind 5); it never
	// affects the event stream.
	Logf(format string, args ...interface{})
}

// Stage is the common contract of spec.md §4.3: a pure function of
// (input event, side-effect channel) to (zero or more output events,
// side effects).
type Stage interface {
	// Process handles one event arriving at this stage and returns
	// the events that continue to this stage's successor. An empty
	// slice means the event was consumed (dropped or buffered).
	Process(rt Runtime, e event.Event) []event.Event

	// Name identifies the stage for diagnostics (e.g. capability
	// containment violations, §3 invariant).
	Name() string
}
