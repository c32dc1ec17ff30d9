package stage

import (
	"github.com/evsieve/evsieve/internal/domain"
	"github.com/evsieve/evsieve/internal/ecodes"
	"github.com/evsieve/evsieve/internal/event"
	"github.com/evsieve/evsieve/internal/key"
)

const (
	ToggleModePassive    = "passive"
	ToggleModeConsistent = "consistent"
)

// Toggle implements spec.md §4.8: "Toggle source [target…] [id=ID]
// [mode=consistent|passive]". The active index is mutated only by
// Hook actions (Advance/SetIndex); Toggle itself only reads it.
type Toggle struct {
	ID      string
	Source  key.Predicate
	Targets []key.Target
	Mode    string

	active     int32
	perKeyIdx  map[togglePerKey]int32
}

type togglePerKey struct {
	typ, code uint16
	dom       domain.ID
}

func NewToggle(id string, source key.Predicate, targets []key.Target, mode string) *Toggle {
	if mode == "" {
		mode = ToggleModeConsistent
	}
	return &Toggle{
		ID:        id,
		Source:    source,
		Targets:   targets,
		Mode:      mode,
		perKeyIdx: make(map[togglePerKey]int32),
	}
}

func (t *Toggle) Name() string { return "toggle" }

// Len reports the number of targets, used by the pipeline compiler to
// bound-check Hook's toggle=ID:idx references (spec.md §4.13).
func (t *Toggle) Len() int { return len(t.Targets) }

// CurrentIndex returns the currently active target index.
func (t *Toggle) CurrentIndex() int32 { return t.active }

// Advance moves to the next target, wrapping modulo length. Called by
// Hook's bare `toggle` action (spec.md §4.9).
func (t *Toggle) Advance() {
	n := int32(len(t.Targets))
	if n == 0 {
		return
	}
	t.active = (t.active + 1) % n
}

// SetIndex sets the active target to a 1-based literal index, clamped
// to [1, len]. Called by Hook's `toggle=ID:idx` action.
func (t *Toggle) SetIndex(oneBased int) {
	n := len(t.Targets)
	if n == 0 {
		return
	}
	if oneBased < 1 {
		oneBased = 1
	}
	if oneBased > n {
		oneBased = n
	}
	t.active = int32(oneBased - 1)
}

func (t *Toggle) resolveIndex(e event.Event) int32 {
	if t.Mode == ToggleModePassive {
		return t.clampedActive()
	}

	k := togglePerKey{typ: e.Type, code: e.Code, dom: e.Domain}
	switch e.Value {
	case ecodes.KeyDown:
		idx := t.clampedActive()
		t.perKeyIdx[k] = idx
		return idx
	case ecodes.KeyUp, ecodes.KeyRepeat:
		if idx, ok := t.perKeyIdx[k]; ok {
			return idx
		}
		return t.clampedActive()
	default:
		return t.clampedActive()
	}
}

func (t *Toggle) clampedActive() int32 {
	n := int32(len(t.Targets))
	if n == 0 {
		return 0
	}
	if t.active < 0 || t.active >= n {
		return 0
	}
	return t.active
}

func (t *Toggle) Process(rt Runtime, e event.Event) []event.Event {
	if !t.Source.Matches(e, rt.Tracker()) {
		return []event.Event{e}
	}
	if len(t.Targets) == 0 {
		return nil
	}
	idx := t.resolveIndex(e)
	out := t.Targets[idx].Apply(e, rt.Tracker())
	return []event.Event{out}
}
