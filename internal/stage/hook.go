package stage

import (
	"time"

	"github.com/evsieve/evsieve/internal/ecodes"
	"github.com/evsieve/evsieve/internal/event"
	"github.com/evsieve/evsieve/internal/key"
	"github.com/google/uuid"
)

// ToggleAction is a resolved `toggle[=ID[:idx]]` action (spec.md
// §4.9): either advance-by-one (HasIndex false) or set to a literal
// 1-based index.
type ToggleAction struct {
	Target   *Toggle
	HasIndex bool
	Index    int
}

// hookSlot tracks one of a Hook's N keys (spec.md §4.9).
type hookSlot struct {
	pred             key.Predicate
	satisfied        bool
	lastTransitionAt time.Time
}

// HookResult reports what happened to a Hook on one event, consulted
// by a bound Withhold stage to decide whether that same event should
// be buffered, released, or dropped (spec.md §4.10).
type HookResult struct {
	TriggerSlot      int // -1 if the event matched no slot's identity
	BecameSatisfied  bool
	BecameUnsatisfied bool
	Fired            bool
	Broke            bool // breaks-on tripped; all slots reset
}

// Hook implements spec.md §4.9. It never consumes events — Process
// always returns the input event first, followed by any send-key
// synthesis — but records enough in lastResult for an immediately
// following Withhold to act on.
type Hook struct {
	Keys       []key.Predicate
	ExecShell  []string
	Toggles    []ToggleAction
	SendKeys   []key.Target
	Sequential bool
	Period     time.Duration
	BreaksOn   []key.Predicate

	slots      []*hookSlot
	sendHeld   []bool // parallel to SendKeys: is the synth key currently held
	lastResult HookResult
}

func NewHook(keys []key.Predicate, breaksOn []key.Predicate) (*Hook, error) {
	h := &Hook{BreaksOn: breaksOn}
	for _, k := range keys {
		slotPred, err := k.WithDefaultValue("1~")
		if err != nil {
			return nil, err
		}
		h.Keys = append(h.Keys, slotPred)
		h.slots = append(h.slots, &hookSlot{pred: slotPred})
	}
	return h, nil
}

func (h *Hook) Name() string { return "hook" }

// LastResult returns the HookResult of the most recently processed
// event, consulted by a bound Withhold in the same pipeline step.
func (h *Hook) LastResult() HookResult { return h.lastResult }

// SlotIdentityMatch reports whether e's (type, code, domain) matches
// slot i's identity, independent of value (used by Withhold to decide
// whether e even pertains to this hook at all).
func (h *Hook) SlotIdentityMatch(i int, e event.Event) bool {
	if i < 0 || i >= len(h.slots) {
		return false
	}
	return h.slots[i].pred.MatchesIdentity(e)
}

func (h *Hook) findSlot(e event.Event) int {
	for i, s := range h.slots {
		if s.pred.MatchesIdentity(e) {
			return i
		}
	}
	return -1
}

func (h *Hook) allOtherSatisfied(except int) bool {
	for i, s := range h.slots {
		if i == except {
			continue
		}
		if !s.satisfied {
			return false
		}
	}
	return true
}

func (h *Hook) latestTransition(except int) time.Time {
	var latest time.Time
	for i, s := range h.slots {
		if i == except {
			continue
		}
		if s.lastTransitionAt.After(latest) {
			latest = s.lastTransitionAt
		}
	}
	return latest
}

func (h *Hook) window() (min, max time.Time) {
	first := true
	for _, s := range h.slots {
		if !s.satisfied {
			continue
		}
		if first {
			min, max = s.lastTransitionAt, s.lastTransitionAt
			first = false
			continue
		}
		if s.lastTransitionAt.Before(min) {
			min = s.lastTransitionAt
		}
		if s.lastTransitionAt.After(max) {
			max = s.lastTransitionAt
		}
	}
	return min, max
}

func (h *Hook) resetSlots() {
	for _, s := range h.slots {
		s.satisfied = false
	}
}

// release synthesizes a (EV_KEY, code, 0) event for every currently
// held send-key, per spec.md §4.9's "pending release" rule, and
// returns the release events to append to the pipeline.
func (h *Hook) release(rt Runtime, e event.Event) []event.Event {
	if h.sendHeld == nil && len(h.SendKeys) > 0 {
		h.sendHeld = make([]bool, len(h.SendKeys))
	}
	var out []event.Event
	for i, tgt := range h.SendKeys {
		if !h.sendHeld[i] {
			continue
		}
		h.sendHeld[i] = false
		out = append(out, releaseSendKey(tgt, e, rt))
	}
	return out
}

func releaseSendKey(tgt key.Target, seed event.Event, rt Runtime) event.Event {
	base := seed
	base.Type = ecodes.EV_KEY
	base.Value = 0
	ev := tgt.Apply(base, rt.Tracker())
	ev.Type = ecodes.EV_KEY
	ev.Value = 0
	ev.Time = seed.Time
	return ev
}

func pressSendKey(tgt key.Target, seed event.Event, rt Runtime) event.Event {
	base := seed
	base.Type = ecodes.EV_KEY
	base.Value = 1
	ev := tgt.Apply(base, rt.Tracker())
	ev.Type = ecodes.EV_KEY
	ev.Value = 1
	ev.Time = seed.Time
	return ev
}

func (h *Hook) checkBreak(rt Runtime, e event.Event) bool {
	if h.findSlot(e) >= 0 {
		return false
	}
	for _, p := range h.BreaksOn {
		if p.MatchesIdentity(e) && p.Matches(e, rt.Tracker()) {
			return true
		}
	}
	return false
}

func (h *Hook) Process(rt Runtime, e event.Event) []event.Event {
	out := []event.Event{e}

	if h.checkBreak(rt, e) {
		wasAnySatisfied := false
		for _, s := range h.slots {
			if s.satisfied {
				wasAnySatisfied = true
			}
		}
		h.resetSlots()
		h.lastResult = HookResult{TriggerSlot: -1, Broke: true}
		if wasAnySatisfied || len(h.sendHeld) > 0 {
			out = append(out, h.release(rt, e)...)
		}
		return out
	}

	idx := h.findSlot(e)
	if idx < 0 {
		h.lastResult = HookResult{TriggerSlot: -1}
		return out
	}

	slot := h.slots[idx]
	wasSatisfied := slot.satisfied
	nowSatisfied := slot.pred.Matches(e, rt.Tracker())
	slot.satisfied = nowSatisfied

	result := HookResult{TriggerSlot: idx}
	now := rt.Now()
	if nowSatisfied && !wasSatisfied {
		slot.lastTransitionAt = now
		result.BecameSatisfied = true
	} else if !nowSatisfied && wasSatisfied {
		result.BecameUnsatisfied = true
	}

	if result.BecameSatisfied && h.canFire(idx, now) {
		result.Fired = true
		out = append(out, h.fire(rt, e)...)
	} else if result.BecameUnsatisfied {
		out = append(out, h.release(rt, e)...)
	}

	h.lastResult = result
	return out
}

func (h *Hook) canFire(trigger int, now time.Time) bool {
	if !h.allOtherSatisfied(trigger) {
		return false
	}
	if h.Sequential {
		latest := h.latestTransition(trigger)
		if latest.After(h.slots[trigger].lastTransitionAt) {
			return false
		}
	}
	if h.Period > 0 {
		min, max := h.window()
		if max.Sub(min) > h.Period {
			return false
		}
	}
	return true
}

func (h *Hook) fire(rt Runtime, e event.Event) []event.Event {
	for _, cmd := range h.ExecShell {
		id := uuid.New().String()
		rt.Logf("hook: spawning exec-shell id=%s cmd=%q", id, cmd)
		rt.SpawnShell(cmd)
	}
	for _, action := range h.Toggles {
		if action.HasIndex {
			action.Target.SetIndex(action.Index)
		} else {
			action.Target.Advance()
		}
	}

	if h.sendHeld == nil && len(h.SendKeys) > 0 {
		h.sendHeld = make([]bool, len(h.SendKeys))
	}
	var out []event.Event
	for i, tgt := range h.SendKeys {
		if h.sendHeld[i] {
			continue
		}
		h.sendHeld[i] = true
		out = append(out, pressSendKey(tgt, e, rt))
	}
	return out
}
