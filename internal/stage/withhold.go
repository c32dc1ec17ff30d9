package stage

import (
	"github.com/evsieve/evsieve/internal/domain"
	"github.com/evsieve/evsieve/internal/event"
	"github.com/evsieve/evsieve/internal/key"
)

// withholdChannel identifies the (type, code, domain) a withheld event
// belongs to, independent of its value, so the key-up that later
// arrives on the same channel can be recognized as the counterpart of
// a key-down consumed earlier by a firing hook.
type withholdChannel struct {
	Type, Code uint16
	Domain     domain.ID
}

func channelOf(e event.Event) withholdChannel {
	return withholdChannel{Type: e.Type, Code: e.Code, Domain: e.Domain}
}

// Withhold implements spec.md §4.10: "Withhold [predicate…]". It must
// textually follow one or more consecutive Hooks and binds to that
// contiguous group. An event that (a) matches one of Withhold's
// predicates (or all events if none given) and (b) would contribute to
// one of the bound hooks' slot transitioning to satisfied is removed
// from the stream and buffered. It is later either dropped — if that
// hook fires while the event is buffered, taking every other buffered
// event contributing to the same hook down with it — or released back
// in arrival order when a slot of that hook becomes unsatisfied again
// (a key was released) or its breaks-on trips. A hook's period
// elapsing does not by itself release anything: period is only
// checked when a slot becomes satisfied.
//
// Withhold never runs standalone — the pipeline compiler always wraps
// it together with its bound Hooks into a HookWithhold so the
// HookResult produced by feeding an event through a Hook is available
// to the withhold decision for that same event, within the same
// Process call.
type Withhold struct {
	Predicates []key.Predicate

	// pending holds events buffered per hook index (within the bound
	// group), in arrival order.
	pending [][]event.Event

	// residual marks a channel whose buffered key-down was just
	// consumed by a firing hook: the next key-up arriving on that same
	// channel is the counterpart of an event the output side never
	// saw, so it must be dropped rather than forwarded. Grounded on
	// original_source/src/stream/withhold.rs's ChannelState::Residual.
	residual map[withholdChannel]bool
}

func NewWithhold(preds []key.Predicate, numHooks int) *Withhold {
	return &Withhold{
		Predicates: preds,
		pending:    make([][]event.Event, numHooks),
		residual:   make(map[withholdChannel]bool),
	}
}

func (w *Withhold) Name() string { return "withhold" }

func (w *Withhold) matches(rt Runtime, e event.Event) bool {
	if len(w.Predicates) == 0 {
		return true
	}
	for _, p := range w.Predicates {
		if p.Matches(e, rt.Tracker()) {
			return true
		}
	}
	return false
}

// HookWithhold binds one Withhold to the consecutive group of Hooks it
// textually follows.
//
// Grounded on the teacher's internal/engine composite Doers (e.g.
// engine.Tree, internal/engine/sequence.go), which also run a list of
// child Doers against one input.
type HookWithhold struct {
	Hooks    []*Hook
	Withhold *Withhold
}

func NewHookWithhold(hooks []*Hook, w *Withhold) *HookWithhold {
	return &HookWithhold{Hooks: hooks, Withhold: w}
}

func (hw *HookWithhold) Name() string { return "hook+withhold" }

func (hw *HookWithhold) Process(rt Runtime, e event.Event) []event.Event {
	var out []event.Event
	cur := e
	claimed := false

	for hi, h := range hw.Hooks {
		produced := h.Process(rt, cur)
		result := h.LastResult()

		if result.TriggerSlot < 0 {
			// Not this hook's slot: forward any side-effect events
			// (e.g. this hook's own send-key release), and on a break
			// release this hook's buffered queue — breaks-on tripping
			// is one of the documented "firing becomes impossible"
			// conditions.
			out = append(out, dropOriginal(produced, cur)...)
			if result.Broke {
				out = append(out, hw.Withhold.pending[hi]...)
				hw.Withhold.pending[hi] = nil
			}
			continue
		}

		inScope := hw.Withhold.matches(rt, cur)

		switch {
		case inScope && result.BecameSatisfied && result.Fired:
			// The triggering event, and everything already buffered
			// for this hook, is definitively dropped. Each dropped
			// key-down's channel goes Residual so its later key-up
			// (which never became a down at the output) is dropped too,
			// instead of reaching the output as a spurious release.
			out = append(out, dropOriginal(produced, cur)...)
			for _, buffered := range hw.Withhold.pending[hi] {
				hw.Withhold.residual[channelOf(buffered)] = true
			}
			hw.Withhold.residual[channelOf(cur)] = true
			hw.Withhold.pending[hi] = nil
			claimed = true

		case inScope && result.BecameSatisfied:
			// Contributes to a not-yet-complete combination: buffer it
			// instead of forwarding.
			out = append(out, dropOriginal(produced, cur)...)
			hw.Withhold.pending[hi] = append(hw.Withhold.pending[hi], cur)
			claimed = true

		case result.BecameUnsatisfied:
			// Firing is now impossible via this hook: flush whatever
			// was buffered, in arrival order. cur itself either passes
			// through untouched (it never qualified for withholding) or,
			// if its channel was left Residual by an earlier fire that
			// consumed its key-down, is dropped as that key-down's
			// counterpart key-up.
			out = append(out, hw.Withhold.pending[hi]...)
			hw.Withhold.pending[hi] = nil
			if hw.Withhold.residual[channelOf(cur)] {
				delete(hw.Withhold.residual, channelOf(cur))
				claimed = true
			}
			out = append(out, dropOriginal(produced, cur)...)

		default:
			out = append(out, dropOriginal(produced, cur)...)
		}
	}

	if !claimed {
		out = append(out, cur)
	}

	return out
}

// dropOriginal returns produced with the leading copy of original
// removed, since the caller decides separately whether/when original
// itself continues downstream.
func dropOriginal(produced []event.Event, original event.Event) []event.Event {
	if len(produced) == 0 {
		return nil
	}
	if produced[0] == original {
		return produced[1:]
	}
	return produced
}
