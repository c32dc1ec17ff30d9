// Package track implements the State Tracker, spec.md §4.2: memory of
// the last observed value per (device, type, code) and per
// (domain, type, code), consulted by predicates that reference the
// "previous" value (ranges with transitions, hook-key semantics, the
// value-expression variable d).
//
// The runtime is single-threaded (spec.md §5), so unlike the teacher's
// concurrently-accessed counters (hardware/mega-client's Stat), this
// tracker needs no locking — it is owned outright by the event loop
// goroutine.
package track

import "github.com/evsieve/evsieve/internal/domain"

type deviceKey struct {
	device uint32
	typ    uint16
	code   uint16
}

type domainKey struct {
	dom  domain.ID
	typ  uint16
	code uint16
}

// Tracker holds last-observed values. Construct it with New: the zero
// Tracker has nil maps, so Observe on it panics.
type Tracker struct {
	byDevice map[deviceKey]int32
	byDomain map[domainKey]int32
}

func New() *Tracker {
	return &Tracker{
		byDevice: make(map[deviceKey]int32, 64),
		byDomain: make(map[domainKey]int32, 64),
	}
}

// PreviousByDevice returns the last value recorded for
// (device, type, code) and whether one has ever been recorded.
// Spec.md §3: "Initial value is undefined; predicates that depend on
// the previous value fail-match until one has been observed."
func (t *Tracker) PreviousByDevice(device uint32, typ, code uint16) (int32, bool) {
	v, ok := t.byDevice[deviceKey{device, typ, code}]
	return v, ok
}

// PreviousByDomain returns the last value recorded for
// (domain, type, code) and whether one has ever been recorded.
func (t *Tracker) PreviousByDomain(dom domain.ID, typ, code uint16) (int32, bool) {
	v, ok := t.byDomain[domainKey{dom, typ, code}]
	return v, ok
}

// Observe records value as the new last-observed value for both keys.
//
// Ordering invariant (spec.md §4.2): read-then-update, the same in
// every stage. The runtime calls Observe once per physical event,
// after that event has passed through every stage, so each transition
// predicate and each target's d term evaluated for it reads the value
// from before this event.
func (t *Tracker) Observe(device uint32, dom domain.ID, typ, code uint16, value int32) {
	t.byDevice[deviceKey{device, typ, code}] = value
	t.byDomain[domainKey{dom, typ, code}] = value
}
