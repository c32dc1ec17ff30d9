// Package event defines the value object that flows through the
// pipeline: spec.md §3 "Event".
package event

import (
	"time"

	"github.com/evsieve/evsieve/internal/domain"
)

// DeviceID identifies the originating input device handle (or, for a
// synthesized event, the synthesizing stage's synthetic device slot).
// It is part of the State Tracker key alongside (type, code) so that
// "previous value" is tracked per physical source, per spec.md §3.
type DeviceID uint32

// Event is a 4-tuple (type, code, value) plus domain and timing
// metadata, copied by value throughout the pipeline (spec.md §3: "cheap
// to copy"). The zero Event is not meaningful; always construct via
// New or by copying an existing Event.
type Event struct {
	Type    uint16
	Code    uint16
	Value   int32
	Domain  domain.ID
	Device  DeviceID
	Time    time.Time
	Yielded bool
}

// New builds an Event with the current monotonic time.
func New(evType, code uint16, value int32, dom domain.ID, dev DeviceID) Event {
	return Event{
		Type:   evType,
		Code:   code,
		Value:  value,
		Domain: dom,
		Device: dev,
		Time:   time.Now(),
	}
}

// WithYield returns a copy of e with the yielded flag set. Per
// spec.md §3, yielded is monotonic: once set it is never cleared, so
// there is deliberately no WithoutYield.
func (e Event) WithYield() Event {
	e.Yielded = true
	return e
}

// IsSynReport reports whether e is the report terminator for its type.
func (e Event) IsSynReport(synType uint16) bool {
	return e.Type == synType && e.Code == 0
}
