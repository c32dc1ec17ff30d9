package stage

import (
	"github.com/evsieve/evsieve/internal/capability"
	"github.com/evsieve/evsieve/internal/ecodes"
	"github.com/evsieve/evsieve/internal/event"
	"github.com/evsieve/evsieve/internal/key"
)

const (
	RepeatPassive = "passive"
	RepeatDisable = "disable"
	RepeatEnable  = "enable"
)

// Device is the narrow write-side interface an Output stage needs
// from the device-kernel layer: write an event to the virtual device,
// and (for repeat=enable) ask the kernel to auto-repeat on its behalf.
// Grounded on the teacher's hardware/input.Source read-side interface
// (hardware/input/input.go), mirrored here for the write side.
type Device interface {
	Write(e event.Event) error
	SetKernelAutoRepeat(enable bool) error
}

// Output implements spec.md §4.12: "Output [predicate…]
// [create-link=PATH] [name=NAME] [repeat=passive|disable|enable]". A
// terminal stage: every event it matches is removed from the stream.
type Output struct {
	Predicates []key.Predicate
	DeviceName string
	CreateLink string
	Repeat     string

	Capabilities *capability.Set
	device       Device
}

func NewOutput(preds []key.Predicate, name, createLink, repeat string) *Output {
	if repeat == "" {
		repeat = RepeatPassive
	}
	return &Output{
		Predicates:   preds,
		DeviceName:   name,
		CreateLink:   createLink,
		Repeat:       repeat,
		Capabilities: capability.NewSet(),
	}
}

func (o *Output) Name() string { return "output" }

func (o *Output) Open(d Device) error {
	o.device = d
	return d.SetKernelAutoRepeat(o.Repeat == RepeatEnable)
}

func (o *Output) matches(rt Runtime, e event.Event) bool {
	if len(o.Predicates) == 0 {
		return true
	}
	for _, p := range o.Predicates {
		if p.Matches(e, rt.Tracker()) {
			return true
		}
	}
	return false
}

// Process consumes every matching event: it is written to the device
// (or dropped, for a filtered repeat or an out-of-capability event) and
// never forwarded (spec.md §4.12's "consumes matching events").
// Non-matching events pass through so a later Output in the pipeline
// can claim them.
func (o *Output) Process(rt Runtime, e event.Event) []event.Event {
	if !o.matches(rt, e) {
		return []event.Event{e}
	}

	if e.Type == ecodes.EV_KEY && e.Value == ecodes.KeyRepeat {
		switch o.Repeat {
		case RepeatDisable, RepeatEnable:
			return nil
		}
	}

	// SYN_REPORT frames every other event and is not itself subject to
	// capability containment (spec.md §8 "event conservation"): every
	// uinput device accepts it regardless of what else it declares, so
	// it must never be dropped here even though nothing ever adds it to
	// a Capabilities set.
	if e.Type != ecodes.EV_SYN {
		capKey := capability.Key{Type: e.Type, Code: e.Code}
		if !o.Capabilities.Contains(capKey, e.Value) {
			rt.Logf("output %s: dropping out-of-capability event type=%d code=%d value=%d",
				o.DeviceName, e.Type, e.Code, e.Value)
			return nil
		}
	}

	if o.device != nil {
		if err := o.device.Write(e); err != nil {
			rt.Logf("output %s: write error: %v", o.DeviceName, err)
		}
	}
	return nil
}

func (o *Output) Close() error {
	if closer, ok := o.device.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
