package stage

import (
	"testing"

	"github.com/evsieve/evsieve/internal/capability"
	"github.com/evsieve/evsieve/internal/ecodes"
	"github.com/evsieve/evsieve/internal/event"
	"github.com/evsieve/evsieve/internal/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	written    []event.Event
	autoRepeat bool
	writeErr   error
	closed     bool
}

func (d *fakeDevice) Write(e event.Event) error {
	if d.writeErr != nil {
		return d.writeErr
	}
	d.written = append(d.written, e)
	return nil
}

func (d *fakeDevice) SetKernelAutoRepeat(enable bool) error {
	d.autoRepeat = enable
	return nil
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

func TestOutputWritesMatchingEventsAndConsumesThem(t *testing.T) {
	pred, err := key.ParsePredicate("key:#30")
	require.NoError(t, err)

	o := NewOutput([]key.Predicate{pred}, "evsieve-test", "", "")
	o.Capabilities.Add(capability.Key{Type: ecodes.EV_KEY, Code: 30}, capability.ValueRange{Min: 0, Max: 1})

	dev := &fakeDevice{}
	require.NoError(t, o.Open(dev))
	assert.False(t, dev.autoRepeat, "repeat=passive must not enable kernel auto-repeat")

	rt := newFakeRuntime()
	match := event.Event{Type: ecodes.EV_KEY, Code: 30, Value: 1}
	out := o.Process(rt, match)
	assert.Empty(t, out, "a matched event must be consumed, never forwarded")
	require.Len(t, dev.written, 1)
	assert.Equal(t, match, dev.written[0])

	other := event.Event{Type: ecodes.EV_KEY, Code: 31, Value: 1}
	out = o.Process(rt, other)
	require.Len(t, out, 1, "a non-matching event must pass through for a later Output")
	assert.Equal(t, other, out[0])
	assert.Len(t, dev.written, 1, "the non-matching event must not reach the device")
}

func TestOutputDropsOutOfCapabilityEvents(t *testing.T) {
	o := NewOutput(nil, "evsieve-test", "", "")
	o.Capabilities.Add(capability.Key{Type: ecodes.EV_KEY, Code: 30}, capability.ValueRange{Min: 0, Max: 1})

	dev := &fakeDevice{}
	require.NoError(t, o.Open(dev))

	rt := newFakeRuntime()
	outOfRange := event.Event{Type: ecodes.EV_KEY, Code: 99, Value: 1}
	out := o.Process(rt, outOfRange)
	assert.Empty(t, out)
	assert.Empty(t, dev.written, "an event outside the output's declared capabilities must never be written")
}

func TestOutputAlwaysWritesSynReport(t *testing.T) {
	o := NewOutput(nil, "evsieve-test", "", "")
	o.Capabilities.Add(capability.Key{Type: ecodes.EV_KEY, Code: 30}, capability.ValueRange{Min: 0, Max: 1})

	dev := &fakeDevice{}
	require.NoError(t, o.Open(dev))

	rt := newFakeRuntime()
	syn := event.Event{Type: ecodes.EV_SYN, Code: 0, Value: 0}
	out := o.Process(rt, syn)
	assert.Empty(t, out)
	require.Len(t, dev.written, 1, "EV_SYN must reach the device even though it is never a declared capability")
	assert.Equal(t, syn, dev.written[0])
}

func TestOutputRepeatDisableDropsKeyRepeat(t *testing.T) {
	o := NewOutput(nil, "evsieve-test", "", RepeatDisable)
	o.Capabilities.Add(capability.Key{Type: ecodes.EV_KEY, Code: 30}, capability.Full)

	dev := &fakeDevice{}
	require.NoError(t, o.Open(dev))

	rt := newFakeRuntime()
	repeat := event.Event{Type: ecodes.EV_KEY, Code: 30, Value: ecodes.KeyRepeat}
	out := o.Process(rt, repeat)
	assert.Empty(t, out)
	assert.Empty(t, dev.written, "repeat=disable must drop synthetic key-repeat events")
}

func TestOutputRepeatEnableRequestsKernelAutoRepeatAndDropsSyntheticRepeat(t *testing.T) {
	o := NewOutput(nil, "evsieve-test", "", RepeatEnable)
	o.Capabilities.Add(capability.Key{Type: ecodes.EV_KEY, Code: 30}, capability.Full)

	dev := &fakeDevice{}
	require.NoError(t, o.Open(dev))
	assert.True(t, dev.autoRepeat, "repeat=enable must ask the kernel to auto-repeat")

	rt := newFakeRuntime()
	repeat := event.Event{Type: ecodes.EV_KEY, Code: 30, Value: ecodes.KeyRepeat}
	out := o.Process(rt, repeat)
	assert.Empty(t, out)
	assert.Empty(t, dev.written, "the kernel handles repeat directly under repeat=enable")
}

func TestOutputClosesUnderlyingDevice(t *testing.T) {
	o := NewOutput(nil, "evsieve-test", "", "")
	dev := &fakeDevice{}
	require.NoError(t, o.Open(dev))
	require.NoError(t, o.Close())
	assert.True(t, dev.closed)
}
