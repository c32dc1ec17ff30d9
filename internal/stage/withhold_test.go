package stage

import (
	"testing"

	"github.com/evsieve/evsieve/internal/ecodes"
	"github.com/evsieve/evsieve/internal/event"
	"github.com/evsieve/evsieve/internal/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHookWithholdFireDropsBufferedKeys exercises the canonical
// "hold ctrl, hold shift -> synthesize a single key(a)" combo: both
// keys must be withheld while the combination is still incomplete, and
// dropped outright (never forwarded) once the hook fires.
func TestHookWithholdFireDropsBufferedKeys(t *testing.T) {
	ctrl, err := key.ParsePredicate("key:#29")
	require.NoError(t, err)
	shift, err := key.ParsePredicate("key:#42")
	require.NoError(t, err)
	sendTgt, err := key.ParseTarget("key:#30")
	require.NoError(t, err)

	h, err := NewHook([]key.Predicate{ctrl, shift}, nil)
	require.NoError(t, err)
	h.SendKeys = []key.Target{sendTgt}

	w := NewWithhold(nil, 1)
	hw := NewHookWithhold([]*Hook{h}, w)

	rt := newFakeRuntime()

	ctrlDown := event.Event{Type: ecodes.EV_KEY, Code: 29, Value: 1}
	out := hw.Process(rt, ctrlDown)
	assert.Empty(t, out, "ctrl-down alone should be withheld, not forwarded")

	shiftDown := event.Event{Type: ecodes.EV_KEY, Code: 42, Value: 1}
	out = hw.Process(rt, shiftDown)
	require.Len(t, out, 1, "firing the hook should emit only the synthesized send-key, dropping ctrl and shift")
	assert.EqualValues(t, 30, out[0].Code)
	assert.EqualValues(t, 1, out[0].Value)
}

// TestHookWithholdDropsKeyUpOfConsumedKeyDown covers the case the
// Withhold's own key list scopes withholding to the contributing key
// only (here key:a, not the ctrl modifier): once A's key-down is
// consumed by the firing hook, A's later key-up must be dropped too,
// not forwarded as a spurious release with no matching down.
func TestHookWithholdDropsKeyUpOfConsumedKeyDown(t *testing.T) {
	ctrl, err := key.ParsePredicate("key:#29")
	require.NoError(t, err)
	a, err := key.ParsePredicate("key:#30")
	require.NoError(t, err)
	withholdA, err := key.ParsePredicate("key:#30")
	require.NoError(t, err)

	h, err := NewHook([]key.Predicate{ctrl, a}, nil)
	require.NoError(t, err)

	w := NewWithhold([]key.Predicate{withholdA}, 1)
	hw := NewHookWithhold([]*Hook{h}, w)

	rt := newFakeRuntime()

	ctrlDown := event.Event{Type: ecodes.EV_KEY, Code: 29, Value: 1}
	out := hw.Process(rt, ctrlDown)
	require.Len(t, out, 1, "ctrl is outside the withhold's key list and must pass through untouched")

	aDown := event.Event{Type: ecodes.EV_KEY, Code: 30, Value: 1}
	out = hw.Process(rt, aDown)
	assert.Empty(t, out, "firing the hook consumes a-down with no send-key configured")

	aUp := event.Event{Type: ecodes.EV_KEY, Code: 30, Value: 0}
	out = hw.Process(rt, aUp)
	assert.Empty(t, out, "a-up must be dropped as the counterpart of the consumed a-down, not forwarded")

	ctrlUp := event.Event{Type: ecodes.EV_KEY, Code: 29, Value: 0}
	out = hw.Process(rt, ctrlUp)
	require.Len(t, out, 1, "ctrl-up passes through normally")
	assert.EqualValues(t, 29, out[0].Code)
	assert.EqualValues(t, 0, out[0].Value)
}

// TestHookWithholdUnsatisfiedReleasesBuffer checks that releasing one
// half of an incomplete combination flushes whatever was buffered
// instead of dropping it, then lets the releasing event itself through
// untouched.
func TestHookWithholdUnsatisfiedReleasesBuffer(t *testing.T) {
	ctrl, err := key.ParsePredicate("key:#29")
	require.NoError(t, err)
	shift, err := key.ParsePredicate("key:#42")
	require.NoError(t, err)

	h, err := NewHook([]key.Predicate{ctrl, shift}, nil)
	require.NoError(t, err)

	w := NewWithhold(nil, 1)
	hw := NewHookWithhold([]*Hook{h}, w)

	rt := newFakeRuntime()

	ctrlDown := event.Event{Type: ecodes.EV_KEY, Code: 29, Value: 1}
	out := hw.Process(rt, ctrlDown)
	assert.Empty(t, out)

	ctrlUp := event.Event{Type: ecodes.EV_KEY, Code: 29, Value: 0}
	out = hw.Process(rt, ctrlUp)
	require.Len(t, out, 2, "the buffered ctrl-down is released before the releasing ctrl-up passes through")
	assert.EqualValues(t, 1, out[0].Value)
	assert.EqualValues(t, 0, out[1].Value)
}
