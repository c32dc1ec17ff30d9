package stage

import (
	"testing"

	"github.com/evsieve/evsieve/internal/ecodes"
	"github.com/evsieve/evsieve/internal/event"
	"github.com/evsieve/evsieve/internal/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHookReleaseBeforeFireDoesNotPanic covers a Hook whose only slot
// becomes unsatisfied again before it was ever satisfied alongside its
// siblings, i.e. release runs before fire ever allocates sendHeld.
func TestHookReleaseBeforeFireDoesNotPanic(t *testing.T) {
	a, err := key.ParsePredicate("key:#30")
	require.NoError(t, err)
	b, err := key.ParsePredicate("key:#48")
	require.NoError(t, err)
	sendTgt, err := key.ParseTarget("key:#46")
	require.NoError(t, err)

	h, err := NewHook([]key.Predicate{a, b}, nil)
	require.NoError(t, err)
	h.SendKeys = []key.Target{sendTgt}

	rt := newFakeRuntime()

	aDown := event.Event{Type: ecodes.EV_KEY, Code: 30, Value: 1}
	assert.NotPanics(t, func() {
		h.Process(rt, aDown)
	})

	aUp := event.Event{Type: ecodes.EV_KEY, Code: 30, Value: 0}
	assert.NotPanics(t, func() {
		h.Process(rt, aUp)
	}, "releasing a slot that never fired must not index an unallocated sendHeld")
}
