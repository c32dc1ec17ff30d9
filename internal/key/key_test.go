package key

import (
	"testing"

	"github.com/evsieve/evsieve/internal/domain"
	"github.com/evsieve/evsieve/internal/ecodes"
	"github.com/evsieve/evsieve/internal/event"
	"github.com/evsieve/evsieve/internal/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredicateBasic(t *testing.T) {
	p, err := ParsePredicate("key:capslock")
	require.NoError(t, err)

	tracker := track.New()
	e := event.Event{Type: ecodes.EV_KEY, Code: 58, Value: 1}
	assert.True(t, p.Matches(e, tracker))

	e.Code = 59
	assert.False(t, p.Matches(e, tracker))
}

func TestPredicateRange(t *testing.T) {
	p, err := ParsePredicate("abs:abs_x:100~200")
	require.NoError(t, err)
	tracker := track.New()

	assert.True(t, p.Matches(event.Event{Type: ecodes.EV_ABS, Code: 0, Value: 150}, tracker))
	assert.False(t, p.Matches(event.Event{Type: ecodes.EV_ABS, Code: 0, Value: 99}, tracker))
	assert.False(t, p.Matches(event.Event{Type: ecodes.EV_ABS, Code: 0, Value: 201}, tracker))
}

func TestPredicateTransition(t *testing.T) {
	// --map abs:x:~199..200~ key:a:1, from spec.md §8 scenario 3.
	p, err := ParsePredicate("abs:abs_x:~199..200~")
	require.NoError(t, err)
	tracker := track.New()

	e1 := event.Event{Type: ecodes.EV_ABS, Code: 0, Value: 180}
	assert.False(t, p.Matches(e1, tracker))
	tracker.Observe(0, domain.Empty, e1.Type, e1.Code, e1.Value)

	e2 := event.Event{Type: ecodes.EV_ABS, Code: 0, Value: 201}
	assert.True(t, p.Matches(e2, tracker))
	tracker.Observe(0, domain.Empty, e2.Type, e2.Code, e2.Value)

	back, err := ParsePredicate("abs:abs_x:200~..~199")
	require.NoError(t, err)
	e3 := event.Event{Type: ecodes.EV_ABS, Code: 0, Value: 150}
	assert.True(t, back.Matches(e3, tracker))
}

func TestTargetCopiesUnspecified(t *testing.T) {
	tgt, err := ParseTarget("key:backspace")
	require.NoError(t, err)
	tracker := track.New()

	src := event.Event{Type: ecodes.EV_KEY, Code: 58, Value: 1}
	out := tgt.Apply(src, tracker)
	assert.Equal(t, ecodes.EV_KEY, out.Type)
	// backspace code
	assert.EqualValues(t, 14, out.Code)
	assert.EqualValues(t, 1, out.Value)
}

func TestTargetRejectsRange(t *testing.T) {
	_, err := ParseTarget("abs:abs_x:0~100")
	assert.Error(t, err)
}

func TestTargetAffineExpression(t *testing.T) {
	tgt, err := ParseTarget("abs:abs_x:255-x")
	require.NoError(t, err)
	tracker := track.New()

	out := tgt.Apply(event.Event{Type: ecodes.EV_ABS, Code: 0, Value: 10}, tracker)
	assert.EqualValues(t, 245, out.Value)
}

func TestTargetDeltaExpression(t *testing.T) {
	tgt, err := ParseTarget("rel:rel_x:d")
	require.NoError(t, err)
	tracker := track.New()
	tracker.Observe(0, domain.Empty, ecodes.EV_ABS, 0, 100)

	src := event.Event{Type: ecodes.EV_ABS, Code: 0, Value: 130}
	out := tgt.Apply(src, tracker)
	assert.EqualValues(t, 30, out.Value)
}

func TestTargetHalfAwayFromZeroRounding(t *testing.T) {
	tgt, err := ParseTarget("key:a:0.5x")
	require.NoError(t, err)
	tracker := track.New()

	out := tgt.Apply(event.Event{Value: 3}, tracker)
	assert.EqualValues(t, 2, out.Value) // 1.5 -> 2

	out = tgt.Apply(event.Event{Value: -3}, tracker)
	assert.EqualValues(t, -2, out.Value) // -1.5 -> -2
}
