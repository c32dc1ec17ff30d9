package stage

import (
	"fmt"
	"time"

	"github.com/evsieve/evsieve/internal/event"
	"github.com/evsieve/evsieve/internal/track"
)

// fakeRuntime is a minimal stage.Runtime for tests that don't need a
// real scheduler: Now() is settable so Hook's sequential/period logic
// can be exercised deterministically, and ScheduleDelay/ScheduleTimer
// just record what was asked for instead of acting on it.
type fakeRuntime struct {
	tracker *track.Tracker
	now     time.Time

	delays []delayCall
	shells []string
	logs   []string
}

type delayCall struct {
	ev        event.Event
	fromStage int
	at        time.Time
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{tracker: track.New(), now: time.Unix(1700000000, 0)}
}

func (f *fakeRuntime) Tracker() *track.Tracker { return f.tracker }
func (f *fakeRuntime) Now() time.Time          { return f.now }

func (f *fakeRuntime) ScheduleDelay(ev event.Event, fromStage int, at time.Time) {
	f.delays = append(f.delays, delayCall{ev, fromStage, at})
}

func (f *fakeRuntime) ScheduleTimer(at time.Time, fn func(now time.Time)) func() {
	return func() {}
}

func (f *fakeRuntime) SpawnShell(cmd string) {
	f.shells = append(f.shells, cmd)
}

func (f *fakeRuntime) Logf(format string, args ...interface{}) {
	f.logs = append(f.logs, fmt.Sprintf(format, args...))
}

var _ Runtime = (*fakeRuntime)(nil)
