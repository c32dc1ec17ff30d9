package runtime

import (
	"container/heap"
	"syscall"
	"time"

	"github.com/evsieve/evsieve/internal/event"
	"github.com/evsieve/evsieve/internal/stage"
	"golang.org/x/sys/unix"
)

// maxEpollEvents bounds one epoll_wait batch; more than this many
// simultaneously-ready inputs just means another wake-up next
// iteration, which is fine (spec.md §5: no fairness guarantee beyond
// "round robin, one event at a time" within a batch).
const maxEpollEvents = 32

// Run is the event loop body of spec.md §4.14: drain ready inputs in
// round robin, push each event through the pipeline, advance timers,
// and react to shutdown signals, until Stop() (from a signal or an
// explicit call) finishes draining in-flight work.
func (s *Scheduler) Run() error {
	defer s.shutdown()

	events := make([]unix.EpollEvent, maxEpollEvents)
	for s.Alive.IsRunning() {
		timeout := s.nextTimeout()
		n, err := unix.EpollWait(s.epfd, events, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}

		s.drainSignals()
		if !s.Alive.IsRunning() {
			break
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == s.wakeupFD {
				s.drainWakeupPipe()
				continue
			}
			s.handleReadable(fd)
		}

		s.fireDueTimers()
	}
	return nil
}

// Stop requests a graceful shutdown: Run then returns, and its
// deferred shutdown releases grabs and closes devices. The lifecycle
// manager's persist policy calls it; a caught SIGINT/SIGTERM stops
// the loop the same way.
func (s *Scheduler) Stop() { s.Alive.Stop() }

func (s *Scheduler) drainSignals() {
	for {
		select {
		case sig := <-s.sigCh:
			switch sig {
			case syscall.SIGHUP:
				s.Log.Infof("received SIGHUP (no config reload implemented, ignoring)")
			default:
				s.Log.Infof("received %s, shutting down", sig)
				s.Alive.Stop()
			}
		default:
			return
		}
	}
}

// drainWakeupPipe empties the self-pipe's read end, which was set
// non-blocking in New so this loop terminates on EAGAIN instead of
// parking on the read syscall once no bytes remain (spec.md §4.14 step
// 5: a SIGHUP must return control to epoll_wait, not block on it).
//
// The raw fd is reached via SyscallConn rather than File.Fd(): calling
// Fd() on a poll-integrated *os.File puts its descriptor back into
// blocking mode as a side effect, which would silently undo the
// non-blocking setup from New on this very read.
func (s *Scheduler) drainWakeupPipe() {
	conn, err := s.wakeupR.SyscallConn()
	if err != nil {
		return
	}
	var buf [64]byte
	for {
		var n int
		cerr := conn.Read(func(fd uintptr) bool {
			n, _ = unix.Read(int(fd), buf[:])
			return true
		})
		if cerr != nil || n <= 0 {
			return
		}
	}
}

func (s *Scheduler) nextTimeout() int {
	if len(s.timers) == 0 {
		return -1
	}
	d := time.Until(s.timers[0].at)
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms > int64(1<<31-1) {
		return 1 << 31 - 1
	}
	return int(ms)
}

func (s *Scheduler) fireDueTimers() {
	now := time.Now()
	for len(s.timers) > 0 && !s.timers[0].at.After(now) {
		e := heap.Pop(&s.timers).(*timerEntry)
		if e.canceled {
			continue
		}
		e.fn(now)
	}
}

func (s *Scheduler) handleReadable(fd int) {
	s.inputsMu.Lock()
	var h *InputHandle
	for _, cur := range s.inputs {
		if cur.Device.Fd() == fd {
			h = cur
			break
		}
	}
	s.inputsMu.Unlock()
	if h != nil {
		s.readOneRecord(h)
	}
}

// readOneRecord reads exactly one record from one input's fd, per
// spec.md §5 "one event at a time", buffering it per Expansion C.6 and
// flushing the buffer as a unit once that handle's own SYN_REPORT
// arrives, so multiple interleaved --input devices each frame
// correctly regardless of read timing. epoll is level-triggered, so if
// more than one record is already queued on the fd it stays readable
// and the next wake-up picks up where this one left off.
func (s *Scheduler) readOneRecord(h *InputHandle) {
	raw, err := h.Device.ReadRaw()
	if err != nil {
		s.Log.Errorf("input %s: read error: %v", h.Device.Path, err)
		if s.OnInputError != nil {
			s.OnInputError(h, err)
		} else {
			s.RemoveInput(h)
		}
		return
	}
	e := event.New(raw.Type, raw.Code, raw.Value, h.Domain, h.ID)
	e.Time = raw.Time

	h.pending = append(h.pending, e)
	if e.IsSynReport(synReportType) {
		batch := h.pending
		h.pending = nil
		for _, pe := range batch {
			s.inject(pe, 0)
			// The tracker must still hold the pre-event value for every
			// predicate/target consulted while pe was dispatched above
			// (spec.md §4.2's read-then-update ordering), so this event
			// is only recorded once its whole downstream traversal is
			// done — ready as "previous value" for the next event of
			// the same (device, type, code) or (domain, type, code).
			s.Tracker().Observe(uint32(pe.Device), pe.Domain, pe.Type, pe.Code, pe.Value)
		}
	}
}

// inject pushes e through the pipeline starting at stage index
// fromIndex, per spec.md §4.14's continuation rule: synthesized
// follow-on events continue from the producing stage's successor,
// except yield-flagged events, which skip to the next Output only.
func (s *Scheduler) inject(e event.Event, fromIndex int) {
	if e.Yielded {
		s.injectToNextOutput(e, fromIndex)
		return
	}

	queue := []struct {
		ev  event.Event
		idx int
	}{{e, fromIndex}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.idx >= len(s.Program.Stages) {
			continue
		}

		produced := s.Program.Stages[cur.idx].Process(s, cur.ev)
		for _, pe := range produced {
			if pe.Yielded {
				s.injectToNextOutput(pe, cur.idx+1)
				continue
			}
			queue = append(queue, struct {
				ev  event.Event
				idx int
			}{pe, cur.idx + 1})
		}
	}
}

// injectToNextOutput implements the yield fast-path: skip every
// non-Output stage and deliver straight to the next Output stage at or
// after fromIndex (spec.md §3 "yielded... bypass all further stages
// except Output").
func (s *Scheduler) injectToNextOutput(e event.Event, fromIndex int) {
	for i := fromIndex; i < len(s.Program.Stages); i++ {
		out, ok := s.Program.Stages[i].(*stage.Output)
		if !ok {
			continue
		}
		out.Process(s, e)
		return
	}
}
