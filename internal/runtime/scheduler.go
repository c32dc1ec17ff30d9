// Package runtime implements the scheduler, spec.md §4.14 / §5: a
// single-threaded cooperative core that multiplexes readable input
// devices, a timer source (Delay reinjection, ScheduleTimer callbacks), a
// child-process reaper, and SIGINT/SIGTERM/SIGHUP, driving events
// through a compiled pipeline.Program.
//
// Grounded on original_source/src/io/epoll.rs for the multiplex shape
// and on the teacher's cmd/vender/main.go single `select` loop for the
// "one loop, one owner of all mutable state" idiom; golang.org/x/sys/unix
// supplies epoll directly (no fictional ioctls needed here, unlike
// internal/evdev's evdev/uinput requests). github.com/temoto/alive/v2
// is the shutdown coordinator, exactly as the teacher threads one
// *alive.Alive through Client/Global.
package runtime

import (
	"container/heap"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/evsieve/evsieve/internal/clock"
	"github.com/evsieve/evsieve/internal/domain"
	"github.com/evsieve/evsieve/internal/ecodes"
	"github.com/evsieve/evsieve/internal/event"
	"github.com/evsieve/evsieve/internal/evdev"
	"github.com/evsieve/evsieve/internal/log2"
	"github.com/evsieve/evsieve/internal/pipeline"
	"github.com/evsieve/evsieve/internal/stage"
	"github.com/evsieve/evsieve/internal/track"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"golang.org/x/sys/unix"
)

// InputHandle pairs an open device with the compile-time options that
// apply to it (spec.md Expansion C.1/C.6): its interned domain, and a
// per-handle pending-report buffer so multiple interleaved --input
// devices each frame their own SYN_REPORT boundary independently.
type InputHandle struct {
	Device *evdev.InputDevice
	ID     event.DeviceID
	Domain domain.ID

	pending []event.Event
}

// Scheduler owns every piece of mutable runtime state: the tracker,
// the input handles, the timer heap, and outstanding children. The
// child reaper goroutines (os/exec's Wait blocks) update the children
// slice under childMu, and the lifecycle manager's reopen goroutines
// add and remove input handles under inputsMu.
type Scheduler struct {
	Program *pipeline.Program
	Log     *log2.Log
	Alive   *alive.Alive

	clock    clock.Clock
	tracker  *track.Tracker
	inputsMu sync.Mutex
	inputs   []*InputHandle
	epfd     int

	// OnInputError, if set, is invoked on the event loop's own call
	// stack (from readOneRecord) when a read from an input device
	// fails, so the lifecycle manager can
	// apply the persist policy (spec.md §7 kind 4) instead of the
	// scheduler needing to know about grab/reopen/exit itself.
	OnInputError func(h *InputHandle, err error)

	wakeupR  *os.File
	wakeupW  *os.File
	wakeupFD int

	timers   timerHeap
	nextID   int

	childMu sync.Mutex
	running []*exec.Cmd

	sigCh chan os.Signal
}

func New(prog *pipeline.Program, log *log2.Log) (*Scheduler, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, errors.Annotate(err, "epoll_create1")
	}
	r, w, err := os.Pipe()
	if err != nil {
		return nil, errors.Annotate(err, "self-pipe")
	}
	// The read end is drained with a raw, non-blocking unix.Read (see
	// drainWakeupPipe): os.Pipe gives a blocking fd, and without this
	// the drain loop parks on the read syscall once the one signal byte
	// is consumed instead of seeing EAGAIN, freezing the whole event
	// loop on the next SIGHUP/wakeup. The raw fd is cached once here
	// because *os.File.Fd() itself puts the descriptor back into
	// blocking mode on every call, which would silently undo this.
	wakeupFD := int(r.Fd())
	if err := unix.SetNonblock(wakeupFD, true); err != nil {
		r.Close()
		w.Close()
		return nil, errors.Annotate(err, "self-pipe SetNonblock")
	}

	s := &Scheduler{
		Program:  prog,
		Log:      log,
		Alive:    alive.NewAlive(),
		clock:    clock.System{},
		tracker:  track.New(),
		epfd:     epfd,
		wakeupR:  r,
		wakeupW:  w,
		wakeupFD: wakeupFD,
		sigCh:    make(chan os.Signal, 4),
	}

	if err := s.epollAdd(wakeupFD); err != nil {
		return nil, errors.Annotate(err, "epoll_ctl wakeup pipe")
	}

	signal.Notify(s.sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go s.forwardSignals()

	return s, nil
}

// AddInput registers an opened device under the given domain, per
// spec.md §5's "fair round-robin" draining.
func (s *Scheduler) AddInput(dev *evdev.InputDevice, dom domain.ID) (*InputHandle, error) {
	h := &InputHandle{
		Device: dev,
		ID:     event.DeviceID(len(s.inputs) + 1),
		Domain: dom,
	}
	if err := s.epollAdd(dev.Fd()); err != nil {
		return nil, errors.Annotatef(err, "epoll_ctl add %s", dev.Path)
	}
	s.inputsMu.Lock()
	s.inputs = append(s.inputs, h)
	s.inputsMu.Unlock()
	return h, nil
}

// RemoveInput drops a handle from the epoll set, e.g. after a read
// error the persist policy decided not to retry in place (spec.md §7
// kind 4): either the device is being reopened under a fresh fd, or
// the process is giving up on it for good.
func (s *Scheduler) RemoveInput(h *InputHandle) {
	unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, h.Device.Fd(), nil)
	s.inputsMu.Lock()
	for i, cur := range s.inputs {
		if cur == h {
			s.inputs = append(s.inputs[:i], s.inputs[i+1:]...)
			break
		}
	}
	s.inputsMu.Unlock()
}

// InputCount reports how many input handles are currently registered,
// used by the lifecycle manager's persist=none policy to decide
// whether losing one device should end the process (spec.md §7 kind 4).
func (s *Scheduler) InputCount() int {
	s.inputsMu.Lock()
	defer s.inputsMu.Unlock()
	return len(s.inputs)
}

func (s *Scheduler) epollAdd(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (s *Scheduler) forwardSignals() {
	for range s.sigCh {
		// A byte on the wakeup pipe is enough to break epoll_wait; the
		// signal itself is re-read from sigCh in the main loop.
		s.wakeupW.Write([]byte{0})
	}
}

// --- stage.Runtime implementation ---

func (s *Scheduler) Tracker() *track.Tracker { return s.tracker }
func (s *Scheduler) Now() time.Time          { return s.clock.Now() }

// SetClock lets tests substitute a clock.Fixed so Delay/Hook-period
// timers can be advanced deterministically instead of sleeping.
func (s *Scheduler) SetClock(c clock.Clock) { s.clock = c }

func (s *Scheduler) ScheduleDelay(ev event.Event, fromStage int, at time.Time) {
	s.nextID++
	heap.Push(&s.timers, &timerEntry{
		id: s.nextID,
		at: at,
		fn: func(time.Time) {
			s.inject(ev, fromStage+1)
		},
	})
}

func (s *Scheduler) ScheduleTimer(at time.Time, fn func(now time.Time)) (cancel func()) {
	s.nextID++
	e := &timerEntry{id: s.nextID, at: at, fn: fn}
	heap.Push(&s.timers, e)
	return func() { e.canceled = true }
}

func (s *Scheduler) SpawnShell(cmdline string) {
	if !s.Alive.Add(1) {
		return
	}
	cmd := exec.Command("sh", "-c", cmdline)
	cmd.Env = filterEnv(os.Environ())
	s.childMu.Lock()
	s.running = append(s.running, cmd)
	s.childMu.Unlock()

	if err := cmd.Start(); err != nil {
		s.Log.Errorf("exec-shell %q: %v", cmdline, err)
		s.removeChild(cmd)
		s.Alive.Done()
		return
	}
	go func() {
		_ = cmd.Wait()
		s.removeChild(cmd)
		s.Alive.Done()
	}()
}

func (s *Scheduler) removeChild(cmd *exec.Cmd) {
	s.childMu.Lock()
	defer s.childMu.Unlock()
	for i, c := range s.running {
		if c == cmd {
			s.running = append(s.running[:i], s.running[i+1:]...)
			return
		}
	}
}

// filterEnv drops evsieve-internal environment variables before
// spawning exec-shell children, per spec.md §4.9.
func filterEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if len(kv) >= 8 && kv[:8] == "EVSIEVE_" {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func (s *Scheduler) terminateChildren() {
	s.childMu.Lock()
	defer s.childMu.Unlock()
	for _, c := range s.running {
		if c.Process != nil {
			_ = c.Process.Signal(syscall.SIGTERM)
		}
	}
}

// Logf implements stage.Runtime: diagnostic logging only (spec.md §7
// kind 5), never affecting the event stream.
func (s *Scheduler) Logf(format string, args ...interface{}) {
	s.Log.Debugf(format, args...)
}

// shutdown releases every kernel-owned resource the scheduler holds,
// in the order spec.md §9 describes for process exit: stop accepting
// new children, wait for exec-shell children to exit, release input
// grabs, destroy output devices, then close the multiplexer itself.
// Best-effort throughout; a failure on one handle must not stop the
// rest from being released.
func (s *Scheduler) shutdown() {
	s.terminateChildren()
	s.childMu.Lock()
	children := append([]*exec.Cmd(nil), s.running...)
	s.childMu.Unlock()
	for _, c := range children {
		_ = c.Wait()
	}

	for _, h := range s.inputs {
		if err := h.Device.Ungrab(); err != nil {
			s.Log.Errorf("ungrab %s: %v", h.Device.Path, err)
		}
		if err := h.Device.Close(); err != nil {
			s.Log.Errorf("close %s: %v", h.Device.Path, err)
		}
	}

	for _, out := range s.Program.Outputs {
		if err := out.Close(); err != nil {
			s.Log.Errorf("close output %s: %v", out.DeviceName, err)
		}
	}

	unix.Close(s.epfd)
	s.wakeupR.Close()
	s.wakeupW.Close()
}

var _ stage.Runtime = (*Scheduler)(nil)

const synReportType = ecodes.EV_SYN
