// Package lifecycle is the lifecycle manager, spec.md §4.14 / §6:
// deferred/idempotent grab, reopen-on-disconnect, symlink creation and
// atomic replacement, graceful shutdown, and one-shot readiness
// notification. It is the only layer that touches the filesystem and
// sends the systemd readiness notification outside the compiled
// pipeline and the scheduler's own epoll set (cmd/evsieve only probes
// the notify socket with a status message), keeping the event loop itself free of blocking I/O (spec.md
// §5's "blocking points: only the top-level wait").
//
// Grounded on the teacher's cmd/vender/subcmd/subcmd.go readiness
// notification and its helpers.Backoff poll-retry shape, generalized
// from MDB bus reconnection to evdev device reopen.
package lifecycle

import (
	"sync"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/evsieve/evsieve/internal/capability"
	"github.com/evsieve/evsieve/internal/domain"
	"github.com/evsieve/evsieve/internal/evdev"
	"github.com/evsieve/evsieve/internal/log2"
	"github.com/evsieve/evsieve/internal/pipeline"
	"github.com/evsieve/evsieve/internal/runtime"
	"github.com/evsieve/evsieve/internal/stage"
	"github.com/juju/errors"
)

// inputState tracks one opened --input device across its lifetime,
// including the fields a reopen needs to reproduce the original open.
type inputState struct {
	spec   pipeline.InputSpec
	path   string
	domain domain.ID
	handle *runtime.InputHandle
}

// outputState pairs a compiled Output stage with the live device
// backing it and the capability set that device was created with, so
// a capability-driven recreate (spec.md §6) can tell when to rebuild
// it. The Output's symlink, if any, is kept in Manager.links.
type outputState struct {
	stage *stage.Output
	dev   *evdev.OutputDevice
	caps  *capability.Set
}

// Manager owns every device handle and filesystem side effect outside
// the compiled pipeline itself.
type Manager struct {
	log   *log2.Log
	sched *runtime.Scheduler
	prog  *pipeline.Program

	mu         sync.Mutex
	inputs     map[string]*inputState
	inputCaps  map[string]*capability.Set
	outputs    []*outputState
	links      map[*stage.Output]string
}

func New(prog *pipeline.Program, sched *runtime.Scheduler, log *log2.Log) *Manager {
	m := &Manager{
		log:       log,
		sched:     sched,
		prog:      prog,
		inputs:    make(map[string]*inputState),
		inputCaps: make(map[string]*capability.Set),
		links:     make(map[*stage.Output]string),
	}
	sched.OnInputError = m.handleInputError
	return m
}

// Open performs every startup-time side effect: opening and grabbing
// every --input device, propagating their real kernel capabilities
// through the compiled pipeline, and creating every --output virtual
// device plus any requested symlink. Errors here are startup errors
// (spec.md §7 kinds 1-3): fatal, reported, and the event loop never
// starts.
func (m *Manager) Open() error {
	for _, spec := range m.prog.Inputs {
		for _, path := range spec.Paths {
			if err := m.openInput(spec, path); err != nil {
				return errors.Annotatef(err, "--input %s", path)
			}
		}
	}

	m.repropagate()

	for _, out := range m.prog.Outputs {
		if err := m.openOutput(out); err != nil {
			return errors.Annotatef(err, "--output %s", out.DeviceName)
		}
	}

	return nil
}

func (m *Manager) openInput(spec pipeline.InputSpec, path string) error {
	dev, err := evdev.Open(path)
	if err != nil {
		return err
	}

	domName := spec.Domain
	if domName == "" {
		domName = path
	}
	domID := domain.Intern(domName)

	if err := m.grab(dev, spec.Grab); err != nil {
		dev.Close()
		return err
	}

	caps, err := dev.Capabilities()
	if err != nil {
		dev.Close()
		return err
	}

	h, err := m.sched.AddInput(dev, domID)
	if err != nil {
		dev.Close()
		return err
	}

	m.mu.Lock()
	m.inputs[path] = &inputState{spec: spec, path: path, domain: domID, handle: h}
	m.inputCaps[path] = caps
	m.mu.Unlock()

	return nil
}

// grab applies spec.md Expansion D: grab=auto inspects only this
// device's own currently-held keys, never another --input's.
func (m *Manager) grab(dev *evdev.InputDevice, mode string) error {
	switch mode {
	case pipeline.GrabNone:
		return nil
	case pipeline.GrabForce:
		return dev.Grab()
	default: // auto
		down, err := dev.AnyKeyDown()
		if err != nil {
			return err
		}
		if down {
			m.log.Infof("input %s: a key is already held, not grabbing", dev.Path)
			return nil
		}
		return dev.Grab()
	}
}

// repropagate recomputes capability flow from the current union of
// every live input's capabilities, assigning each compiled Output's
// Capabilities field in place.
func (m *Manager) repropagate() {
	m.mu.Lock()
	caps := make([]*capability.Set, 0, len(m.inputCaps))
	for _, c := range m.inputCaps {
		caps = append(caps, c)
	}
	m.mu.Unlock()
	pipeline.PropagateCapabilities(m.prog, caps)
}

func (m *Manager) openOutput(out *stage.Output) error {
	dev, err := evdev.CreateOutput(out.DeviceName, out.Capabilities)
	if err != nil {
		return err
	}
	if err := out.Open(dev); err != nil {
		dev.Close()
		return err
	}

	st := &outputState{stage: out, dev: dev, caps: out.Capabilities.Clone()}
	m.mu.Lock()
	m.outputs = append(m.outputs, st)
	m.mu.Unlock()

	if out.CreateLink != "" {
		target, err := dev.DevicePath()
		if err != nil {
			return errors.Annotate(err, "resolving uinput device node")
		}
		if err := atomicSymlink(target, out.CreateLink); err != nil {
			return errors.Annotatef(err, "create-link=%s", out.CreateLink)
		}
		m.mu.Lock()
		m.links[out] = out.CreateLink
		m.mu.Unlock()
	}
	return nil
}

// NotifyReady sends the one-shot systemd readiness notification
// (spec.md §6) once every input is open and every output is created.
// A missing or refusing service manager is not an error: evsieve runs
// standalone just as often as it runs under one.
func (m *Manager) NotifyReady() {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		m.log.Debugf("sd_notify: %v", err)
	} else if sent {
		m.log.Infof("sent systemd readiness notification")
	}
}

// Close removes every symlink this manager created. Device teardown
// itself is the scheduler's responsibility (internal/runtime's
// shutdown), since the scheduler already owns the authoritative input
// and output handle lists by the time the process is exiting.
func (m *Manager) Close() {
	m.mu.Lock()
	links := make(map[*stage.Output]string, len(m.links))
	for k, v := range m.links {
		links[k] = v
	}
	m.mu.Unlock()
	for _, path := range links {
		removeSymlink(path, m.log)
	}
}
