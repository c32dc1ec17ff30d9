package lifecycle

import (
	"path/filepath"
	"time"

	"github.com/evsieve/evsieve/internal/evdev"
	"github.com/evsieve/evsieve/internal/pipeline"
	"github.com/evsieve/evsieve/internal/runtime"
	"github.com/fsnotify/fsnotify"
)

const (
	reopenInitialBackoff = 250 * time.Millisecond
	reopenMaxBackoff     = 5 * time.Second
)

// handleInputError applies spec.md §7 kind 4's persist policy to a
// failed input read: close/exit under persist=none if no input
// remains, terminate under persist=exit, or retry with backoff under
// persist=reopen. Runs on the scheduler's own call stack (inside
// readOneRecord), so it must not block; reopen retries are handed off
// to their own goroutine.
func (m *Manager) handleInputError(h *runtime.InputHandle, readErr error) {
	m.mu.Lock()
	st, ok := m.inputs[h.Device.Path]
	if ok {
		delete(m.inputs, h.Device.Path)
		delete(m.inputCaps, h.Device.Path)
	}
	m.mu.Unlock()

	m.sched.RemoveInput(h)
	h.Device.Close()

	if !ok {
		return
	}

	switch st.spec.Persist {
	case pipeline.PersistExit:
		m.log.Infof("input %s vanished (%v), persist=exit: shutting down", st.path, readErr)
		m.sched.Stop()

	case pipeline.PersistReopen:
		m.log.Infof("input %s vanished (%v), persist=reopen: waiting for it to reappear", st.path, readErr)
		go m.reopenLoop(st)

	default: // persist=none
		if m.sched.InputCount() == 0 {
			m.log.Infof("input %s vanished (%v), no inputs remain: shutting down", st.path, readErr)
			m.sched.Stop()
		} else {
			m.log.Infof("input %s vanished (%v), persist=none: dropped, other inputs remain", st.path, readErr)
		}
	}
}

// reopenLoop retries opening st.path until it reappears or shutdown is
// requested, preferring an fsnotify watch on the parent directory over
// pure polling (SPEC_FULL.md Expansion B), falling back to
// exponential-backoff polling if no watch can be established.
func (m *Manager) reopenLoop(st *inputState) {
	if m.tryReopen(st) {
		return
	}

	dir := filepath.Dir(st.path)
	base := filepath.Base(st.path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.pollReopen(st)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		m.pollReopen(st)
		return
	}

	for m.sched.Alive.IsRunning() {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create == 0 || filepath.Base(ev.Name) != base {
				continue
			}
			if m.tryReopen(st) {
				return
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		case <-time.After(reopenMaxBackoff):
			// The directory itself may have come and gone, or the
			// create event may have been missed between watcher setup
			// and the first stat; a periodic nudge keeps this from
			// wedging forever on a missed notification.
			if m.tryReopen(st) {
				return
			}
		}
	}
}

func (m *Manager) pollReopen(st *inputState) {
	backoff := reopenInitialBackoff
	for m.sched.Alive.IsRunning() {
		time.Sleep(backoff)
		if m.tryReopen(st) {
			return
		}
		if backoff < reopenMaxBackoff {
			backoff *= 2
		}
	}
}

// tryReopen attempts one reopen of st.path, re-grabbing, re-adding to
// the scheduler, and re-propagating/recreating outputs whose declared
// capabilities would otherwise no longer be a superset of what can
// reach them (spec.md §6 "device identity preserved" / §9 hotplug
// reopen). Reports whether it succeeded.
func (m *Manager) tryReopen(st *inputState) bool {
	dev, err := evdev.Open(st.path)
	if err != nil {
		return false
	}

	if err := m.grab(dev, st.spec.Grab); err != nil {
		m.log.Errorf("re-grab %s: %v", st.path, err)
		dev.Close()
		return false
	}

	caps, err := dev.Capabilities()
	if err != nil {
		m.log.Errorf("re-introspecting %s: %v", st.path, err)
		dev.Close()
		return false
	}

	h, err := m.sched.AddInput(dev, st.domain)
	if err != nil {
		m.log.Errorf("re-adding %s: %v", st.path, err)
		dev.Close()
		return false
	}

	m.mu.Lock()
	m.inputs[st.path] = &inputState{spec: st.spec, path: st.path, domain: st.domain, handle: h}
	m.inputCaps[st.path] = caps
	m.mu.Unlock()

	m.log.Infof("input %s reopened", st.path)

	// Capability re-propagation touches every compiled Output's shared
	// *capability.Set in place; running it via the scheduler's own
	// timer queue keeps that mutation on the single goroutine that
	// also reads it from Output.Process, rather than adding a lock.
	m.sched.ScheduleTimer(time.Now(), func(time.Time) {
		m.reconcileOutputs()
	})

	return true
}

// reconcileOutputs re-propagates capabilities from the current set of
// live inputs and recreates any Output whose declared capability set
// changed as a result, atomically re-pointing its symlink so
// downstream consumers never observe a broken link (spec.md §6/§9).
func (m *Manager) reconcileOutputs() {
	m.repropagate()

	m.mu.Lock()
	outputs := append([]*outputState(nil), m.outputs...)
	m.mu.Unlock()

	for _, st := range outputs {
		if st.caps.Equal(st.stage.Capabilities) {
			continue
		}
		if err := m.recreateOutput(st); err != nil {
			m.log.Errorf("recreating output %s after capability change: %v", st.stage.DeviceName, err)
		}
	}
}

func (m *Manager) recreateOutput(st *outputState) error {
	newCaps := st.stage.Capabilities.Clone()

	newDev, err := evdev.CreateOutput(st.stage.DeviceName, newCaps)
	if err != nil {
		return err
	}

	oldDev := st.dev
	if err := st.stage.Open(newDev); err != nil {
		newDev.Close()
		return err
	}
	st.dev = newDev
	st.caps = newCaps

	if link, ok := m.links[st.stage]; ok {
		target, err := newDev.DevicePath()
		if err == nil {
			if lerr := atomicSymlink(target, link); lerr != nil {
				m.log.Errorf("re-pointing create-link=%s: %v", link, lerr)
			}
		} else {
			m.log.Errorf("resolving recreated device node for %s: %v", st.stage.DeviceName, err)
		}
	}

	oldDev.Close()
	m.log.Infof("output %s recreated: capabilities changed", st.stage.DeviceName)
	return nil
}
