// Package evdev is the device-kernel interface, spec.md §1's "external
// collaborator with a narrow, specified interface": reading raw
// records from character devices, introspecting their reported
// capabilities, creating/destroying uinput virtual devices, and
// grabbing/ungrabbing. Grounded throughout on the teacher's
// `mdb/mdb.go` raw-ioctl calling convention and the vendored
// `temoto/inputevent-go` wire-record shape, generalized from
// serial/termios to evdev/uinput.
package evdev

import (
	"os"
	"unsafe"

	"github.com/evsieve/evsieve/internal/capability"
	"github.com/evsieve/evsieve/internal/ecodes"
	"github.com/evsieve/evsieve/internal/event"
	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

// InputDevice wraps one open evdev character device.
type InputDevice struct {
	Path string
	f    *os.File

	grabbed bool
}

// Open opens the device at path read-write (read-write is required to
// issue EVIOCGRAB; read-only still works for plain reads).
func Open(path string) (*InputDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Annotatef(err, "open %s", path)
	}
	return &InputDevice{Path: path, f: f}, nil
}

func (d *InputDevice) Fd() int { return int(d.f.Fd()) }

func (d *InputDevice) Close() error {
	return d.f.Close()
}

// ReadRaw blocks until one evdev record is available and decodes it.
func (d *InputDevice) ReadRaw() (rawRecord, error) {
	return readRawRecord(d.f)
}

// Grab issues EVIOCGRAB(1): exclusive access, so events stop reaching
// any other consumer of this device node (spec.md §6 grab semantics).
func (d *InputDevice) Grab() error {
	if err := d.ioctl(eviocgrab, 1); err != nil {
		return errors.Annotatef(err, "EVIOCGRAB %s", d.Path)
	}
	d.grabbed = true
	return nil
}

func (d *InputDevice) Ungrab() error {
	if !d.grabbed {
		return nil
	}
	if err := d.ioctl(eviocgrab, 0); err != nil {
		return errors.Annotatef(err, "EVIOCGRAB(release) %s", d.Path)
	}
	d.grabbed = false
	return nil
}

// AnyKeyDown issues EVIOCGKEY and reports whether any EV_KEY bit is
// currently set, used by `grab=auto`'s precondition (spec.md §9 /
// SPEC_FULL.md Expansion D): evaluated per-device, at that device's
// own open time.
func (d *InputDevice) AnyKeyDown() (bool, error) {
	const maxKeys = 768 // KEY_MAX+1, rounded up to a byte boundary
	buf := make([]byte, (maxKeys+7)/8)
	if err := d.ioctlBuf(eviocgkey(uintptr(len(buf))), buf); err != nil {
		return false, errors.Annotatef(err, "EVIOCGKEY %s", d.Path)
	}
	for _, b := range buf {
		if b != 0 {
			return true, nil
		}
	}
	return false, nil
}

// Capabilities introspects every (type, code) this device can report,
// via EVIOCGBIT per event type, seeding the capability propagation
// pass (spec.md §4.13) with real kernel data instead of a static guess.
func (d *InputDevice) Capabilities() (*capability.Set, error) {
	set := capability.NewSet()
	for _, typ := range []uint16{ecodes.EV_KEY, ecodes.EV_REL, ecodes.EV_ABS, ecodes.EV_MSC, ecodes.EV_SW, ecodes.EV_LED, ecodes.EV_SND} {
		const maxCodes = 768
		buf := make([]byte, (maxCodes+7)/8)
		if err := d.ioctlBuf(eviocgbit(uintptr(typ), uintptr(len(buf))), buf); err != nil {
			continue // not all event types are reported by every device
		}
		for code := 0; code < maxCodes; code++ {
			byteIdx, bit := code/8, uint(code%8)
			if buf[byteIdx]&(1<<bit) == 0 {
				continue
			}
			set.Add(capability.Key{Type: typ, Code: uint16(code)}, capability.Full)
		}
	}
	return set, nil
}

func (d *InputDevice) ioctl(req, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), req, arg)
	if errno != 0 {
		return os.NewSyscallError("ioctl", errno)
	}
	return nil
}

func (d *InputDevice) ioctlBuf(req uintptr, buf []byte) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), req, uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return os.NewSyscallError("ioctl", errno)
	}
	return nil
}

// Decode turns a raw record into an event.Event with no Domain and no
// Device set. The scheduler does not use it: it builds its events with
// event.New from the record's fields.
func Decode(r rawRecord) event.Event {
	return event.Event{
		Type:  r.Type,
		Code:  r.Code,
		Value: r.Value,
		Time:  r.Time,
	}
}
