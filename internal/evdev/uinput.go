package evdev

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/evsieve/evsieve/internal/capability"
	"github.com/evsieve/evsieve/internal/ecodes"
	"github.com/evsieve/evsieve/internal/event"
	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

// Device signature for synthesized outputs, per SPEC_FULL.md
// Expansion C.2, grounded on original_source/src/io/output.rs /
// src/bindings/libevdev.rs's constant vendor/product/version.
const (
	outputVendor  = 0x1234
	outputProduct = 0x5678
	outputVersion = 0x1
	busUSB        = 0x03
)

// uinputUserDevSize is sizeof(struct uinput_user_dev): an 80-byte
// name, an 8-byte input_id, a 4-byte ff_effects_max, then four
// ABS_CNT(64)-length int32 arrays (absmax/absmin/absfuzz/absflat).
const (
	uinputNameSize = 80
	absCnt         = 64
	uinputUserDevSize = uinputNameSize + 8 + 4 + 4*absCnt*4
)

// OutputDevice creates and owns one /dev/uinput-backed virtual device.
// Implements stage.Device.
type OutputDevice struct {
	Name string
	f    *os.File
}

// CreateOutput opens /dev/uinput, declares caps's (type, code) pairs
// via UI_SET_EVBIT/UI_SET_*BIT, writes the legacy uinput_user_dev
// setup record, and issues UI_DEV_CREATE. Grounded on
// src/io/output.rs's setup sequence; the ioctl calling convention is
// the teacher's mdb.go raw-Syscall pattern, generalized, and the
// setup-by-write step mirrors the same file's use of a plain Write
// before the device-creation ioctl.
func CreateOutput(name string, caps *capability.Set) (*OutputDevice, error) {
	f, err := os.OpenFile("/dev/uinput", os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, errors.Annotate(err, "open /dev/uinput")
	}

	od := &OutputDevice{Name: name, f: f}

	// EV_SYN frames every report and is never itself a declared
	// capability (nothing in internal/capability ever adds it), but the
	// kernel still requires UI_SET_EVBIT for it like any other type
	// before UI_DEV_CREATE will let the device emit it.
	if err := od.ioctl(uiSetEvbit, uintptr(ecodes.EV_SYN)); err != nil {
		f.Close()
		return nil, errors.Annotate(err, "UI_SET_EVBIT type=EV_SYN")
	}

	seenTypes := make(map[uint16]bool)
	for _, k := range caps.Keys() {
		if !seenTypes[k.Type] {
			seenTypes[k.Type] = true
			if err := od.ioctl(uiSetEvbit, uintptr(k.Type)); err != nil {
				f.Close()
				return nil, errors.Annotatef(err, "UI_SET_EVBIT type=%d", k.Type)
			}
		}
		if err := od.setCodeBit(k.Type, k.Code); err != nil {
			f.Close()
			return nil, err
		}
	}

	if err := od.writeSetupRecord(name); err != nil {
		f.Close()
		return nil, errors.Annotate(err, "uinput setup write")
	}

	if err := od.ioctl(uiDevCreate, 0); err != nil {
		f.Close()
		return nil, errors.Annotate(err, "UI_DEV_CREATE")
	}
	return od, nil
}

func (od *OutputDevice) writeSetupRecord(name string) error {
	buf := make([]byte, uinputUserDevSize)
	copy(buf[:uinputNameSize], name)
	idOff := uinputNameSize
	binary.LittleEndian.PutUint16(buf[idOff:], busUSB)
	binary.LittleEndian.PutUint16(buf[idOff+2:], outputVendor)
	binary.LittleEndian.PutUint16(buf[idOff+4:], outputProduct)
	binary.LittleEndian.PutUint16(buf[idOff+6:], outputVersion)
	_, err := od.f.Write(buf)
	return err
}

func (od *OutputDevice) setCodeBit(typ, code uint16) error {
	var req uintptr
	switch typ {
	case ecodes.EV_KEY:
		req = uiSetKeybit
	case ecodes.EV_REL:
		req = uiSetRelbit
	case ecodes.EV_ABS:
		req = uiSetAbsbit
	case ecodes.EV_MSC:
		req = uiSetMscbit
	default:
		return nil
	}
	return od.ioctl(req, uintptr(code))
}

// Write implements stage.Device.
func (od *OutputDevice) Write(e event.Event) error {
	return writeRawRecord(od.f, e.Type, e.Code, e.Value)
}

// SetKernelAutoRepeat implements stage.Device. It does not configure
// kernel-side auto-repeat: it always returns nil without touching the
// device, and CreateOutput never declares EV_REP, so under
// repeat=enable this device receives no key-repeat events at all.
func (od *OutputDevice) SetKernelAutoRepeat(enable bool) error {
	return nil
}

func (od *OutputDevice) Close() error {
	_ = od.ioctl(uiDevDestroy, 0)
	return od.f.Close()
}

// Sysname reads back the kernel-assigned "uinput-N" name of this
// device via UI_GET_SYSNAME, the starting point for resolving its
// /dev/input/eventN node.
func (od *OutputDevice) Sysname() (string, error) {
	buf := make([]byte, 64)
	if err := od.ioctlBuf(uiGetSysname(uintptr(len(buf))), buf); err != nil {
		return "", errors.Annotate(err, "UI_GET_SYSNAME")
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), nil
}

// DevicePath resolves the /dev/input/eventN node the kernel created
// for this virtual device, via the standard sysfs evdev child-node
// layout under its sysname, for create-link symlink targets
// (spec.md §6).
func (od *OutputDevice) DevicePath() (string, error) {
	name, err := od.Sysname()
	if err != nil {
		return "", err
	}
	matches, err := filepath.Glob("/sys/devices/virtual/input/" + name + "/event*")
	if err != nil {
		return "", errors.Trace(err)
	}
	if len(matches) == 0 {
		return "", errors.Errorf("no event node found under uinput device %s", name)
	}
	return "/dev/input/" + filepath.Base(matches[0]), nil
}

func (od *OutputDevice) ioctl(req, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, od.f.Fd(), req, arg)
	if errno != 0 {
		return os.NewSyscallError("ioctl", errno)
	}
	return nil
}

func (od *OutputDevice) ioctlBuf(req uintptr, buf []byte) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, od.f.Fd(), req, uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return os.NewSyscallError("ioctl", errno)
	}
	return nil
}
