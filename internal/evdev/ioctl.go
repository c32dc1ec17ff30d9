package evdev

import "unsafe"

// Linux ioctl request-number construction, mirrored from
// <asm-generic/ioctl.h>, since golang.org/x/sys/unix does not expose
// the evdev/uinput-specific request numbers this package needs.
// Grounded on the teacher's direct `syscall.Syscall(syscall.SYS_IOCTL,
// fd, op, arg)` calling convention (mdb/mdb.go's `ioctl` method),
// generalized from termios ioctls to evdev/uinput ioctls of the same
// shape.
const (
	iocNRBITS   = 8
	iocTYPEBITS = 8
	iocSIZEBITS = 14
	iocDIRBITS  = 2

	iocNRSHIFT   = 0
	iocTYPESHIFT = iocNRSHIFT + iocNRBITS
	iocSIZESHIFT = iocTYPESHIFT + iocTYPEBITS
	iocDIRSHIFT  = iocSIZESHIFT + iocSIZEBITS

	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return (dir << iocDIRSHIFT) | (typ << iocTYPESHIFT) | (nr << iocNRSHIFT) | (size << iocSIZESHIFT)
}

func ior(typ, nr, size uintptr) uintptr  { return ioc(iocRead, typ, nr, size) }
func iow(typ, nr, size uintptr) uintptr  { return ioc(iocWrite, typ, nr, size) }
func iorw(typ, nr, size uintptr) uintptr { return ioc(iocRead|iocWrite, typ, nr, size) }

const evdevIOCType = uintptr('E')

func eviocgbit(evType uintptr, len uintptr) uintptr {
	return ior(evdevIOCType, 0x20+evType, len)
}

func eviocgkey(len uintptr) uintptr {
	return ior(evdevIOCType, 0x18, len)
}

var eviocgrab = iow(evdevIOCType, 0x90, unsafe.Sizeof(int(0)))
var eviocgversion = ior(evdevIOCType, 0x01, unsafe.Sizeof(int(0)))

const (
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiSetEvbit   = 0x40045564
	uiSetKeybit  = 0x40045565
	uiSetRelbit  = 0x40045566
	uiSetAbsbit  = 0x40045567
	uiSetMscbit  = 0x40045568
	uiSetPhys    = 0x4008556c
)

const uinputIOCType = uintptr('U')

// uiGetSysname is UI_GET_SYSNAME(len): reads back the kernel-chosen
// "uinput-N" sysfs name of a created device, the only way to find its
// /dev/input/eventN node since UI_DEV_CREATE doesn't return one.
func uiGetSysname(len uintptr) uintptr {
	return ior(uinputIOCType, 44, len)
}
