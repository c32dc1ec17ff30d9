package evdev

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/juju/errors"
)

// recordSize is sizeof(struct input_event) on a 64-bit kernel: two
// 8-byte timeval fields (sec, usec) followed by type/code/value.
// Grounded on the teacher's vendored inputevent-go InputEvent, which
// gets the same 24 bytes by overlaying a Go struct with unsafe.Pointer
// over the raw read buffer (vendor/github.com/temoto/inputevent-go/parse.go);
// this package instead decodes the fields explicitly with
// encoding/binary so record layout doesn't depend on Go struct padding
// matching the kernel's on every platform this builds for.
const recordSize = 24

// rawRecord is one decoded struct input_event.
type rawRecord struct {
	Time  time.Time
	Type  uint16
	Code  uint16
	Value int32
}

func readRawRecord(r io.Reader) (rawRecord, error) {
	var buf [recordSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return rawRecord{}, errors.Trace(err)
	}
	sec := int64(binary.LittleEndian.Uint64(buf[0:8]))
	usec := int64(binary.LittleEndian.Uint64(buf[8:16]))
	typ := binary.LittleEndian.Uint16(buf[16:18])
	code := binary.LittleEndian.Uint16(buf[18:20])
	value := int32(binary.LittleEndian.Uint32(buf[20:24]))
	return rawRecord{
		Time:  time.Unix(sec, usec*1000),
		Type:  typ,
		Code:  code,
		Value: value,
	}, nil
}

func writeRawRecord(w io.Writer, typ, code uint16, value int32) error {
	var buf [recordSize]byte
	now := time.Now()
	binary.LittleEndian.PutUint64(buf[0:8], uint64(now.Unix()))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(now.Nanosecond()/1000))
	binary.LittleEndian.PutUint16(buf[16:18], typ)
	binary.LittleEndian.PutUint16(buf[18:20], code)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(value))
	_, err := w.Write(buf[:])
	return errors.Trace(err)
}
