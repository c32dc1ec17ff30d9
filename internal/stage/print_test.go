package stage

import (
	"bytes"
	"testing"

	"github.com/evsieve/evsieve/internal/domain"
	"github.com/evsieve/evsieve/internal/ecodes"
	"github.com/evsieve/evsieve/internal/event"
	"github.com/sebdah/goldie/v2"
)

// TestPrintDefaultFormat pins the exact advisory line format spec.md
// §4.11 describes, since it's read by humans watching a terminal and
// must stay stable even as the implementation changes around it.
func TestPrintDefaultFormat(t *testing.T) {
	p := NewPrint(nil, PrintFormatDefault)
	var buf bytes.Buffer
	p.Out = &buf

	rt := newFakeRuntime()
	dom := domain.Intern("my-device")

	events := []event.Event{
		{Type: ecodes.EV_KEY, Code: 30, Value: 1, Domain: dom},
		{Type: ecodes.EV_KEY, Code: 30, Value: 0, Domain: dom},
		{Type: ecodes.EV_SYN, Code: 0, Value: 0, Domain: dom},
	}
	for _, e := range events {
		p.Process(rt, e)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "print_default_format", buf.Bytes())
}
