package stage

import (
	"fmt"
	"io"
	"os"

	"github.com/evsieve/evsieve/internal/ecodes"
	"github.com/evsieve/evsieve/internal/event"
	"github.com/evsieve/evsieve/internal/key"
)

const (
	PrintFormatDefault = "default"
	PrintFormatDirect  = "direct"
)

// Print implements spec.md §4.11: "Print [predicate…] [format=default|direct]".
// Passes events through unchanged; writes one advisory, non-machine-
// parsable line per matching event (spec.md §1 Non-goals).
type Print struct {
	Predicates []key.Predicate
	Format     string
	Out        io.Writer
}

func NewPrint(preds []key.Predicate, format string) *Print {
	if format == "" {
		format = PrintFormatDefault
	}
	return &Print{Predicates: preds, Format: format, Out: os.Stdout}
}

func (p *Print) Name() string { return "print" }

func (p *Print) matches(rt Runtime, e event.Event) bool {
	if len(p.Predicates) == 0 {
		return true
	}
	for _, pr := range p.Predicates {
		if pr.Matches(e, rt.Tracker()) {
			return true
		}
	}
	return false
}

func (p *Print) Process(rt Runtime, e event.Event) []event.Event {
	if p.matches(rt, e) {
		p.writeLine(e)
	}
	return []event.Event{e}
}

func (p *Print) writeLine(e event.Event) {
	switch p.Format {
	case PrintFormatDirect:
		fmt.Fprintf(p.Out, "%d %d %d\n", e.Type, e.Code, e.Value)
	default:
		typeName := ecodes.TypeName(e.Type)
		if typeName == "" {
			typeName = fmt.Sprintf("%d", e.Type)
		}
		dom := e.Domain.String()
		fmt.Fprintf(p.Out, "%s:%d:%d@%s\n", typeName, e.Code, e.Value, dom)
	}
}
