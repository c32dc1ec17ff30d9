package pipeline

import (
	"strconv"
	"time"

	"github.com/evsieve/evsieve/internal/key"
	"github.com/evsieve/evsieve/internal/stage"
	"github.com/juju/errors"
)

// InputSpec is one `--input` clause (spec.md Expansion C.1): one or
// more device paths sharing the same grab/domain/persist options.
type InputSpec struct {
	Paths   []string
	Domain  string
	Grab    string // "auto" (default), "force", "none"
	Persist string // "none" (default), "reopen", "exit"
}

const (
	GrabAuto  = "auto"
	GrabForce = "force"
	GrabNone  = "none"

	PersistNone   = "none"
	PersistReopen = "reopen"
	PersistExit   = "exit"
)

func parseInput(c clause) (InputSpec, error) {
	spec := InputSpec{Grab: GrabAuto, Persist: PersistNone}
	for _, a := range c.args {
		k, v, hasV := splitOption(a)
		switch {
		case k == "domain" && hasV:
			spec.Domain = v
		case k == "grab" && hasV:
			spec.Grab = v
		case k == "grab" && !hasV:
			spec.Grab = GrabForce
		case k == "persist" && hasV:
			spec.Persist = v
		default:
			spec.Paths = append(spec.Paths, a)
		}
	}
	if len(spec.Paths) == 0 {
		return spec, errors.Errorf("--input requires at least one device path")
	}
	switch spec.Grab {
	case GrabAuto, GrabForce, GrabNone:
	default:
		return spec, errors.Errorf("--input: unknown grab mode %q", spec.Grab)
	}
	switch spec.Persist {
	case PersistNone, PersistReopen, PersistExit:
	default:
		return spec, errors.Errorf("--input: unknown persist mode %q", spec.Persist)
	}
	return spec, nil
}

// parsePredicateList parses every argument of a clause as a predicate;
// it recognizes no option tokens, so its callers (--block, --merge,
// --withhold) take none.
func parsePredicateList(args []string) ([]key.Predicate, error) {
	preds := make([]key.Predicate, 0, len(args))
	for _, a := range args {
		p, err := key.ParsePredicate(a)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

func parseMapOrCopy(c clause, isCopy bool) (*stage.Map, error) {
	if len(c.args) == 0 {
		return nil, errors.Errorf("--map/--copy requires a source key")
	}

	srcPred, err := key.ParsePredicate(c.args[0])
	if err != nil {
		return nil, errors.Annotate(err, "source key")
	}

	var targets []key.Target
	yield := false
	for _, a := range c.args[1:] {
		if a == "yield" {
			yield = true
			continue
		}
		t, err := key.ParseTarget(a)
		if err != nil {
			return nil, errors.Annotate(err, "target")
		}
		targets = append(targets, t)
	}

	if isCopy {
		return stage.NewCopy(srcPred, targets, yield), nil
	}
	return stage.NewMap(srcPred, targets, yield), nil
}

func parseBlock(c clause) (*stage.Block, error) {
	preds, err := parsePredicateList(c.args)
	if err != nil {
		return nil, err
	}
	return stage.NewBlock(preds), nil
}

func parseMerge(c clause) (*stage.Merge, error) {
	preds, err := parsePredicateList(c.args)
	if err != nil {
		return nil, err
	}
	return stage.NewMerge(preds), nil
}

func parsePrint(c clause) (*stage.Print, error) {
	var preds []key.Predicate
	format := stage.PrintFormatDefault
	for _, a := range c.args {
		k, v, hasV := splitOption(a)
		if k == "format" && hasV {
			switch v {
			case stage.PrintFormatDefault, stage.PrintFormatDirect:
				format = v
			default:
				return nil, errors.Errorf("--print format=%q: must be %q or %q", v, stage.PrintFormatDefault, stage.PrintFormatDirect)
			}
			continue
		}
		p, err := key.ParsePredicate(a)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return stage.NewPrint(preds, format), nil
}

func parseDelay(c clause) (*stage.Delay, error) {
	var preds []key.Predicate
	var period time.Duration
	havePeriod := false
	for _, a := range c.args {
		k, v, hasV := splitOption(a)
		if k == "period" && hasV {
			secs, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, errors.Annotatef(err, "--delay period=%q", v)
			}
			period = time.Duration(secs * float64(time.Second))
			havePeriod = true
			continue
		}
		p, err := key.ParsePredicate(a)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if !havePeriod {
		return nil, errors.Errorf("--delay requires period=SECONDS")
	}
	return stage.NewDelay(preds, period), nil
}

func parseToggleClause(c clause) (id, mode string, source key.Predicate, targets []key.Target, err error) {
	mode = stage.ToggleModeConsistent
	if len(c.args) == 0 {
		return "", "", key.Predicate{}, nil, errors.Errorf("--toggle requires a source key")
	}
	source, err = key.ParsePredicate(c.args[0])
	if err != nil {
		return "", "", key.Predicate{}, nil, errors.Annotate(err, "toggle source")
	}
	for _, a := range c.args[1:] {
		k, v, hasV := splitOption(a)
		switch {
		case k == "id" && hasV:
			id = v
		case k == "mode" && hasV:
			mode = v
		default:
			t, terr := key.ParseTarget(a)
			if terr != nil {
				return "", "", key.Predicate{}, nil, errors.Annotate(terr, "toggle target")
			}
			targets = append(targets, t)
		}
	}
	if len(targets) == 0 {
		return "", "", key.Predicate{}, nil, errors.Errorf("--toggle requires at least one target")
	}
	return id, mode, source, targets, nil
}

// outputClauseSpec is the parsed form of an `--output` clause before
// the compiler wires in a Device (assigned later by the lifecycle
// manager once the virtual device is created).
type outputClauseSpec struct {
	Predicates []key.Predicate
	Name       string
	CreateLink string
	Repeat     string
}

func parseOutputClause(c clause) (outputClauseSpec, error) {
	spec := outputClauseSpec{Repeat: stage.RepeatPassive}
	for _, a := range c.args {
		k, v, hasV := splitOption(a)
		switch {
		case k == "create-link" && hasV:
			spec.CreateLink = v
		case k == "name" && hasV:
			spec.Name = v
		case k == "repeat" && hasV:
			spec.Repeat = v
		case a == "repeat":
			spec.Repeat = stage.RepeatEnable
		default:
			p, err := key.ParsePredicate(a)
			if err != nil {
				return spec, err
			}
			spec.Predicates = append(spec.Predicates, p)
		}
	}
	return spec, nil
}
