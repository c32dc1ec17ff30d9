package pipeline

import (
	"strconv"
	"strings"
	"time"

	"github.com/evsieve/evsieve/internal/key"
	"github.com/juju/errors"
)

// toggleRef is an unresolved `toggle[=[ID][:INDEX]]` action, resolved
// against the registry of named Toggles once the whole argument
// vector has been scanned (spec.md §4.13).
type toggleRef struct {
	id       string // "" means "all toggles"
	hasIndex bool
	index    int
}

type hookClauseSpec struct {
	Keys       []key.Predicate
	ExecShell  []string
	Toggles    []toggleRef
	SendKeys   []key.Target
	Sequential bool
	Period     time.Duration
	BreaksOn   []key.Predicate
}

func parseHookClause(c clause) (hookClauseSpec, error) {
	var spec hookClauseSpec
	for _, a := range c.args {
		k, v, hasV := splitOption(a)
		switch {
		case k == "exec-shell" && hasV:
			spec.ExecShell = append(spec.ExecShell, v)
		case a == "sequential":
			spec.Sequential = true
		case k == "period" && hasV:
			secs, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return spec, errors.Annotatef(err, "--hook period=%q", v)
			}
			spec.Period = time.Duration(secs * float64(time.Second))
		case k == "send-key" && hasV:
			t, err := key.ParseTarget(v)
			if err != nil {
				return spec, errors.Annotate(err, "send-key")
			}
			spec.SendKeys = append(spec.SendKeys, t)
		case k == "breaks-on" && hasV:
			p, err := key.ParsePredicate(v)
			if err != nil {
				return spec, errors.Annotate(err, "breaks-on")
			}
			spec.BreaksOn = append(spec.BreaksOn, p)
		case a == "toggle" || k == "toggle":
			ref, err := parseToggleRef(v)
			if err != nil {
				return spec, err
			}
			spec.Toggles = append(spec.Toggles, ref)
		default:
			p, err := key.ParsePredicate(a)
			if err != nil {
				return spec, errors.Annotate(err, "hook key")
			}
			if p.IsTransition() {
				return spec, errors.Errorf("--hook key %q: transitions are forbidden in hook keys", a)
			}
			spec.Keys = append(spec.Keys, p)
		}
	}
	if len(spec.Keys) == 0 {
		return spec, errors.Errorf("--hook requires at least one key")
	}
	return spec, nil
}

// parseToggleRef parses the value half of `toggle[=[ID][:INDEX]]`: v
// is "" for a bare `toggle`, or "ID", ":INDEX", or "ID:INDEX".
func parseToggleRef(v string) (toggleRef, error) {
	if v == "" {
		return toggleRef{}, nil
	}
	id, idxStr, hasIdx := strings.Cut(v, ":")
	ref := toggleRef{id: id}
	if hasIdx {
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			return toggleRef{}, errors.Annotatef(err, "toggle index %q", idxStr)
		}
		ref.hasIndex = true
		ref.index = idx
	}
	return ref, nil
}

func parseWithholdClause(c clause) ([]key.Predicate, error) {
	return parsePredicateList(c.args)
}
