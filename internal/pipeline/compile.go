package pipeline

import (
	"github.com/evsieve/evsieve/internal/herr"
	"github.com/evsieve/evsieve/internal/stage"
	"github.com/juju/errors"
)

// Program is the compiled result of spec.md §4.13: the ordered stage
// list plus the side registries (inputs, outputs, toggles) the
// runtime and lifecycle manager need beyond "what order do events
// flow through".
type Program struct {
	Inputs  []InputSpec
	Stages  []stage.Stage
	Outputs []*stage.Output
	Toggles []*stage.Toggle
}

// Compile performs the left-to-right scan of spec.md §4.13: splits
// argv into clauses, builds one stage per clause, binds each Withhold
// to the maximal run of immediately-preceding Hooks, resolves every
// Hook `toggle[=ID[:idx]]` reference against the Toggle registry, and
// folds every clause-level error into one (spec.md §7 kinds 1-2), so a
// user sees every broken clause at once.
func Compile(argv []string) (*Program, error) {
	clauses, splitErrs := splitClauses(argv)

	prog := &Program{}
	errs := append([]error(nil), splitErrs...)

	var pendingHooks []*stage.Hook
	toggleByID := make(map[string]*stage.Toggle)
	hookToggleRefs := make(map[*stage.Hook][]toggleRef)
	var hookOrder []*stage.Hook

	flushHooks := func() { pendingHooks = nil }

	for _, c := range clauses {
		switch c.flag {
		case "input":
			spec, err := parseInput(c)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			prog.Inputs = append(prog.Inputs, spec)
			flushHooks()

		case "map", "copy":
			m, err := parseMapOrCopy(c, c.flag == "copy")
			if err != nil {
				errs = append(errs, errors.Annotatef(err, "--%s", c.flag))
				continue
			}
			prog.Stages = append(prog.Stages, m)
			flushHooks()

		case "block":
			b, err := parseBlock(c)
			if err != nil {
				errs = append(errs, errors.Annotate(err, "--block"))
				continue
			}
			prog.Stages = append(prog.Stages, b)
			flushHooks()

		case "merge":
			mg, err := parseMerge(c)
			if err != nil {
				errs = append(errs, errors.Annotate(err, "--merge"))
				continue
			}
			prog.Stages = append(prog.Stages, mg)
			flushHooks()

		case "print":
			pr, err := parsePrint(c)
			if err != nil {
				errs = append(errs, errors.Annotate(err, "--print"))
				continue
			}
			prog.Stages = append(prog.Stages, pr)
			flushHooks()

		case "delay":
			d, err := parseDelay(c)
			if err != nil {
				errs = append(errs, errors.Annotate(err, "--delay"))
				continue
			}
			d.Index = len(prog.Stages)
			prog.Stages = append(prog.Stages, d)
			flushHooks()

		case "toggle":
			id, mode, source, targets, err := parseToggleClause(c)
			if err != nil {
				errs = append(errs, errors.Annotate(err, "--toggle"))
				continue
			}
			if id != "" {
				if _, dup := toggleByID[id]; dup {
					errs = append(errs, errors.Errorf("--toggle id=%q already defined", id))
					continue
				}
			}
			switch mode {
			case stage.ToggleModeConsistent, stage.ToggleModePassive:
			default:
				errs = append(errs, errors.Errorf("--toggle: unknown mode %q", mode))
				continue
			}
			t := stage.NewToggle(id, source, targets, mode)
			if id != "" {
				toggleByID[id] = t
			}
			prog.Toggles = append(prog.Toggles, t)
			prog.Stages = append(prog.Stages, t)
			flushHooks()

		case "hook":
			hc, err := parseHookClause(c)
			if err != nil {
				errs = append(errs, errors.Annotate(err, "--hook"))
				continue
			}
			h, err := stage.NewHook(hc.Keys, hc.BreaksOn)
			if err != nil {
				errs = append(errs, errors.Annotate(err, "--hook"))
				continue
			}
			h.ExecShell = hc.ExecShell
			h.SendKeys = hc.SendKeys
			h.Sequential = hc.Sequential
			h.Period = hc.Period
			hookToggleRefs[h] = hc.Toggles
			hookOrder = append(hookOrder, h)
			pendingHooks = append(pendingHooks, h)
			prog.Stages = append(prog.Stages, h)

		case "withhold":
			preds, err := parseWithholdClause(c)
			if err != nil {
				errs = append(errs, errors.Annotate(err, "--withhold"))
				continue
			}
			if len(pendingHooks) == 0 {
				errs = append(errs, errors.Errorf("--withhold must textually follow one or more --hook clauses"))
				continue
			}
			hooks := append([]*stage.Hook(nil), pendingHooks...)
			w := stage.NewWithhold(preds, len(hooks))
			hw := stage.NewHookWithhold(hooks, w)
			prog.Stages = prog.Stages[:len(prog.Stages)-len(hooks)]
			prog.Stages = append(prog.Stages, hw)
			flushHooks()

		case "output":
			oc, err := parseOutputClause(c)
			if err != nil {
				errs = append(errs, errors.Annotate(err, "--output"))
				continue
			}
			out := stage.NewOutput(oc.Predicates, oc.Name, oc.CreateLink, oc.Repeat)
			prog.Outputs = append(prog.Outputs, out)
			prog.Stages = append(prog.Stages, out)
			flushHooks()

		default:
			errs = append(errs, errors.Errorf("unknown argument --%s", c.flag))
		}
	}

	resolveToggleRefs(prog, hookOrder, hookToggleRefs, toggleByID, &errs)

	if len(prog.Inputs) == 0 {
		errs = append(errs, errors.Errorf("at least one --input is required"))
	}
	if len(prog.Outputs) == 0 {
		errs = append(errs, errors.Errorf("at least one --output is required"))
	}

	if err := herr.FoldErrors(errs); err != nil {
		return nil, err
	}
	return prog, nil
}

// resolveToggleRefs walks hooks in the order they were declared
// (rather than ranging over the refs map directly) so folded
// out-of-range/unknown-id errors come back in a deterministic,
// argv-matching order across repeated runs.
func resolveToggleRefs(prog *Program, hooks []*stage.Hook, refs map[*stage.Hook][]toggleRef, byID map[string]*stage.Toggle, errs *[]error) {
	for _, h := range hooks {
		for _, ref := range refs[h] {
			if ref.id == "" {
				for _, t := range prog.Toggles {
					if ref.hasIndex && (ref.index < 1 || ref.index > t.Len()) {
						*errs = append(*errs, errors.Errorf("--hook toggle=:%d: index out of range 1..%d", ref.index, t.Len()))
						continue
					}
					h.Toggles = append(h.Toggles, buildToggleAction(t, ref))
				}
				continue
			}
			t, ok := byID[ref.id]
			if !ok {
				*errs = append(*errs, errors.Errorf("--hook toggle=%s: no such --toggle id", ref.id))
				continue
			}
			if ref.hasIndex && (ref.index < 1 || ref.index > t.Len()) {
				*errs = append(*errs, errors.Errorf("--hook toggle=%s:%d: index out of range 1..%d", ref.id, ref.index, t.Len()))
				continue
			}
			h.Toggles = append(h.Toggles, buildToggleAction(t, ref))
		}
	}
}

func buildToggleAction(t *stage.Toggle, ref toggleRef) stage.ToggleAction {
	return stage.ToggleAction{Target: t, HasIndex: ref.hasIndex, Index: ref.index}
}
