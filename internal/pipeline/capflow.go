package pipeline

import (
	"github.com/evsieve/evsieve/internal/capability"
	"github.com/evsieve/evsieve/internal/ecodes"
	"github.com/evsieve/evsieve/internal/key"
	"github.com/evsieve/evsieve/internal/stage"
)

// PropagateCapabilities implements spec.md §4.13's abstract
// interpretation: initialize the running set from the union of every
// input's real kernel-reported capabilities, carry it through each
// stage's static "may emit" transfer function, and at each Output
// assign the union of everything that can reach it. Widening only
// ever grows a set.
//
// Called once devices are open and their real capability sets are
// known (internal/evdev), since compile-time argument parsing alone
// has no kernel to introspect.
func PropagateCapabilities(prog *Program, inputCaps []*capability.Set) {
	cur := capability.NewSet()
	for _, s := range inputCaps {
		cur.Merge(s)
	}

	for _, st := range prog.Stages {
		cur = transferStage(st, cur)
	}
}

// transferStage returns the capability set that continues past st,
// and (for an Output) assigns st's own declared Capabilities.
func transferStage(st stage.Stage, in *capability.Set) *capability.Set {
	switch s := st.(type) {
	case *stage.Map:
		return transferMap(s, in)
	case *stage.Block:
		return in.Clone()
	case *stage.Merge:
		return in.Clone()
	case *stage.Print:
		return in.Clone()
	case *stage.Delay:
		return in.Clone()
	case *stage.Toggle:
		return transferToggle(s, in)
	case *stage.HookWithhold:
		return transferHookWithhold(s, in)
	case *stage.Hook:
		out := in.Clone()
		for _, tgt := range s.SendKeys {
			typ, code := tgt.Identity(ecodes.EV_KEY, 0)
			out.Add(capability.Key{Type: typ, Code: code}, capability.ValueRange{Min: 0, Max: 1})
		}
		return out
	case *stage.Output:
		s.Capabilities = filterByPredicates(in, s.Predicates)
		return in.Clone()
	default:
		return in.Clone()
	}
}

// transferMap widens out with every target's produced identity and
// range; out already starts as a clone of in, so a bare Map with zero
// targets (a sink, spec.md §3) still leaves unmatched events' entries
// flowing and Map's own source entries untouched for events it
// doesn't match.
func transferMap(m *stage.Map, in *capability.Set) *capability.Set {
	out := in.Clone()
	for _, k := range in.Keys() {
		if !m.Predicate.MatchesTypeCode(k.Type, k.Code) {
			continue
		}
		r, _ := in.Range(k)
		for _, tgt := range m.Targets {
			dstType, dstCode := tgt.Identity(k.Type, k.Code)
			out.Add(capability.Key{Type: dstType, Code: dstCode}, tgt.PropagateRange(r))
		}
	}
	return out
}

func transferToggle(t *stage.Toggle, in *capability.Set) *capability.Set {
	out := in.Clone()
	for _, k := range in.Keys() {
		if !t.Source.MatchesTypeCode(k.Type, k.Code) {
			continue
		}
		r, _ := in.Range(k)
		for _, tgt := range t.Targets {
			dstType, dstCode := tgt.Identity(k.Type, k.Code)
			out.Add(capability.Key{Type: dstType, Code: dstCode}, tgt.PropagateRange(r))
		}
	}
	return out
}

func transferHookWithhold(hw *stage.HookWithhold, in *capability.Set) *capability.Set {
	out := in.Clone()
	for _, h := range hw.Hooks {
		for _, tgt := range h.SendKeys {
			typ, code := tgt.Identity(ecodes.EV_KEY, 0)
			out.Add(capability.Key{Type: typ, Code: code}, capability.ValueRange{Min: 0, Max: 1})
		}
	}
	return out
}

func filterByPredicates(in *capability.Set, preds []key.Predicate) *capability.Set {
	out := capability.NewSet()
	for _, k := range in.Keys() {
		if len(preds) > 0 {
			matched := false
			for _, p := range preds {
				if p.MatchesTypeCode(k.Type, k.Code) {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		r, _ := in.Range(k)
		out.Add(k, r)
	}
	return out
}
