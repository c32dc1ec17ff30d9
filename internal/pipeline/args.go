// Package pipeline implements the argument-to-stage compiler, spec.md
// §4.13: left-to-right scan of the argument vector into an ordered
// stage list, with Toggle/Hook/Withhold association resolution and
// static capability propagation.
package pipeline

import (
	"strings"

	"github.com/juju/errors"
)

// clause is one `--flag arg arg...` run of the argument vector, up to
// (but not including) the next `--flag`.
type clause struct {
	flag string
	args []string
}

// splitClauses groups argv into clauses at each `--flag` boundary.
// Bare positional arguments before the first flag are a syntax error
// (spec.md §7 kind 1), returned to the caller instead of silently
// dropped, one error per offending argument.
func splitClauses(argv []string) ([]clause, []error) {
	var out []clause
	var errs []error
	for _, a := range argv {
		if strings.HasPrefix(a, "--") {
			out = append(out, clause{flag: strings.TrimPrefix(a, "--")})
			continue
		}
		if len(out) == 0 {
			errs = append(errs, errors.Errorf("unexpected argument %q before the first --flag", a))
			continue
		}
		out[len(out)-1].args = append(out[len(out)-1].args, a)
	}
	return out, errs
}

// splitOption splits "key=value" into ("key", "value", true), or
// returns (flag, "", false) for a bare flag like "yield" or
// "sequential".
func splitOption(arg string) (key, value string, hasValue bool) {
	idx := strings.IndexByte(arg, '=')
	if idx < 0 {
		return arg, "", false
	}
	return arg[:idx], arg[idx+1:], true
}
