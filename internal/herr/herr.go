// Package herr collects small error-handling helpers shared across
// the compiler and lifecycle layers.
package herr

import (
	"strings"

	"github.com/juju/errors"
)

// FoldErrors combines non-nil errors from errs into one, so a user
// sees every broken `--` clause from a compile pass at once rather
// than stopping at the first (spec.md §7 kinds 1-2).
func FoldErrors(errs []error) error {
	ss := make([]string, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			ss = append(ss, e.Error())
		}
	}
	if len(ss) == 0 {
		return nil
	}
	return errors.Errorf(strings.Join(ss, "\n"))
}
