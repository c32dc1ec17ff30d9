package lifecycle

import (
	"os"

	"github.com/evsieve/evsieve/internal/log2"
	"github.com/google/uuid"
	"github.com/juju/errors"
)

// atomicSymlink creates a symlink at linkPath pointing at target,
// atomically replacing whatever was there before (spec.md §6: "create
// a symlink... atomically replacing any existing path"). The classic
// technique: link under a throwaway name in the same directory, then
// rename over the final path, since POSIX rename(2) is atomic within
// one filesystem but symlink(2) has no such "replace" mode.
func atomicSymlink(target, linkPath string) error {
	tmp := linkPath + ".evsieve-" + uuid.New().String()
	if err := os.Symlink(target, tmp); err != nil {
		return errors.Trace(err)
	}
	if err := os.Rename(tmp, linkPath); err != nil {
		os.Remove(tmp)
		return errors.Trace(err)
	}
	return nil
}

// removeSymlink is shutdown-time cleanup (spec.md §6 "remove on
// shutdown"); best-effort, per spec.md §7's "shutdown is always
// best-effort" — a failure here must never affect exit status.
func removeSymlink(path string, log *log2.Log) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Errorf("removing symlink %s: %v", path, err)
	}
}
