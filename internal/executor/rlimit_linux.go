//go:build linux

package executor

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// applyLimits sets rlimits on a running child. Limits reach processes the
// child forks afterwards; anything forked before this call keeps the parent's.
func applyLimits(pid int, l Limits) error {
	var errs []error
	set := func(name string, resource int, value uint64) {
		if value == 0 {
			return
		}
		lim := &unix.Rlimit{Cur: value, Max: value}
		if err := unix.Prlimit(pid, resource, lim, nil); err != nil {
			errs = append(errs, fmt.Errorf("prlimit %s: %w", name, err))
		}
	}

	set("cpu", unix.RLIMIT_CPU, l.CPUSeconds)
	set("fsize", unix.RLIMIT_FSIZE, l.MaxFileBytes)
	set("as", unix.RLIMIT_AS, l.MemoryBytes)

	return errors.Join(errs...)
}
