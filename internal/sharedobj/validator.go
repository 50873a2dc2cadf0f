package sharedobj

import (
	"context"
	"time"

	"lab.nexedi.com/kirr/git-share-obj/internal/sharedobj/gitproc"
)

// DefaultFsckTimeout bounds one Validator.Validate call so a single wedged
// repository cannot hang the whole run (SPEC_FULL.md §12 addition — spec.md
// §6's child process interface says nothing about a timeout).
const DefaultFsckTimeout = 10 * time.Minute

// Validator runs the host VCS's own full-integrity check as a child
// process and classifies pass/fail by exit status (spec §4.2).
type Validator struct {
	// Timeout bounds each Validate call. Zero means DefaultFsckTimeout.
	Timeout time.Duration
}

// Validate runs `git fsck --full` rooted at repo.Root. ok is true iff the
// check exited zero; details carries the captured stderr (or a timeout
// note) when ok is false. A non-nil error means git itself could not be
// invoked — distinct from, and rarer than, a failing check.
func (v *Validator) Validate(ctx context.Context, repo *Repository) (ok bool, details string, err error) {
	timeout := v.Timeout
	if timeout <= 0 {
		timeout = DefaultFsckTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// --full: do not tolerate dangling objects being silently accepted —
	// spec §4.2 requires "a full (non-dangling-tolerant) fsck of all objects".
	res, err := gitproc.Run(ctx, repo.Root, "fsck", "--full", "--no-progress")
	if err != nil {
		return false, "", err
	}
	if res.TimedOut {
		return false, "fsck timed out", nil
	}
	return res.OK, res.Stderr, nil
}
