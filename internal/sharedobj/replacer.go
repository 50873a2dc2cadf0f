package sharedobj

import (
	"os"

	"github.com/pkg/errors"
)

// Replacer executes one atomic, rollback-capable hard-link substitution
// (spec §4.3). It trusts its caller: both paths existing, being regular
// files, sharing a device and a fingerprint are all enforced earlier (by
// Scanner's grouping) and are not re-checked here.
type Replacer struct{}

// Replace links target to source, replacing target's prior content, via
// the rename-first protocol spec §4.3 requires:
//
//  1. rename(target, target+".git-share-obj.bak")   — failure here is a
//     Skipped: target untouched.
//  2. link(source, target)
//  3. on link success: unlink(target+".bak"); a failure to remove the
//     backup is reported via a non-nil err alongside a Linked outcome —
//     the link itself succeeded, the stray backup is a cosmetic cleanup
//     failure, not a correctness problem.
//  4. on link failure: best-effort unlink(target) to clear any partial
//     directory entry, then rename(target+".bak", target) to restore the
//     original. Success is RolledBack; failure is RollbackFailed.
//
// RollbackFailed is the one outcome callers must never silently drop: it
// means the backup file is the only remaining copy of target's original
// content, sitting at target+".git-share-obj.bak" — see spec §6's
// "unconditional output" list and §9's "Outcome as a tagged variant".
//
// The rename-first design (rather than unlink-then-link) is required: with
// unlink-then-link, a link(2) failure after the unlink leaves nothing at
// target but the distant source, which a concurrent crash could leave
// unreachable. Renaming moves the original data aside atomically on the
// same directory entry, so it is always recoverable even if link(2) fails.
func (*Replacer) Replace(source, target string) (ReplacementOutcome, error) {
	backup := target + BackupSuffix

	if err := os.Rename(target, backup); err != nil {
		return Skipped, errors.Wrapf(err, "rename %s aside", target)
	}

	if linkErr := os.Link(source, target); linkErr != nil {
		// Link failed — roll back.
		_ = os.Remove(target) // best-effort: clear any partial directory entry

		if err := os.Rename(backup, target); err != nil {
			return RollbackFailed, errors.Wrapf(err,
				"link %s->%s failed (%s), AND restoring backup %s failed — original content is only at %s",
				source, target, linkErr, backup, backup)
		}
		return RolledBack, errors.Wrapf(linkErr, "link %s->%s, rolled back", source, target)
	}

	if err := os.Remove(backup); err != nil {
		return Linked, errors.Wrapf(err, "linked %s->%s, but stray backup %s remains", source, target, backup)
	}

	return Linked, nil
}
