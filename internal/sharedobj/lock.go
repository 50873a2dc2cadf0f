package sharedobj

import (
	"os"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// LockManager acquires and releases the per-repository advisory lock (spec
// §4.1). It is stateless apart from the RunID stamped into each lock file
// it acquires, so that an operator inspecting a stale lock file left behind
// by a crashed run can tell which invocation it belongs to — the spec
// leaves lock file content unspecified; we use it purely for this
// diagnostic purpose (SPEC_FULL.md §11).
type LockManager struct {
	RunID uuid.UUID
}

// NewLockManager returns a LockManager tagging every lock it creates with a
// fresh run identifier.
func NewLockManager() *LockManager {
	return &LockManager{RunID: uuid.New()}
}

// heldLock is the live descriptor backing one acquired advisory lock. Its
// zero value is not usable; obtain one from LockManager.Acquire.
type heldLock struct {
	fl *flock.Flock
}

// Acquire attempts a non-blocking exclusive lock on repo's lock file.
// On success, repo.LockState becomes LockHeld and the returned heldLock
// must be released via LockManager.Release on every exit path.
// On contention (already held elsewhere) or I/O error, repo.LockState
// becomes LockFailed with a reason — both are per-repository skips, never
// fatal to the overall run (spec §4.1, §7).
func (m *LockManager) Acquire(repo *Repository) (*heldLock, bool) {
	if err := os.MkdirAll(repo.ObjectDir, 0o777); err != nil {
		repo.LockState = LockFailed
		repo.LockReason = errors.Wrap(err, "create object directory").Error()
		return nil, false
	}

	fl := flock.New(repo.LockPath)
	ok, err := fl.TryLock()
	if err != nil {
		repo.LockState = LockFailed
		repo.LockReason = errors.Wrapf(err, "acquire lock %s", repo.LockPath).Error()
		return nil, false
	}
	if !ok {
		repo.LockState = LockFailed
		repo.LockReason = "lock held by another process"
		return nil, false
	}

	// Best-effort: stamp the run ID into the lock file content. Failure to
	// write is not fatal — the descriptor, not the content, carries the lock.
	_ = os.WriteFile(repo.LockPath, []byte(m.RunID.String()+"\n"), 0o666)

	repo.LockState = LockHeld
	return &heldLock{fl: fl}, true
}

// Release releases hl and marks repo unlocked. Safe to call on every exit
// path, including from a defer after a panic — it never itself panics.
func (m *LockManager) Release(repo *Repository, hl *heldLock) {
	if hl == nil {
		return
	}
	_ = hl.fl.Unlock() // descriptor closure on process exit would also release it; this is the explicit path
	repo.LockState = LockUnlocked
}
