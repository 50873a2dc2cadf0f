package sharedobj

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
)

func initTestRepo(t *testing.T, dir string) *Repository {
	t.Helper()
	if out, err := exec.Command("git", "init", "-q", dir).CombinedOutput(); err != nil {
		t.Skipf("git init unavailable: %v: %s", err, out)
	}
	return NewRepository(dir, filepath.Join(dir, ".git", "objects"))
}

func TestValidatorPassesOnEmptyRepo(t *testing.T) {
	dir := t.TempDir()
	repo := initTestRepo(t, dir)

	v := &Validator{}
	ok, details, err := v.Validate(context.Background(), repo)
	if err != nil {
		t.Fatalf("Validate: unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("Validate: ok = false on a fresh repository, details=%q", details)
	}
}

func TestValidatorDefaultTimeout(t *testing.T) {
	v := &Validator{}
	if v.Timeout != 0 {
		t.Fatalf("zero-value Validator.Timeout = %v, want 0 (DefaultFsckTimeout applied lazily)", v.Timeout)
	}
}
