package gitproc

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

func TestRunOK(t *testing.T) {
	dir := t.TempDir()
	if out, err := exec.Command("git", "init", "-q", dir).CombinedOutput(); err != nil {
		t.Skipf("git init unavailable: %v: %s", err, out)
	}

	res, err := Run(context.Background(), dir, "rev-parse", "--is-bare-repository")
	if err != nil {
		t.Fatalf("Run: unexpected error: %v", err)
	}
	if !res.OK {
		t.Fatalf("Run: OK = false, stderr=%q", res.Stderr)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	if out, err := exec.Command("git", "init", "-q", dir).CombinedOutput(); err != nil {
		t.Skipf("git init unavailable: %v: %s", err, out)
	}

	res, err := Run(context.Background(), dir, "cat-file", "-e", "0000000000000000000000000000000000000000")
	if err != nil {
		t.Fatalf("Run: unexpected error: %v", err)
	}
	if res.OK {
		t.Fatal("Run: OK = true for a lookup of a nonexistent object")
	}
}

func TestRunTimeout(t *testing.T) {
	dir := t.TempDir()
	if out, err := exec.Command("git", "init", "-q", dir).CombinedOutput(); err != nil {
		t.Skipf("git init unavailable: %v: %s", err, out)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
	defer cancel()

	res, err := Run(ctx, dir, "version")
	if err != nil {
		t.Fatalf("Run: unexpected error: %v", err)
	}
	if !res.TimedOut {
		t.Error("Run: TimedOut = false for an already-expired context")
	}
	if res.OK {
		t.Error("Run: OK = true despite timing out")
	}
}
