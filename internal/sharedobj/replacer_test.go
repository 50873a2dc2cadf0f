package sharedobj

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReplacerLinksAndRemovesBackup(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source")
	target := filepath.Join(dir, "target")

	if err := os.WriteFile(source, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(target, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}

	var r Replacer
	outcome, err := r.Replace(source, target)
	if err != nil {
		t.Fatalf("Replace: unexpected error: %v", err)
	}
	if outcome != Linked {
		t.Fatalf("outcome = %v, want Linked", outcome)
	}

	sst, err := os.Stat(source)
	if err != nil {
		t.Fatal(err)
	}
	tst, err := os.Stat(target)
	if err != nil {
		t.Fatal(err)
	}
	if !os.SameFile(sst, tst) {
		t.Error("source and target are not the same inode after Replace")
	}
	if _, err := os.Stat(target + BackupSuffix); !os.IsNotExist(err) {
		t.Error("backup file should have been removed after a successful link")
	}
}

func TestReplacerSkippedWhenTargetMissing(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "source")
	target := filepath.Join(dir, "does-not-exist")

	if err := os.WriteFile(source, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}

	var r Replacer
	outcome, err := r.Replace(source, target)
	if err == nil {
		t.Fatal("Replace: expected an error when target does not exist")
	}
	if outcome != Skipped {
		t.Fatalf("outcome = %v, want Skipped", outcome)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Error("target should still not exist after a Skipped outcome")
	}
}

func TestReplacerRollsBackOnLinkFailure(t *testing.T) {
	dir := t.TempDir()
	// source lives on a path that cannot be linked from: a directory, not a
	// file. os.Link(dir, target) always fails with EPERM/EISDIR, exercising
	// the rollback path without relying on cross-device tricks.
	source := filepath.Join(dir, "sourcedir")
	if err := os.Mkdir(source, 0o755); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(dir, "target")
	if err := os.WriteFile(target, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	var r Replacer
	outcome, err := r.Replace(source, target)
	if err == nil {
		t.Fatal("Replace: expected an error when link(2) fails")
	}
	if outcome != RolledBack {
		t.Fatalf("outcome = %v, want RolledBack", outcome)
	}

	data, rerr := os.ReadFile(target)
	if rerr != nil {
		t.Fatalf("target missing after rollback: %v", rerr)
	}
	if string(data) != "original" {
		t.Errorf("target content = %q, want original content restored", data)
	}
	if _, err := os.Stat(target + BackupSuffix); !os.IsNotExist(err) {
		t.Error("backup file should not remain after a successful rollback")
	}
}
