// Package gitproc runs the host `git` binary as a child process and
// classifies the result, trimmed from git-backup's own git.go down to the
// one shape the Validator needs: run, capture stderr, classify by exit
// status. git-backup's stdin/Sha1-parsing/env-injection machinery (used
// there for hash-object, commit-tree, ...) has no caller here.
package gitproc

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"lab.nexedi.com/kirr/go123/mem"
)

// Result is the outcome of running `git <argv>` in the directory given to Run.
type Result struct {
	Argv     []string
	OK       bool   // true iff the process exited with status 0
	Stderr   string // captured, trimmed standard error
	TimedOut bool
}

// Run executes `git <argv...>` with its working directory set to dir,
// discarding stdout and capturing stderr. ctx bounds the call — on
// deadline exceeded, the process is killed and Result.TimedOut is set.
//
// A non-zero exit status is reported via Result.OK = false, not a
// returned error: that is the expected, frequent case (a corrupt
// repository fails fsck) and callers should not have to unwrap an error
// to get at it. A returned error means git itself could not be run at all
// (binary missing, dir unreadable, ...).
func Run(ctx context.Context, dir string, argv ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, "git", argv...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()

	// TrimSpace returns a subslice of stderr's buffer, and mem.String turns
	// it into a string without the copy bytes.Buffer.String() would make,
	// the same zero-copy conversion git-backup's util.go uses once it is
	// done building a []byte.
	res := Result{
		Argv:   argv,
		Stderr: mem.String(bytes.TrimSpace(stderr.Bytes())),
	}

	if ctx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.OK = false
		return res, nil
	}

	if err == nil {
		res.OK = true
		return res, nil
	}

	if _, isExit := err.(*exec.ExitError); isExit {
		res.OK = false
		return res, nil
	}

	return Result{}, errors.Wrapf(err, "run git %s", strings.Join(argv, " "))
}
