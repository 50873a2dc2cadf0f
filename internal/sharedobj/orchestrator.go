package sharedobj

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// ExitCode mirrors the process exit statuses spec §6's exit-code table
// assigns to a run:
//
//	0  success (including fsck_only with no failures)
//	1  input path invalid (does not exist or not readable), or a usage /
//	   configuration error caught before anything was touched
//	2  pre-validation failure in fsck_only mode (any validation failure)
//	3  post-validation failure after mutation, or a RollbackFailed outcome —
//	   both imply possible on-disk corruption (spec §7)
type ExitCode int

const (
	ExitOK                   ExitCode = 0
	ExitInvalidInput         ExitCode = 1
	ExitValidationFailed     ExitCode = 2
	ExitPostValidationFailed ExitCode = 3
)

// Options configures one Orchestrator run (spec §6's CLI option table).
type Options struct {
	Roots             []string
	NoFsck            bool          // skip pre- and post-validation
	FsckOnly          bool          // validate every discovered repo, replace nothing
	NoLock            bool          // proceed without acquiring advisory locks (dangerous; spec §7)
	DryRun            bool          // compute plans, execute no Replace calls
	FsckTimeout       time.Duration // SPEC_FULL.md §12 addition
	VerifyFingerprint bool          // SPEC_FULL.md §12 addition; re-hash via git2go rather than trust path
}

// RepoSummary reports one repository's fate in a run, for the human and
// --json summaries (spec §6 "unconditional output").
type RepoSummary struct {
	Root        string
	LockState   LockState
	LockReason  string
	PreOK       bool
	PreDetails  string
	PostOK      bool
	PostDetails string
	Skipped     bool
	SkipReason  string
}

// ReplacementRecord reports one executed (or skipped) Replace call.
type ReplacementRecord struct {
	Source  string
	Target  string
	Outcome ReplacementOutcome
	Detail  string
}

// Summary is the Orchestrator's complete, structured account of one run
// (spec §6's "unconditional output" requirement; SPEC_FULL.md §12's --json
// mode serializes this directly).
type Summary struct {
	RunID          string
	Repos          []RepoSummary
	Replacements   []ReplacementRecord
	BytesReclaimed int64
	Exit           ExitCode
}

// Orchestrator drives the full pipeline: discover, lock, pre-validate,
// scan/group, replace, post-validate, release, summarize (spec §4.5).
type Orchestrator struct {
	Log       zerolog.Logger
	Scanner   *Scanner
	Lock      *LockManager
	Validator *Validator
	Replacer  *Replacer
}

// NewOrchestrator wires the four components together with their defaults.
func NewOrchestrator(log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		Log:       log,
		Scanner:   &Scanner{},
		Lock:      NewLockManager(),
		Validator: &Validator{},
		Replacer:  &Replacer{},
	}
}

// pending tracks one repository's state as it moves through the pipeline
// within a single Run call.
type pending struct {
	repo *Repository
	lock *heldLock
	rs   *RepoSummary
}

// Run executes one complete pipeline pass and returns its Summary. A nil
// Summary with a non-nil error means the run was aborted before any
// replacement (no roots, an invalid root, discovery or grouping failing).
// Otherwise the Summary is returned and per-repository problems never abort
// the run: they are recorded in the Summary and reflected in its Exit code,
// and those that are errors (validator invocation errors, RollbackFailed
// outcomes, post-validation failures) are also aggregated into the returned
// error.
//
// Ordering invariant held throughout: for any one repository,
// acquire_lock ≺ pre_validate ≺ replace ≺ post_validate ≺ release_lock
// (spec §4.5, §8 property). Each repository's lock is acquired in the first
// pass and released only in the third pass, after that repository's share
// of replacement and post-validation have both run; a defer covers every
// early-return path so a panic mid-run cannot leak a held lock.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Summary, error) {
	if len(opts.Roots) == 0 {
		return nil, fmt.Errorf("no roots given")
	}

	// spec §4.5 step 1: validate that every input root exists before
	// touching anything (exit code 1, not a generic discovery error).
	for _, root := range opts.Roots {
		if _, statErr := os.Stat(root); statErr != nil {
			return nil, fmt.Errorf("invalid root %s: %w", root, statErr)
		}
	}

	summary := &Summary{RunID: o.Lock.RunID.String()}
	var merr *multierror.Error

	repos, err := o.Scanner.DiscoverRepos(opts.Roots)
	if err != nil {
		return nil, fmt.Errorf("discover repositories: %w", err)
	}
	o.Log.Info().Int("repos", len(repos)).Msg("discovered repositories")

	// Pass 1: acquire locks, pre-validate. A repository that fails either
	// step is recorded as skipped and never reaches replacement.
	//
	// fsckOnlyFailed tracks validation failures for exit-code purposes
	// independently of rs.Skipped: in normal mode a pre-validation failure
	// only excludes a repository from replacement and does not by itself
	// fail the run (spec §4.5 step 5, §8 Scenario D), but in fsck_only mode
	// any validation failure must fail the whole run with exit code 2 (spec
	// §4.5 step 4, §8 Scenario E) — a requirement the Skipped-based
	// exclusion bookkeeping used by normal mode does not express.
	var fsckOnlyFailed bool
	var active []*pending
	// Full capacity up front: rs and pending.rs point into this slice, so
	// it must never be reallocated by the appends below.
	summary.Repos = make([]RepoSummary, 0, len(repos))
	defer func() {
		for _, p := range active {
			if !opts.NoLock {
				o.Lock.Release(p.repo, p.lock)
			}
		}
	}()

	for _, repo := range repos {
		summary.Repos = append(summary.Repos, RepoSummary{Root: repo.Root})
		rs := &summary.Repos[len(summary.Repos)-1]

		var hl *heldLock
		if !opts.NoLock {
			var ok bool
			hl, ok = o.Lock.Acquire(repo)
			rs.LockState, rs.LockReason = repo.LockState, repo.LockReason
			if !ok {
				rs.Skipped = true
				rs.SkipReason = "lock: " + repo.LockReason
				o.Log.Warn().Str("repo", repo.Root).Str("reason", repo.LockReason).Msg("lock failed, skipping repository")
				continue
			}
		}

		if !opts.NoFsck {
			ok, details, verr := o.Validator.validateWithTimeout(ctx, repo, opts.FsckTimeout)
			rs.PreOK, rs.PreDetails = ok, details
			switch {
			case verr != nil:
				merr = multierror.Append(merr, fmt.Errorf("pre-validate %s: %w", repo.Root, verr))
				rs.Skipped = true
				rs.SkipReason = "pre-validate error: " + verr.Error()
				fsckOnlyFailed = true
				if !opts.NoLock {
					o.Lock.Release(repo, hl)
				}
				continue
			case !ok:
				rs.Skipped = true
				rs.SkipReason = "failed pre-validation"
				fsckOnlyFailed = true
				o.Log.Warn().Str("repo", repo.Root).Str("fsck", details).Msg("pre-validation failed, excluding from replacement")
				if !opts.NoLock {
					o.Lock.Release(repo, hl)
				}
				continue
			}
		} else {
			rs.PreOK = true
		}

		if opts.FsckOnly {
			if !opts.NoLock {
				o.Lock.Release(repo, hl)
			}
			continue
		}

		active = append(active, &pending{repo: repo, lock: hl, rs: rs})
	}

	if opts.FsckOnly {
		summary.Exit = ExitOK
		if fsckOnlyFailed {
			summary.Exit = ExitValidationFailed
		}
		return summary, merr.ErrorOrNil()
	}

	// Pass 2: scan and group only the repositories that survived pass 1,
	// then execute every plan (spec §4.4's "zero replacements" invariant
	// for repositories that failed pre-validation falls out naturally here,
	// since they were never added to active). mutated records which
	// repositories received at least one successful (Linked) replacement —
	// spec §4.5 step 8 scopes post-validation to exactly those.
	mutated := map[string]bool{} // repo.Root -> true
	if len(active) >= 2 {
		usable := make([]*Repository, len(active))
		for i, p := range active {
			usable[i] = p.repo
		}

		o.Scanner.VerifyFingerprint = opts.VerifyFingerprint
		plans, gerr := o.Scanner.CollectGroups(usable)
		if gerr != nil {
			return nil, fmt.Errorf("collect groups: %w", gerr)
		}
		o.Log.Info().Int("plans", len(plans)).Msg("computed replacement plans")

		for _, plan := range plans {
			for _, target := range plan.Targets {
				rec := ReplacementRecord{Source: plan.Source.Path, Target: target.Path}

				if opts.DryRun {
					rec.Outcome = Skipped
					rec.Detail = "dry-run"
					summary.Replacements = append(summary.Replacements, rec)
					continue
				}

				var targetSize int64
				if st, serr := os.Stat(target.Path); serr == nil {
					targetSize = st.Size()
				}

				outcome, rerr := o.Replacer.Replace(plan.Source.Path, target.Path)
				rec.Outcome = outcome
				if rerr != nil {
					rec.Detail = rerr.Error()
				}
				if outcome == Linked {
					summary.BytesReclaimed += targetSize
					if owner := ownerOf(active, target.Path); owner != nil {
						mutated[owner.Root] = true
					}
				}
				if outcome == RollbackFailed {
					merr = multierror.Append(merr, fmt.Errorf("%s: %w", target.Path, rerr))
					o.Log.Error().Str("target", target.Path).Err(rerr).Msg("rollback failed")
				}
				summary.Replacements = append(summary.Replacements, rec)
			}
		}
	}

	// Pass 3: post-validate every repository that was actually mutated, and
	// release every lock acquired in pass 1.
	for _, p := range active {
		switch {
		case opts.NoFsck:
			p.rs.PostOK = true
		case !mutated[p.repo.Root]:
			// Untouched repositories had no replacement attempted in them;
			// spec §4.5 step 8 does not ask for post-validation here, and
			// running it anyway would fail the run on a pre-existing defect
			// this run never touched.
			p.rs.PostOK = true
		default:
			ok, details, verr := o.Validator.validateWithTimeout(ctx, p.repo, opts.FsckTimeout)
			p.rs.PostOK, p.rs.PostDetails = ok, details
			switch {
			case verr != nil:
				merr = multierror.Append(merr, fmt.Errorf("post-validate %s: %w", p.repo.Root, verr))
			case !ok:
				merr = multierror.Append(merr, fmt.Errorf("post-validate %s: repository failed fsck after replacement", p.repo.Root))
				o.Log.Error().Str("repo", p.repo.Root).Str("fsck", details).Msg("post-validation failed")
			}
		}

		if !opts.NoLock {
			o.Lock.Release(p.repo, p.lock)
			p.rs.LockState = p.repo.LockState
		}
	}
	active = nil // released above; the deferred cleanup has nothing left to do

	summary.Exit = exitForRun(summary)
	o.Log.Info().
		Str("reclaimed", units.BytesSize(float64(summary.BytesReclaimed))).
		Int("replacements", len(summary.Replacements)).
		Msg("run complete")

	return summary, merr.ErrorOrNil()
}

func (v *Validator) validateWithTimeout(ctx context.Context, repo *Repository, timeout time.Duration) (bool, string, error) {
	if timeout > 0 {
		saved := v.Timeout
		v.Timeout = timeout
		defer func() { v.Timeout = saved }()
	}
	return v.Validate(ctx, repo)
}

// ownerOf returns the pending repository whose object directory contains
// path, or nil if none of active owns it.
func ownerOf(active []*pending, path string) *Repository {
	for _, p := range active {
		if strings.HasPrefix(path, p.repo.ObjectDir+string(os.PathSeparator)) {
			return p.repo
		}
	}
	return nil
}

// exitForRun derives the run's exit code once replacement and
// post-validation have completed (normal, non-fsck_only mode). A
// RollbackFailed outcome and a post-validation failure both imply possible
// on-disk corruption (spec §7) and share exit code 3; a pre-validation
// exclusion alone (rs.Skipped) never fails the run here (spec §8 Scenario
// D) — that is fsck_only's concern, handled separately in Run.
func exitForRun(s *Summary) ExitCode {
	for _, r := range s.Replacements {
		if r.Outcome == RollbackFailed {
			return ExitPostValidationFailed
		}
	}
	for _, rs := range s.Repos {
		if rs.Skipped {
			continue
		}
		if !rs.PostOK {
			return ExitPostValidationFailed
		}
	}
	return ExitOK
}
