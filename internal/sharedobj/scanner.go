package sharedobj

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// reservedObjectSubdirs are loose-object directory entries that are never
// fan-out hex buckets (spec §4.4 "ignoring the reserved subdirectories
// pack and info").
var reservedObjectSubdirs = Set[string]{"pack": {}, "info": {}}

// Scanner discovers repositories and groups their loose objects into
// replacement plans (spec §4.4).
type Scanner struct {
	// Concurrency bounds how many root trees are walked in parallel during
	// DiscoverRepos. Zero means a sensible default. Discovery is read-only,
	// so fanning it out does not affect the per-repository ordering
	// guarantee the Orchestrator owns once discovery has completed
	// (SPEC_FULL.md §5 expansion).
	Concurrency int

	// VerifyFingerprint, when set, re-confirms every loose object's
	// fingerprint through libgit2 (fingerprintVerifier) during
	// CollectGroups instead of trusting its storage path. An object that
	// fails verification is excluded from grouping entirely, as if it were
	// never discovered (SPEC_FULL.md §12).
	VerifyFingerprint bool
}

// DiscoverRepos walks each of roots, recognizing a repository by the
// presence of a `.git/objects` directory, and returns the unique,
// canonicalized set of repository roots found — overlapping input roots
// collapse to one entry per repository (spec §4.4.1).
func (s *Scanner) DiscoverRepos(roots []string) ([]*Repository, error) {
	concurrency := s.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}

	var (
		mu    sync.Mutex
		found = map[string]*Repository{} // canonical root -> Repository
	)

	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	for _, root := range roots {
		root := root
		g.Go(func() error {
			repos, err := discoverUnder(root)
			if err != nil {
				return fmt.Errorf("discover under %s: %w", root, err)
			}
			mu.Lock()
			for _, r := range repos {
				if _, dup := found[r.Root]; !dup {
					found[r.Root] = r
				}
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*Repository, 0, len(found))
	for _, r := range found {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Root < out[j].Root })
	return out, nil
}

// discoverUnder walks one root tree, finding every `.git/objects` subtree.
// The walk callback raises rather than threading an error return through
// filepath.Walk's own error channel; errcatch recovers it at this function's
// boundary and hands it back as a plain error, the same division of labor
// git-backup's own Walk callbacks used.
func discoverUnder(root string) (repos []*Repository, err error) {
	defer errcatch(func(e *Error) { err = e })

	canonRoot, err := filepath.EvalSymlinks(root)
	raiseif(err)

	raiseif(filepath.Walk(canonRoot, func(path string, info os.FileInfo, walkErr error) error {
		raiseif(walkErr)
		if !info.IsDir() {
			return nil
		}

		if strings.HasSuffix(path, "/.git/objects") || path == ".git/objects" {
			return filepath.SkipDir // never descend into an object store itself
		}

		if filepath.Base(path) == ".git" {
			objDir := filepath.Join(path, "objects")
			if st, statErr := os.Stat(objDir); statErr == nil && st.IsDir() {
				canonObjDir, err := filepath.EvalSymlinks(objDir)
				raiseif(err)
				repoRoot := filepath.Dir(path)
				repos = append(repos, NewRepository(repoRoot, canonObjDir))
			}
			return filepath.SkipDir // .git itself need not be recursed into further
		}

		return nil
	}))
	return repos, nil
}

// CollectGroups enumerates loose objects across repos and buckets them into
// ReplacementPlans, one per (device, fingerprint) bucket spanning more than
// one InodeCluster (spec §4.4.2-3). Callers pass only repositories that are
// locked and have passed pre-validation — objects in any other repository
// must never appear as a plan's source or target (spec §3 invariant
// "a repository that failed pre-validation contributes zero replacements").
func (s *Scanner) CollectGroups(repos []*Repository) ([]*ReplacementPlan, error) {
	var verifier *fingerprintVerifier
	if s.VerifyFingerprint {
		verifier = newFingerprintVerifier()
	}

	// Pass 1: bucket by device (hard links never cross devices).
	byDevice := map[uint64]map[string]*EquivalenceGroup{} // device -> fingerprint(hex) -> group

	for _, repo := range repos {
		objs, err := enumerateLooseObjects(repo.ObjectDir)
		if err != nil {
			return nil, fmt.Errorf("enumerate %s: %w", repo.ObjectDir, err)
		}

		for _, obj := range objs {
			if verifier != nil {
				if err := verifier.verify(repo.Root, obj.Fingerprint); err != nil {
					continue // excluded, not fatal to the run — see VerifyFingerprint's doc comment
				}
			}

			byFingerprint, ok := byDevice[obj.Device]
			if !ok {
				byFingerprint = map[string]*EquivalenceGroup{}
				byDevice[obj.Device] = byFingerprint
			}

			key := obj.Fingerprint.String()
			group, ok := byFingerprint[key]
			if !ok {
				group = &EquivalenceGroup{Device: obj.Device, Fingerprint: obj.Fingerprint}
				byFingerprint[key] = group
			}

			// Pass 3 (folded in): bucket within the group by inode.
			addToCluster(group, obj)
		}
	}

	var plans []*ReplacementPlan
	var groups []*EquivalenceGroup
	for _, byFingerprint := range byDevice {
		for _, group := range byFingerprint {
			groups = append(groups, group)
		}
	}
	// deterministic plan order: by (device, fingerprint)
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.Device != b.Device {
			return a.Device < b.Device
		}
		return a.Fingerprint.String() < b.Fingerprint.String()
	})

	for _, group := range groups {
		if plan := group.Plan(); plan != nil {
			plans = append(plans, plan)
		}
	}
	return plans, nil
}

func addToCluster(group *EquivalenceGroup, obj LooseObject) {
	for _, c := range group.Clusters {
		if c.Inode == obj.Inode {
			c.Members = append(c.Members, obj)
			return
		}
	}
	group.Clusters = append(group.Clusters, &InodeCluster{
		Device:  group.Device,
		Inode:   obj.Inode,
		Members: []LooseObject{obj},
	})
}

// hexPrefix reports whether s is a two-character lowercase hex string,
// matching the "xx" fan-out directory naming (spec §4.4).
func hexPrefix(s string) bool {
	if len(s) != 2 {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}

// enumerateLooseObjects lists every loose object file under objectDir,
// skipping the "pack" and "info" reserved entries and any orphaned
// *.git-share-obj.bak file left by an interrupted Replace (spec §5
// "tolerate orphan *.git-share-obj.bak files found during scanning").
func enumerateLooseObjects(objectDir string) ([]LooseObject, error) {
	entries, err := os.ReadDir(objectDir)
	if err != nil {
		return nil, err
	}

	var objs []LooseObject
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		prefix := e.Name()
		if reservedObjectSubdirs.Contains(prefix) || !hexPrefix(prefix) {
			continue
		}

		sub := filepath.Join(objectDir, prefix)
		files, err := os.ReadDir(sub)
		if err != nil {
			return nil, err
		}

		for _, f := range files {
			if f.IsDir() {
				continue
			}
			name := f.Name()
			if strings.HasSuffix(name, BackupSuffix) {
				continue // orphan backup, not an object — ignored, not cleaned up
			}

			fp, err := FingerprintParse(prefix + name)
			if err != nil {
				continue // not a loose-object-shaped filename; skip silently
			}

			path := filepath.Join(sub, name)
			obj, err := StatLooseObject(path, fp)
			if err != nil {
				if os.IsNotExist(err.(*pathError).err) {
					continue // removed between ReadDir and Stat — transient, skip
				}
				return nil, err
			}
			objs = append(objs, obj)
		}
	}
	return objs, nil
}
