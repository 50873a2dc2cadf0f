// Copyright (C) 2025  Nexedi SA and Contributors.
//                     Kirill Smelkov <kirr@nexedi.com>
//
// This program is free software: you can Use, Study, Modify and Redistribute
// it under the terms of the GNU General Public License version 3, or (at your
// option) any later version, as published by the Free Software Foundation.
//
// You can also Link and Combine this program with other software covered by
// the terms of any of the Free Software licenses or any of the Open Source
// Initiative approved licenses and Convey the resulting work. Corresponding
// source of such a combination shall include the source code for all other
// software used.
//
// This program is distributed WITHOUT ANY WARRANTY; without even the implied
// warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// See COPYING file for full licensing terms.
// See https://www.nexedi.com/licensing for rationale and options.

// Package git wraps package git2go, providing unconditional safety.
//
// For example git2go.OdbObject.Data() returns []byte that aliases unsafe
// memory that can go away from under []byte if the original OdbObject is
// garbage collected. The following code snippet is thus _not_ correct:
//
//	obj = odb.Read(oid)
//	data = obj.Data()
//	... use data
//
// because obj can be garbage-collected right after `data = obj.Data()` but
// before `use data` leading to either crashes or memory corruption. A
// runtime.KeepAlive(obj) needs to be added to the end of the snippet - after
// `use data` - to make that code correct.
//
// Given that obj.Data() is not "speaking" by itself as unsafe, git-backup
// took the decision to localize git2go-related code in one small place here,
// and to expose only safe things to outside: we make data copies when
// reading object data and similar things to provide unconditional safety to
// the caller via that copy cost.
//
// Only the Repository → Odb → OdbObject read path survives here — this
// module's --verify-fingerprint mode (SPEC_FULL.md §12) only ever
// re-derives an object's fingerprint by reading it back from the object
// database; it never walks commits, trees or references, so those wrapper
// types are not carried over from git-backup's copy of this file.
package git

import (
	"runtime"

	git2go "github.com/libgit2/git2go/v31"
)

// ObjectType constants, safe to propagate as is.
const (
	ObjectAny     = git2go.ObjectAny
	ObjectInvalid = git2go.ObjectInvalid
	ObjectCommit  = git2go.ObjectCommit
	ObjectTree    = git2go.ObjectTree
	ObjectBlob    = git2go.ObjectBlob
	ObjectTag     = git2go.ObjectTag
)

// types that are safe to propagate as is.
type (
	ObjectType = git2go.ObjectType // int
	Oid        = git2go.Oid        // [20]byte ; cloned when retrieved
)

// Repository provides a safe wrapper over git2go.Repository.
type Repository struct {
	repo *git2go.Repository
}

// Odb provides a safe wrapper over git2go.Odb.
type Odb struct {
	odb *git2go.Odb
}

// OdbObject provides a safe wrapper over git2go.OdbObject.
type OdbObject struct {
	obj *git2go.OdbObject
}

// OpenRepository opens the repository at path (bare or not) for reading.
func OpenRepository(path string) (*Repository, error) {
	repo, err := git2go.OpenRepository(path)
	if err != nil {
		return nil, err
	}
	return &Repository{repo: repo}, nil
}

// Odb returns r's object database.
func (r *Repository) Odb() (*Odb, error) {
	odb, err := r.repo.Odb()
	if err != nil {
		return nil, err
	}
	return &Odb{odb}, nil
}

// Read looks up and reads the object named by oid.
func (o *Odb) Read(oid *Oid) (*OdbObject, error) {
	obj, err := o.odb.Read(oid)
	if err != nil {
		return nil, err
	}
	return &OdbObject{obj}, nil
}

// Type returns obj's object type. Safe as-is: ObjectType is a plain int.
func (o *OdbObject) Type() ObjectType { return o.obj.Type() }

// Id returns obj's oid, cloned so it outlives obj's garbage collection.
func (o *OdbObject) Id() *Oid {
	id := oidClone(o.obj.Id())
	runtime.KeepAlive(o)
	return id
}

// Data returns obj's content, copied so it outlives obj's garbage
// collection — see the package doc comment for why this copy is required.
func (o *OdbObject) Data() []byte {
	data := bytesClone(o.obj.Data())
	runtime.KeepAlive(o)
	return data
}

func oidClone(oid *Oid) *Oid {
	if oid == nil {
		return nil
	}
	var oid2 Oid
	copy(oid2[:], oid[:])
	return &oid2
}

// bytesClone replaces git-backup's own hand-written bytesClone helper —
// both it and the sibling stringsClone predate the standard library
// gaining strings.Clone/bytes.Clone in Go 1.20; only the byte-slice one
// has a caller left in this trimmed file.
func bytesClone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
