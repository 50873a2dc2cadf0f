// Package sharedobj implements the safe replacement engine: discovery,
// grouping, locking, validation and rename-based hard-link substitution of
// loose Git objects across a collection of co-located repositories.
package sharedobj

import (
	"fmt"
	"runtime"
)

// Error wraps an arbitrary payload (usually another error, sometimes a
// plain string) with the calling context it was raised from. Propagating
// panics this way keeps filepath.Walk callbacks and deeply nested helpers
// from needing an `if err != nil { return err }` at every line, while still
// letting the function that catches it with errcatch (discoverUnder) return
// a precise failure as a plain error.
type Error struct {
	info    interface{}
	context []string // calling-context frames, innermost first
}

func (e *Error) Error() string {
	msg := fmt.Sprint(e.info)
	for _, ctx := range e.context {
		msg = ctx + ": " + msg
	}
	return msg
}

// Unwrap lets errors.Is/As see through to a wrapped error, if info is one.
func (e *Error) Unwrap() error {
	if err, ok := e.info.(error); ok {
		return err
	}
	return nil
}

// raise panics with info wrapped as *Error. info is usually an error, but
// can be a string or any Stringer-ish value.
func raise(info interface{}) {
	if e, ok := info.(*Error); ok {
		panic(e)
	}
	panic(&Error{info: info})
}

// raisef is raise(fmt.Sprintf(format, a...)).
func raisef(format string, a ...interface{}) {
	raise(fmt.Sprintf(format, a...))
}

// raiseif raises err if it is non-nil.
func raiseif(err error) {
	if err != nil {
		raise(err)
	}
}

// aserror converts an arbitrary recovered value into an error, preserving
// *Error as-is.
func aserror(r interface{}) *Error {
	if e, ok := r.(*Error); ok {
		return e
	}
	if err, ok := r.(error); ok {
		return &Error{info: err}
	}
	return &Error{info: r}
}

// erraddcallingcontext prefixes e with the name of the function it is being
// reported from.
func erraddcallingcontext(funcname string, e *Error) *Error {
	e.context = append(e.context, funcname)
	return e
}

// erraddcontext prefixes e with an arbitrary descriptive context string.
func erraddcontext(e *Error, context string) *Error {
	e.context = append(e.context, context)
	return e
}

// errcatch is used as `defer errcatch(func(e *Error) {...})` at a function
// boundary to recover a raise()d panic and hand it to the given handler.
// Panics that are not *Error (genuine programming bugs) are re-raised.
func errcatch(handle func(e *Error)) {
	r := recover()
	if r == nil {
		return
	}
	e, ok := r.(*Error)
	if !ok {
		panic(r)
	}
	handle(e)
}

// myfuncname returns the name of the function that calls it — used to
// build calling-context chains without hardcoding names that would drift
// from the actual function on rename.
func myfuncname() string {
	pc, _, _, ok := runtime.Caller(1)
	if !ok {
		return "?"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "?"
	}
	return fn.Name()
}
