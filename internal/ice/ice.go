// Package ice reports internal compiler errors: violated invariants that
// point at a bug in an earlier pass rather than at the program being compiled.
package ice

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Error is the panic value raised by Panicf.
type Error struct {
	err error
}

func (e *Error) Error() string {
	return "internal compiler error: " + e.err.Error()
}

func (e *Error) Unwrap() error { return e.err }

// Format prints the stack captured at the panic site for %+v.
func (e *Error) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "internal compiler error: %+v", e.err)
		return
	}
	io.WriteString(s, e.Error())
}

// Panicf raises an internal compiler error.
func Panicf(format string, args ...any) {
	panic(&Error{err: errors.Errorf(format, args...)})
}

// Recover stores a pending internal compiler error into *errp.
// It must be deferred directly. Panics of any other kind keep unwinding.
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if e, ok := r.(*Error); ok {
		*errp = e
		return
	}
	panic(r)
}

// Is reports whether err is, or wraps, an internal compiler error.
func Is(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
