// Package xerrors attaches call-site information to errors.
//
// New/Newf and WithStack/EnsureTrace capture a full stack, Wrap/Wrapf record
// the single frame that wrapped the error. The logger and the API error
// writer read these back through the StackPCs/PC methods.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

const maxDepth = 64

type withStack struct {
	err error
	pcs []uintptr
}

func (w *withStack) Error() string       { return w.err.Error() }
func (w *withStack) Unwrap() error       { return w.err }
func (w *withStack) StackPCs() []uintptr { return w.pcs }
func (w *withStack) IsXerrorsWrapper()   {}

type wrap struct {
	err error
	msg string
	pc  uintptr
}

func (w *wrap) Error() string     { return w.msg + ": " + w.err.Error() }
func (w *wrap) Unwrap() error     { return w.err }
func (w *wrap) PC() uintptr       { return w.pc }
func (w *wrap) IsXerrorsWrapper() {}

type hasStack interface{ StackPCs() []uintptr }
type hasPC interface{ PC() uintptr }

// skip counts frames above the caller of captureStack
func captureStack(skip int) []uintptr {
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(2+skip, pcs)
	return pcs[:n]
}

func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	if n := runtime.Callers(2+skip, pcs[:]); n == 0 {
		return 0
	}
	return pcs[0]
}

func withStackSkip(err error, skip int) error {
	if err == nil {
		return nil
	}
	return &withStack{err: err, pcs: captureStack(skip)}
}

// WithStack records the current stack on err.
func WithStack(err error) error { return withStackSkip(err, 2) }

// EnsureTrace records a stack only if nothing in the chain has one yet.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var hs hasStack
	if errors.As(err, &hs) && hs != nil && len(hs.StackPCs()) > 0 {
		return err
	}
	return withStackSkip(err, 2)
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrap{err: err, msg: msg, pc: callerPC(1)}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrap{err: err, msg: fmt.Sprintf(format, args...), pc: callerPC(1)}
}

func New(msg string) error             { return withStackSkip(errors.New(msg), 2) }
func Newf(f string, args ...any) error { return withStackSkip(fmt.Errorf(f, args...), 2) }

// Frames renders the deepest captured stack in err's chain as "func file:line"
// strings. When no stack was captured it falls back to the wrap sites.
func Frames(err error) []string {
	var pcs []uintptr
	var sites []uintptr
	for e := err; e != nil; e = errors.Unwrap(e) {
		if hs, ok := e.(hasStack); ok && len(hs.StackPCs()) > 0 {
			pcs = hs.StackPCs()
		}
		if hp, ok := e.(hasPC); ok && hp.PC() != 0 {
			sites = append(sites, hp.PC())
		}
	}
	if len(pcs) == 0 {
		pcs = sites
	}
	if len(pcs) == 0 {
		return nil
	}

	out := make([]string, 0, len(pcs))
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if strings.HasPrefix(fr.Function, "runtime.") {
			break
		}
		if fr.Function != "" {
			out = append(out, fmt.Sprintf("%s %s:%d", fr.Function, fr.File, fr.Line))
		}
		if !more {
			break
		}
	}
	return out
}
