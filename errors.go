// Copyright (c) 2024 The eedlab developers. All rights reserved.
// Project site: https://github.com/gotmc/eedlab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package eedlab

import (
	"errors"
	"fmt"
)

// ErrNoBackend is wrapped by the error of a failed Connect.
var ErrNoBackend = errors.New("no matching backend")

// TransportError reports a failure of the underlying connection, such as an
// unreachable device or an I/O error.
type TransportError struct {
	Op  string // "write", "query", "open" or "close"
	Cmd string
	Err error
}

func (e *TransportError) Error() string {
	if e.Cmd == "" {
		return fmt.Sprintf("transport %s: %s", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s %q: %s", e.Op, e.Cmd, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FramingError reports a reply whose framing does not match what was
// requested, e.g. a chunk shorter than its header or a payload whose length
// differs from the requested sample window.
type FramingError struct {
	Cmd  string
	Len  int // bytes received (or decoded)
	Want int
	Msg  string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error on %q: %s (got %d, want %d)", e.Cmd, e.Msg, e.Len, e.Want)
}

// ParseError reports a reply that is not a well-formed number or boolean.
type ParseError struct {
	Cmd   string
	Reply string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing reply %q to %q: %s", e.Reply, e.Cmd, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
