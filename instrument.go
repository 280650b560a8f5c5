// Copyright (c) 2024 The eedlab developers. All rights reserved.
// Project site: https://github.com/gotmc/eedlab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package eedlab

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang/glog"
	"github.com/gotmc/query"
)

// DefaultMaxRead is the reply size limit used by Query when no WithMaxRead
// option is given.
const DefaultMaxRead = 1 << 16

// Transport carries SCPI commands to an instrument. Write sends a command
// that has no reply. Query sends a command and blocks for a reply of at most
// maxBytes, returned exactly as received.
type Transport interface {
	Write(cmd string) error
	Query(cmd string, maxBytes int) ([]byte, error)
	Close() error
}

// Instrument models a SCPI instrument reached over a Transport. It is not
// safe for concurrent use; callers own the connection for the duration of
// each operation.
type Instrument struct {
	tr      Transport
	backend string
	name    string
	maxRead int
	debug   bool // if true, log every command and reply. Set via WithDebug().
	last    string
}

// Option applies an option to the instrument.
type Option func(*Instrument)

// WithDebug causes commands and responses to be logged.
func WithDebug() Option { return func(i *Instrument) { i.debug = true } }

// WithMaxRead sets the reply size limit used by Query.
func WithMaxRead(n int) Option {
	return func(i *Instrument) {
		if n > 0 {
			i.maxRead = n
		}
	}
}

// WithName sets the name used in log lines.
func WithName(name string) Option { return func(i *Instrument) { i.name = name } }

// NewInstrument wraps an already open transport.
func NewInstrument(tr Transport, opts ...Option) *Instrument {
	i := Instrument{
		tr:      tr,
		maxRead: DefaultMaxRead,
	}
	for _, opt := range opts {
		opt(&i)
	}
	return &i
}

// Backend returns the name of the backend the instrument was connected
// with, or "" if it was built directly with NewInstrument.
func (i *Instrument) Backend() string { return i.backend }

// Name returns the instrument name set by WithName.
func (i *Instrument) Name() string { return i.name }

// Command formats according to a format specifier if provided and sends the
// resulting SCPI command. Leading and trailing whitespace is removed.
func (i *Instrument) Command(format string, a ...any) error {
	cmd := format
	if a != nil {
		cmd = fmt.Sprintf(format, a...)
	}
	cmd = strings.TrimSpace(cmd)
	i.logf("cmd %q", cmd)
	if err := i.tr.Write(cmd); err != nil {
		return &TransportError{Op: "write", Cmd: cmd, Err: err}
	}
	return nil
}

// Query sends the query and returns the reply with surrounding whitespace
// (including the terminating newline) removed. Query satisfies
// query.Querier.
func (i *Instrument) Query(cmd string) (string, error) {
	b, err := i.QueryRaw(cmd, i.maxRead)
	if err != nil {
		return "", err
	}
	i.last = strings.TrimSpace(string(b))
	i.logf("reply %q", i.last)
	return i.last, nil
}

// Queryf formats the query before sending it.
func (i *Instrument) Queryf(format string, a ...any) (string, error) {
	return i.Query(fmt.Sprintf(format, a...))
}

// QueryRaw sends the query and returns up to maxBytes of reply exactly as
// received.
func (i *Instrument) QueryRaw(cmd string, maxBytes int) ([]byte, error) {
	cmd = strings.TrimSpace(cmd)
	i.logf("query %q (max %d bytes)", cmd, maxBytes)
	b, err := i.tr.Query(cmd, maxBytes)
	if err != nil {
		return nil, &TransportError{Op: "query", Cmd: cmd, Err: err}
	}
	return b, nil
}

// Float queries a floating point value.
func (i *Instrument) Float(format string, a ...any) (float64, error) {
	cmd := sprintf(format, a)
	v, err := query.Float64(i, cmd)
	return v, i.classify(cmd, err)
}

// Int queries an integer value.
func (i *Instrument) Int(format string, a ...any) (int, error) {
	cmd := sprintf(format, a)
	v, err := query.Int(i, cmd)
	return v, i.classify(cmd, err)
}

// Bool queries an ON/OFF style value.
func (i *Instrument) Bool(format string, a ...any) (bool, error) {
	cmd := sprintf(format, a)
	v, err := query.Bool(i, cmd)
	return v, i.classify(cmd, err)
}

// Identify returns the reply to *IDN?.
func (i *Instrument) Identify() (string, error) { return i.Query("*IDN?") }

// OperationComplete returns true once all pending operations have finished.
func (i *Instrument) OperationComplete() (bool, error) { return i.Bool("*OPC?") }

// Reset sends *RST.
func (i *Instrument) Reset() error { return i.Command("*RST") }

// Close closes the transport.
func (i *Instrument) Close() error {
	if err := i.tr.Close(); err != nil {
		return &TransportError{Op: "close", Err: err}
	}
	return nil
}

// classify leaves transport errors alone and turns anything else returned
// by the query helpers into a ParseError.
func (i *Instrument) classify(cmd string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &ParseError{Cmd: cmd, Reply: i.last, Err: err}
}

func (i *Instrument) logf(format string, a ...any) {
	if i.name != "" {
		format = i.name + ": " + format
	}
	if i.debug {
		glog.InfoDepth(1, fmt.Sprintf(format, a...))
		return
	}
	if glog.V(2) {
		glog.InfoDepth(1, fmt.Sprintf(format, a...))
	}
}

func sprintf(format string, a []any) string {
	if a == nil {
		return format
	}
	return fmt.Sprintf(format, a...)
}
