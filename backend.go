// Copyright (c) 2024 The eedlab developers. All rights reserved.
// Project site: https://github.com/gotmc/eedlab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package eedlab

import (
	"fmt"
	"strings"

	"github.com/golang/glog"
	"go.uber.org/multierr"
)

// Backend is a named transport constructor. Open returns an error when the
// resource cannot be reached with this backend, including resource kinds the
// backend does not serve.
type Backend struct {
	Name string
	Open func(r Resource) (Transport, error)
}

// ConnectStatus tags the outcome of Connect.
type ConnectStatus int

// Possible outcomes of Connect.
const (
	Connected ConnectStatus = iota
	NoBackendMatched
	NoBackends
	BadResource
)

var connectStatusDesc = map[ConnectStatus]string{
	Connected:        "connected",
	NoBackendMatched: "no backend matched",
	NoBackends:       "no backends given",
	BadResource:      "bad resource",
}

func (s ConnectStatus) String() string {
	return connectStatusDesc[s]
}

// Attempt records one failed backend.
type Attempt struct {
	Backend string
	Err     error
}

// ConnectResult is the outcome of Connect. Instrument is set only when
// Status is Connected.
type ConnectResult struct {
	Status     ConnectStatus
	Resource   Resource
	Backend    string
	IDN        string
	Instrument *Instrument
	Attempts   []Attempt
}

// Err returns nil when connected, otherwise an error wrapping ErrNoBackend
// that carries every attempt's failure.
func (r ConnectResult) Err() error {
	if r.Status == Connected {
		return nil
	}
	var errs error
	for _, a := range r.Attempts {
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", a.Backend, a.Err))
	}
	names := make([]string, 0, len(r.Attempts))
	for _, a := range r.Attempts {
		names = append(names, a.Backend)
	}
	if errs == nil {
		return fmt.Errorf("%w for %s: %s", ErrNoBackend, r.Resource, r.Status)
	}
	return fmt.Errorf("%w for %s (tried %s): %w",
		ErrNoBackend, r.Resource, strings.Join(names, ","), errs)
}

// Connect tries each backend in order. A backend counts as connected once it
// opens the resource and answers *IDN?; a failure of either step closes the
// transport and moves on to the next backend. Errors after a successful
// connection belong to the caller.
func Connect(resource string, backends []Backend, opts ...Option) ConnectResult {
	res := ConnectResult{}
	r, err := ParseResource(resource)
	res.Resource = r
	if err != nil {
		res.Status = BadResource
		res.Attempts = append(res.Attempts, Attempt{Backend: "parse", Err: err})
		return res
	}
	if len(backends) == 0 {
		res.Status = NoBackends
		return res
	}
	for _, be := range backends {
		tr, err := be.Open(r)
		if err != nil {
			glog.V(1).Infof("backend %s: open %s: %s", be.Name, r, err)
			res.Attempts = append(res.Attempts, Attempt{Backend: be.Name, Err: err})
			continue
		}
		inst := NewInstrument(tr, opts...)
		inst.backend = be.Name
		idn, err := inst.Identify()
		if err != nil {
			glog.V(1).Infof("backend %s: probe %s: %s", be.Name, r, err)
			res.Attempts = append(res.Attempts, Attempt{
				Backend: be.Name,
				Err:     multierr.Append(err, tr.Close()),
			})
			continue
		}
		glog.V(1).Infof("connected to %s using %s: %s", r, be.Name, idn)
		res.Status = Connected
		res.Backend = be.Name
		res.IDN = idn
		res.Instrument = inst
		return res
	}
	res.Status = NoBackendMatched
	return res
}
