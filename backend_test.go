// Copyright (c) 2024 The eedlab developers. All rights reserved.
// Project site: https://github.com/gotmc/eedlab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package eedlab

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/gotmc/eedlab/lib/scpitest"
)

func failingBackend(name string) Backend {
	return Backend{
		Name: name,
		Open: func(r Resource) (Transport, error) {
			return nil, fmt.Errorf("cannot open %s", r)
		},
	}
}

func fakeBackend(name string, fake *scpitest.Fake) Backend {
	return Backend{
		Name: name,
		Open: func(Resource) (Transport, error) { return fake, nil },
	}
}

func TestConnectFirstLiveBackendWins(t *testing.T) {
	mute := scpitest.New() // opens, never answers *IDN?
	live := scpitest.New().Reply("*IDN?", "RIGOL TECHNOLOGIES,DP832,DP8A0000,00.01.14")
	spare := scpitest.New().Reply("*IDN?", "spare")

	res := Connect("TCPIP0::10.0.0.5::INSTR", []Backend{
		failingBackend("linux_kernel"),
		fakeBackend("usbtmc", mute),
		fakeBackend("vxi11", live),
		fakeBackend("socket", spare),
	})
	if res.Status != Connected {
		t.Fatalf("status = %s, err = %v", res.Status, res.Err())
	}
	if res.Backend != "vxi11" || res.Instrument.Backend() != "vxi11" {
		t.Errorf("backend = %q", res.Backend)
	}
	if !strings.HasPrefix(res.IDN, "RIGOL") {
		t.Errorf("idn = %q", res.IDN)
	}
	if len(res.Attempts) != 2 {
		t.Errorf("attempts = %+v", res.Attempts)
	}
	if !mute.Closed() {
		t.Error("transport that failed the probe was not closed")
	}
	if spare.Count("*IDN?") != 0 {
		t.Error("backend after the live one was tried")
	}
	if res.Err() != nil {
		t.Errorf("Err() = %v", res.Err())
	}
}

func TestConnectNoBackendMatched(t *testing.T) {
	res := Connect("/dev/usbtmc0", []Backend{failingBackend("a"), failingBackend("b")})
	if res.Status != NoBackendMatched {
		t.Fatalf("status = %s", res.Status)
	}
	err := res.Err()
	if !errors.Is(err, ErrNoBackend) {
		t.Errorf("err = %v, want ErrNoBackend", err)
	}
	for _, s := range []string{"a:", "b:", "/dev/usbtmc0"} {
		if !strings.Contains(err.Error(), s) {
			t.Errorf("err %q missing %q", err, s)
		}
	}
}

func TestConnectNoBackends(t *testing.T) {
	res := Connect("/dev/usbtmc0", nil)
	if res.Status != NoBackends || !errors.Is(res.Err(), ErrNoBackend) {
		t.Errorf("status = %s, err = %v", res.Status, res.Err())
	}
}

func TestConnectBadResource(t *testing.T) {
	res := Connect("FOO0::1::INSTR", []Backend{failingBackend("a")})
	if res.Status != BadResource {
		t.Errorf("status = %s", res.Status)
	}
	if res.Err() == nil {
		t.Error("expected error")
	}
}
