// Copyright (c) 2024 The eedlab developers. All rights reserved.
// Project site: https://github.com/gotmc/eedlab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package eedlab

import (
	"errors"
	"io"
	"testing"

	"github.com/gotmc/eedlab/lib/scpitest"
)

func TestCommandFormatsAndTrims(t *testing.T) {
	fake := scpitest.New()
	inst := NewInstrument(fake)
	if err := inst.Command("  :TIMebase:MAIN:SCALe %g \n", 0.001); err != nil {
		t.Fatal(err)
	}
	if err := inst.Command(":RUN"); err != nil {
		t.Fatal(err)
	}
	got := fake.Log()
	want := []string{":TIMebase:MAIN:SCALe 0.001", ":RUN"}
	if len(got) != len(want) {
		t.Fatalf("log = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("cmd %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestQueryTrimsReply(t *testing.T) {
	fake := scpitest.New().Reply("*IDN?", "RIGOL TECHNOLOGIES,DS1054Z,DS1ZA0000,00.04.04")
	inst := NewInstrument(fake)
	idn, err := inst.Identify()
	if err != nil {
		t.Fatal(err)
	}
	if idn != "RIGOL TECHNOLOGIES,DS1054Z,DS1ZA0000,00.04.04" {
		t.Errorf("idn = %q", idn)
	}
}

func TestTypedQueries(t *testing.T) {
	fake := scpitest.New().
		Reply(":acquire:mdepth?", "12000").
		Reply(":wav:yincrement?", "4.000000e-02").
		Reply(":CHANnel1:DISPlay?", "1").
		Reply(":CHANnel2:DISPlay?", "0")
	inst := NewInstrument(fake)

	n, err := inst.Int(":acquire:mdepth?")
	if err != nil || n != 12000 {
		t.Errorf("Int = %d, %v", n, err)
	}
	f, err := inst.Float(":wav:yincrement?")
	if err != nil || f != 0.04 {
		t.Errorf("Float = %g, %v", f, err)
	}
	on, err := inst.Bool(":CHANnel%d:DISPlay?", 1)
	if err != nil || !on {
		t.Errorf("Bool(1) = %t, %v", on, err)
	}
	on, err = inst.Bool(":CHANnel%d:DISPlay?", 2)
	if err != nil || on {
		t.Errorf("Bool(2) = %t, %v", on, err)
	}
}

func TestParseError(t *testing.T) {
	fake := scpitest.New().Reply(":acquire:mdepth?", "AUTO")
	inst := NewInstrument(fake)
	_, err := inst.Int(":acquire:mdepth?")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *ParseError", err)
	}
	if pe.Reply != "AUTO" || pe.Cmd != ":acquire:mdepth?" {
		t.Errorf("ParseError = %+v", pe)
	}
}

func TestTransportError(t *testing.T) {
	fake := scpitest.New().
		Fail(":wav:yorigin?", io.ErrUnexpectedEOF).
		Fail(":STOP", io.ErrClosedPipe)
	inst := NewInstrument(fake)

	_, err := inst.Float(":wav:yorigin?")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("query err = %v, want *TransportError", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("query err does not wrap cause: %v", err)
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		t.Errorf("transport failure classified as parse error: %v", err)
	}

	err = inst.Command(":STOP")
	if !errors.As(err, &te) || te.Op != "write" {
		t.Errorf("write err = %v", err)
	}
}

func TestQueryRawPassesLimit(t *testing.T) {
	fake := scpitest.New()
	var gotMax int
	fake.Handler = func(cmd string, maxBytes int) ([]byte, error) {
		gotMax = maxBytes
		return []byte("#9000000003\x01\x02\x03\n"), nil
	}
	inst := NewInstrument(fake, WithMaxRead(1024))
	b, err := inst.QueryRaw("WAV:DATA?", 250256)
	if err != nil {
		t.Fatal(err)
	}
	if gotMax != 250256 {
		t.Errorf("maxBytes = %d", gotMax)
	}
	if len(b) != 15 {
		t.Errorf("len = %d, raw reply must not be trimmed", len(b))
	}
	if _, err := inst.Query(":RUN?"); err != nil {
		t.Fatal(err)
	}
	if gotMax != 1024 {
		t.Errorf("Query maxBytes = %d, want WithMaxRead value", gotMax)
	}
}
