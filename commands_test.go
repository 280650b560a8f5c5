// Copyright (c) 2024 The eedlab developers. All rights reserved.
// Project site: https://github.com/gotmc/eedlab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package eedlab

import (
	"testing"

	"github.com/gotmc/eedlab/lib/scpitest"
)

var testTable = CommandTable{
	"timebase":  {Get: ":timebase:main:scale?", Set: ":timebase:main:scale %g"},
	"bandwidth": {Get: ":channel%d:bwlimit?", Set: ":channel%d:bwlimit %s", Options: []string{"OFF", "20M"}},
	"clear":     {Set: ":CLEAR%s"},
	"status":    {Get: "TRIGGER:STATUS?"},
}

func TestCommandTableFormatting(t *testing.T) {
	tests := []struct {
		name    string
		set     bool
		args    []any
		want    string
		wantErr bool
	}{
		{name: "timebase", args: nil, want: ":timebase:main:scale?"},
		{name: "timebase", set: true, args: []any{0.0005}, want: ":timebase:main:scale 0.0005"},
		{name: "bandwidth", args: []any{2}, want: ":channel2:bwlimit?"},
		{name: "bandwidth", set: true, args: []any{3, "20m"}, want: ":channel3:bwlimit 20m"},
		{name: "bandwidth", set: true, args: []any{3, "100M"}, wantErr: true},
		{name: "status", set: true, args: []any{"x"}, wantErr: true},
		{name: "clear", wantErr: true},
		{name: "timebase", set: true, wantErr: true},
		{name: "nope", wantErr: true},
	}
	for _, tt := range tests {
		var got string
		var err error
		if tt.set {
			got, err = testTable.SetCmd(tt.name, tt.args...)
		} else {
			got, err = testTable.GetCmd(tt.name, tt.args...)
		}
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s(set=%t, %v): expected error, got %q", tt.name, tt.set, tt.args, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s(set=%t, %v): %v", tt.name, tt.set, tt.args, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s(set=%t, %v) = %q, want %q", tt.name, tt.set, tt.args, got, tt.want)
		}
	}
}

func TestInstrumentTableAccess(t *testing.T) {
	fake := scpitest.New().Reply(":timebase:main:scale?", "1.000000e-03")
	inst := NewInstrument(fake)
	v, err := inst.GetFloat(testTable, "timebase")
	if err != nil || v != 0.001 {
		t.Errorf("GetFloat = %g, %v", v, err)
	}
	if err := inst.Set(testTable, "bandwidth", 1, "OFF"); err != nil {
		t.Fatal(err)
	}
	if !fake.Sent(":channel1:bwlimit OFF") {
		t.Errorf("log = %q", fake.Log())
	}
}

func TestNames(t *testing.T) {
	got := testTable.Names()
	want := []string{"bandwidth", "clear", "status", "timebase"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Names = %q", got)
		}
	}
}

func TestOnOff(t *testing.T) {
	if OnOff(true) != "ON" || OnOff(false) != "OFF" {
		t.Error("OnOff")
	}
}
