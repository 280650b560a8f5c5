// Copyright (c) 2024 The eedlab developers. All rights reserved.
// Project site: https://github.com/gotmc/eedlab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package dm3058e drives the Rigol DM3058E 5 1/2 digit multimeter.
package dm3058e

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gotmc/eedlab"
)

// Function is a measurement function.
type Function string

// Measurement functions.
const (
	DCV         Function = "DCV"
	ACV         Function = "ACV"
	DCI         Function = "DCI"
	ACI         Function = "ACI"
	Resistance  Function = "RESISTANCE"
	FResistance Function = "FRESISTANCE" // four wire
	Frequency   Function = "FREQUENCY"
	Period      Function = "PERIOD"
	Continuity  Function = "CONTINUITY"
	Diode       Function = "DIODE"
	Capacitance Function = "CAPACITANCE"
)

// Functions lists every measurement function.
var Functions = []Function{DCV, ACV, DCI, ACI, Resistance, FResistance, Frequency, Period, Continuity, Diode, Capacitance}

type functionCmds struct {
	sel     string // selects the function
	measure string // reads one value
}

var functionTable = map[Function]functionCmds{
	DCV:         {"function:voltage:DC", ":measure:voltage:DC?"},
	ACV:         {"function:voltage:AC", ":measure:voltage:AC?"},
	DCI:         {"function:current:DC", ":measure:current:DC?"},
	ACI:         {"function:current:AC", ":measure:current:AC?"},
	Resistance:  {"function:resistance", ":measure:resistance?"},
	FResistance: {"function:fresistance", ":measure:fresistance?"},
	Frequency:   {"function:frequency", ":measure:frequency?"},
	Period:      {"function:period", ":measure:period?"},
	Continuity:  {"function:continuity", ":measure:continuity?"},
	Diode:       {"function:diode", ":measure:diode?"},
	Capacitance: {"function:capacitance", ":measure:capacitance?"},
}

// ParseFunction looks a function up by name, ignoring case.
func ParseFunction(s string) (Function, error) {
	f := Function(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := functionTable[f]; !ok {
		return "", fmt.Errorf("unknown function %q", s)
	}
	return f, nil
}

// Rate is the DC voltage integration rate.
type Rate string

const (
	Slow   Rate = "slow"
	Medium Rate = "medium"
	Fast   Rate = "fast"
)

// dcvRanges are the DC voltage full scale values, indexed by range number.
var dcvRanges = []float64{0.2, 2, 20, 200, 1000}

// Meter is a DM3058E.
type Meter struct {
	*eedlab.Instrument
}

// New wraps a connected instrument.
func New(inst *eedlab.Instrument) *Meter { return &Meter{Instrument: inst} }

// Function returns the active function as the meter reports it.
func (m *Meter) Function() (string, error) { return m.Query(":function?") }

// SetFunction selects f and returns the function the meter reports
// afterwards.
func (m *Meter) SetFunction(f Function) (string, error) {
	cmds, ok := functionTable[Function(strings.ToUpper(string(f)))]
	if !ok {
		return "", fmt.Errorf("unknown function %q", f)
	}
	if err := m.Command(cmds.sel); err != nil {
		return "", err
	}
	return m.Function()
}

// Measure reads one value of function f.
func (m *Meter) Measure(f Function) (float64, error) {
	cmds, ok := functionTable[Function(strings.ToUpper(string(f)))]
	if !ok {
		return 0, fmt.Errorf("unknown function %q", f)
	}
	return m.Float(cmds.measure)
}

func (m *Meter) VDC() (float64, error)         { return m.Measure(DCV) }
func (m *Meter) VAC() (float64, error)         { return m.Measure(ACV) }
func (m *Meter) IDC() (float64, error)         { return m.Measure(DCI) }
func (m *Meter) IAC() (float64, error)         { return m.Measure(ACI) }
func (m *Meter) Resistance() (float64, error)  { return m.Measure(Resistance) }
func (m *Meter) Resistance4() (float64, error) { return m.Measure(FResistance) }
func (m *Meter) Frequency() (float64, error)   { return m.Measure(Frequency) }
func (m *Meter) Period() (float64, error)      { return m.Measure(Period) }
func (m *Meter) Continuity() (float64, error)  { return m.Measure(Continuity) }
func (m *Meter) Diode() (float64, error)       { return m.Measure(Diode) }
func (m *Meter) Capacitance() (float64, error) { return m.Measure(Capacitance) }

// SetDCVRate sets the DC voltage integration rate.
func (m *Meter) SetDCVRate(r Rate) error {
	switch r {
	case Slow, Medium, Fast:
	default:
		return fmt.Errorf("unknown rate %q", r)
	}
	return m.Command(":rate:voltage:DC %s", r)
}

// SetDCVRange sets the DC voltage range: MIN, MAX, DEF or a range index
// 0 to 4.
func (m *Meter) SetDCVRange(r string) error {
	r = strings.ToUpper(strings.TrimSpace(r))
	switch r {
	case "MIN", "MAX", "DEF":
		return m.Command(":measure:voltage:DC %s", r)
	}
	n, err := strconv.Atoi(r)
	if err != nil || n < 0 || n >= len(dcvRanges) {
		return fmt.Errorf("unknown DC voltage range %q", r)
	}
	return m.Command(":measure:voltage:DC %d", n)
}

// SetDCVRangeVolts selects the DC voltage range by its full scale value:
// 0.2, 2, 20, 200 or 1000 V.
func (m *Meter) SetDCVRangeVolts(v float64) error {
	for i, fs := range dcvRanges {
		if math.Abs(v-fs) < fs*1e-6 {
			return m.Command(":measure:voltage:DC %d", i)
		}
	}
	return fmt.Errorf("no DC voltage range of %g V", v)
}
