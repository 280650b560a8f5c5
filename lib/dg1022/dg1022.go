// Copyright (c) 2024 The eedlab developers. All rights reserved.
// Project site: https://github.com/gotmc/eedlab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package dg1022 drives the Rigol DG1022 two channel function generator.
package dg1022

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gotmc/eedlab"
)

// NumChannels is the number of outputs.
const NumChannels = 2

// Commands lists the generator wide settings. Channel settings are in
// ChannelCommands.
var Commands = eedlab.CommandTable{
	"unit":           {Get: "VOLTAGE:UNIT?", Set: "VOLTAGE:UNIT %s", Options: []string{"VPP", "VRMS", "DBM"}},
	"trigger_source": {Set: "TRIGGER:SOURCE %s", Options: []string{"IMMediate", "IMM", "EXTernal", "EXT", "BUS"}},
	"burst_mode":     {Get: "BURST:MODE?", Set: "BURST:MODE %s", Options: []string{"TRIGgered", "TRIG", "GATed", "GAT"}},
	"burst_cycles":   {Get: "BURST:NCYCLES?", Set: "BURST:NCYCLES %s"},
	"burst_period":   {Get: "BURST:INTERNAL:PERIOD?", Set: "BURST:INTERNAL:PERIOD %g"},
	"burst_phase":    {Get: "BURST:PHASE?", Set: "BURST:PHASE %g"},
	"burst_state":    {Get: "BURST:STATE?", Set: "BURST:STATE %s"},
}

// ChannelCommands are written for channel 1; Channel rewrites them for
// channel 2.
var ChannelCommands = eedlab.CommandTable{
	"phase":     {Get: "PHASE?", Set: "PHASE %g"},
	"function":  {Get: "FUNCTION?", Set: "FUNCTION %s", Options: []string{"SINusoid", "SIN", "SQUare", "SQU", "RAMP", "PULSe", "PULS", "NOISe", "NOIS", "DC", "USER"}},
	"duty":      {Get: "FUNCTION:SQUARE:DCYCLE?", Set: "FUNCTION:SQUARE:DCYCLE %g"},
	"symmetry":  {Get: "FUNCTION:RAMP:SYMM?", Set: "FUNCTION:RAMP:SYMM %g"},
	"frequency": {Get: "FREQUENCY?", Set: "FREQUENCY %g"},
	"amplitude": {Get: "VOLTAGE?", Set: "VOLTAGE %g"},
	"offset":    {Get: "VOLTAGE:OFFSET?", Set: "VOLTAGE:OFFSET %g"},
	"high":      {Get: "VOLTAGE:HIGH?", Set: "VOLTAGE:HIGH %g"},
	"low":       {Get: "VOLTAGE:LOW?", Set: "VOLTAGE:LOW %g"},
	"output":    {Get: "OUTPUT?", Set: "OUTPUT %s"},
	"load":      {Get: "OUTPUT:LOAD?", Set: "OUTPUT:LOAD %s"},
}

// Generator is a DG1022.
type Generator struct {
	*eedlab.Instrument
	Channels [NumChannels]*Channel
}

// New wraps a connected instrument.
func New(inst *eedlab.Instrument) *Generator {
	g := &Generator{Instrument: inst}
	for i := range g.Channels {
		g.Channels[i] = &Channel{n: i + 1, g: g}
	}
	return g
}

// Channel returns output n, counted from 1.
func (g *Generator) Channel(n int) (*Channel, error) {
	if n < 1 || n > NumChannels {
		return nil, fmt.Errorf("channel %d out of range 1-%d", n, NumChannels)
	}
	return g.Channels[n-1], nil
}

// Unit returns the amplitude unit: VPP, VRMS or DBM.
func (g *Generator) Unit() (string, error)     { return g.Get(Commands, "unit") }
func (g *Generator) SetUnit(unit string) error { return g.Set(Commands, "unit", unit) }

// PhaseAlign aligns the phase of both outputs.
func (g *Generator) PhaseAlign() error { return g.Command("PHASE:ALIGN") }

// SetTriggerSource selects IMMediate, EXTernal or BUS. An empty source
// selects BUS.
func (g *Generator) SetTriggerSource(src string) error {
	if src == "" {
		src = "BUS"
	}
	return g.Set(Commands, "trigger_source", src)
}

// Trigger sends a bus trigger.
func (g *Generator) Trigger() error { return g.Command("*TRG") }

func (g *Generator) BurstMode() (string, error)  { return g.Get(Commands, "burst_mode") }
func (g *Generator) SetBurstMode(m string) error { return g.Set(Commands, "burst_mode", m) }

// BurstCycles returns the number of cycles per burst, +Inf for an infinite
// burst.
func (g *Generator) BurstCycles() (float64, error) {
	cmd, _ := Commands.GetCmd("burst_cycles")
	res, err := g.Query(cmd)
	if err != nil {
		return 0, err
	}
	if strings.EqualFold(res, "Infinite") {
		return math.Inf(1), nil
	}
	v, err := strconv.ParseFloat(res, 64)
	if err != nil {
		return 0, &eedlab.ParseError{Cmd: cmd, Reply: res, Err: err}
	}
	return v, nil
}

// SetBurstCycles sets the cycles per burst; +Inf selects an infinite burst.
func (g *Generator) SetBurstCycles(n float64) error {
	v := strconv.FormatFloat(n, 'f', -1, 64)
	if math.IsInf(n, 1) {
		v = "INF"
	}
	return g.Set(Commands, "burst_cycles", v)
}

// BurstPeriod returns the internal burst period in seconds.
func (g *Generator) BurstPeriod() (float64, error)  { return g.GetFloat(Commands, "burst_period") }
func (g *Generator) SetBurstPeriod(s float64) error { return g.Set(Commands, "burst_period", s) }

// BurstPhase returns the burst start phase in degrees.
func (g *Generator) BurstPhase() (float64, error)    { return g.GetFloat(Commands, "burst_phase") }
func (g *Generator) SetBurstPhase(deg float64) error { return g.Set(Commands, "burst_phase", deg) }

// Burst reports whether burst mode is enabled.
func (g *Generator) Burst() (bool, error) {
	res, err := g.Get(Commands, "burst_state")
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToUpper(res), "ON"), nil
}

func (g *Generator) SetBurst(on bool) error { return g.Set(Commands, "burst_state", eedlab.OnOff(on)) }
