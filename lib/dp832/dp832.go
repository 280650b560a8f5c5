// Copyright (c) 2024 The eedlab developers. All rights reserved.
// Project site: https://github.com/gotmc/eedlab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package dp832 drives the Rigol DP832 triple output power supply.
package dp832

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gotmc/eedlab"
)

// NumChannels is the number of outputs.
const NumChannels = 3

// Commands lists the per channel settings. The first argument is the
// channel number.
var Commands = eedlab.CommandTable{
	"mode":        {Get: ":OUTPUT:MODE? CH%d"},
	"measure_all": {Get: ":MEASURE:ALL:DC? CH%d"},
	"power":       {Get: ":MEASURE:POWER:DC? CH%d"},
	"voltage_act": {Get: ":MEASURE:VOLTAGE:DC? CH%d"},
	"current_act": {Get: ":MEASURE:CURRENT:DC? CH%d"},
	"voltage":     {Get: ":SOURCE%d:VOLTAGE?", Set: ":SOURCE%d:VOLTAGE %g"},
	"voltage_min": {Get: ":SOURCE%d:VOLTAGE? MIN"},
	"voltage_max": {Get: ":SOURCE%d:VOLTAGE? MAX"},
	"current":     {Get: ":SOURCE%d:CURRENT?", Set: ":SOURCE%d:CURRENT %g"},
	"current_min": {Get: ":SOURCE%d:CURRENT? MIN"},
	"current_max": {Get: ":SOURCE%d:CURRENT? MAX"},
	"state":       {Get: ":OUTPUT:STATE? CH%d", Set: ":OUTPUT:STATE CH%d,%s", Options: []string{"ON", "OFF"}},
}

// Supply is a DP832.
type Supply struct {
	*eedlab.Instrument
	Channels [NumChannels]*Channel
}

// New wraps a connected instrument.
func New(inst *eedlab.Instrument) *Supply {
	s := &Supply{Instrument: inst}
	for i := range s.Channels {
		s.Channels[i] = &Channel{n: i + 1, s: s}
	}
	return s
}

// Channel returns output n, counted from 1.
func (s *Supply) Channel(n int) (*Channel, error) {
	if n < 1 || n > NumChannels {
		return nil, fmt.Errorf("channel %d out of range 1-%d", n, NumChannels)
	}
	return s.Channels[n-1], nil
}

// Reading is a voltage or current: the measured value, the setpoint and
// the limits of the setpoint.
type Reading struct {
	Act, Set, Min, Max float64
}

// Measurement is the result of one measure-all query.
type Measurement struct {
	Voltage, Current, Power float64
}

// Channel is one output of a Supply.
type Channel struct {
	n int
	s *Supply
}

// Number returns the channel number, counted from 1.
func (c *Channel) Number() int { return c.n }

func (c *Channel) String() string { return fmt.Sprintf("CH%d", c.n) }

// Mode returns CV, CC or UR.
func (c *Channel) Mode() (string, error) { return c.s.Get(Commands, "mode", c.n) }

// MeasureAll measures voltage, current and power at once.
func (c *Channel) MeasureAll() (Measurement, error) {
	cmd, _ := Commands.GetCmd("measure_all", c.n)
	res, err := c.s.Query(cmd)
	if err != nil {
		return Measurement{}, err
	}
	fields := strings.Split(res, ",")
	if len(fields) != 3 {
		return Measurement{}, &eedlab.ParseError{Cmd: cmd, Reply: res, Err: fmt.Errorf("want 3 fields, got %d", len(fields))}
	}
	var v [3]float64
	for i, f := range fields {
		if v[i], err = strconv.ParseFloat(strings.TrimSpace(f), 64); err != nil {
			return Measurement{}, &eedlab.ParseError{Cmd: cmd, Reply: res, Err: err}
		}
	}
	return Measurement{Voltage: v[0], Current: v[1], Power: v[2]}, nil
}

// Power returns the measured output power in W.
func (c *Channel) Power() (float64, error) { return c.s.GetFloat(Commands, "power", c.n) }

func (c *Channel) reading(act, set, lo, hi string) (Reading, error) {
	var r Reading
	var err error
	for _, q := range []struct {
		name string
		dst  *float64
	}{{act, &r.Act}, {set, &r.Set}, {lo, &r.Min}, {hi, &r.Max}} {
		if *q.dst, err = c.s.GetFloat(Commands, q.name, c.n); err != nil {
			return r, err
		}
	}
	return r, nil
}

// Voltage returns the output voltage reading.
func (c *Channel) Voltage() (Reading, error) {
	return c.reading("voltage_act", "voltage", "voltage_min", "voltage_max")
}

// Current returns the output current reading.
func (c *Channel) Current() (Reading, error) {
	return c.reading("current_act", "current", "current_min", "current_max")
}

// SetVoltage sets the voltage setpoint and returns it as read back. The
// supply only applies a new setpoint once it has been queried.
func (c *Channel) SetVoltage(v float64) (float64, error) {
	if err := c.s.Set(Commands, "voltage", c.n, v); err != nil {
		return 0, err
	}
	return c.s.GetFloat(Commands, "voltage", c.n)
}

// SetCurrent sets the current limit and returns it as read back.
func (c *Channel) SetCurrent(i float64) (float64, error) {
	if err := c.s.Set(Commands, "current", c.n, i); err != nil {
		return 0, err
	}
	return c.s.GetFloat(Commands, "current", c.n)
}

// State reports whether the output is on.
func (c *Channel) State() (bool, error) {
	res, err := c.s.Get(Commands, "state", c.n)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(res, "ON"), nil
}

// SetState switches the output and returns the state read back.
func (c *Channel) SetState(on bool) (bool, error) {
	if err := c.s.Set(Commands, "state", c.n, eedlab.OnOff(on)); err != nil {
		return false, err
	}
	return c.State()
}

func (c *Channel) On() error {
	_, err := c.SetState(true)
	return err
}

func (c *Channel) Off() error {
	_, err := c.SetState(false)
	return err
}
