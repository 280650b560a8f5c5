// Copyright (c) 2024 The eedlab developers. All rights reserved.
// Project site: https://github.com/gotmc/eedlab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package dg1022

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gotmc/eedlab"
)

// Channel is one output of a Generator. Channel 1 uses the plain commands;
// channel 2 addresses the same subsystems with a :CH2 suffix.
type Channel struct {
	n int
	g *Generator
}

// Number returns the channel number, counted from 1.
func (c *Channel) Number() int { return c.n }

// rewriteQuery turns "X?" into "X:CH2?" for channel 2.
func (c *Channel) rewriteQuery(cmd string) string {
	if c.n == 1 {
		return cmd
	}
	head, tail, found := strings.Cut(cmd, "?")
	if !found {
		return cmd
	}
	return fmt.Sprintf("%s:CH%d?%s", head, c.n, tail)
}

// rewriteCommand turns "X v" into "X:CH2 v" for channel 2.
func (c *Channel) rewriteCommand(cmd string) string {
	if c.n == 1 {
		return cmd
	}
	head, tail, found := strings.Cut(cmd, " ")
	if !found {
		return fmt.Sprintf("%s:CH%d", cmd, c.n)
	}
	return fmt.Sprintf("%s:CH%d %s", head, c.n, tail)
}

// query sends a channel query and strips the "CH2:" prefix the generator
// puts on channel 2 replies.
func (c *Channel) query(name string) (string, error) {
	cmd, err := ChannelCommands.GetCmd(name)
	if err != nil {
		return "", err
	}
	res, err := c.g.Query(c.rewriteQuery(cmd))
	if err != nil {
		return "", err
	}
	if c.n != 1 {
		res = strings.ReplaceAll(res, fmt.Sprintf("CH%d:", c.n), "")
	}
	return strings.TrimSpace(res), nil
}

func (c *Channel) float(name string) (float64, error) {
	res, err := c.query(name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(res, 64)
	if err != nil {
		cmd, _ := ChannelCommands.GetCmd(name)
		return 0, &eedlab.ParseError{Cmd: c.rewriteQuery(cmd), Reply: res, Err: err}
	}
	return v, nil
}

func (c *Channel) set(name string, v any) error {
	cmd, err := ChannelCommands.SetCmd(name, v)
	if err != nil {
		return err
	}
	return c.g.Command(c.rewriteCommand(cmd))
}

// Apply sets function, frequency (Hz), amplitude and offset (V) in one
// command.
func (c *Channel) Apply(function string, freq, amp, offset float64) error {
	return c.g.Command(c.rewriteCommand(fmt.Sprintf("APPLY:%s %g,%g,%g", function, freq, amp, offset)))
}

func (c *Channel) Phase() (float64, error)    { return c.float("phase") }
func (c *Channel) SetPhase(deg float64) error { return c.set("phase", deg) }

// Function returns the waveform, e.g. SIN or SQU.
func (c *Channel) Function() (string, error)  { return c.query("function") }
func (c *Channel) SetFunction(f string) error { return c.set("function", f) }

// Duty returns the square wave duty cycle in percent.
func (c *Channel) Duty() (float64, error)        { return c.float("duty") }
func (c *Channel) SetDuty(percent float64) error { return c.set("duty", percent) }

// Symmetry returns the ramp symmetry in percent.
func (c *Channel) Symmetry() (float64, error)        { return c.float("symmetry") }
func (c *Channel) SetSymmetry(percent float64) error { return c.set("symmetry", percent) }

func (c *Channel) Frequency() (float64, error)   { return c.float("frequency") }
func (c *Channel) SetFrequency(hz float64) error { return c.set("frequency", hz) }

func (c *Channel) Amplitude() (float64, error)  { return c.float("amplitude") }
func (c *Channel) SetAmplitude(v float64) error { return c.set("amplitude", v) }

func (c *Channel) Offset() (float64, error)  { return c.float("offset") }
func (c *Channel) SetOffset(v float64) error { return c.set("offset", v) }

func (c *Channel) High() (float64, error)  { return c.float("high") }
func (c *Channel) SetHigh(v float64) error { return c.set("high", v) }

func (c *Channel) Low() (float64, error)  { return c.float("low") }
func (c *Channel) SetLow(v float64) error { return c.set("low", v) }

// Output reports whether the output is enabled.
func (c *Channel) Output() (bool, error) {
	res, err := c.query("output")
	if err != nil {
		return false, err
	}
	return !strings.EqualFold(res, "OFF"), nil
}

func (c *Channel) SetOutput(on bool) error { return c.set("output", eedlab.OnOff(on)) }
func (c *Channel) On() error               { return c.SetOutput(true) }
func (c *Channel) Off() error              { return c.SetOutput(false) }

// Load returns the output load: a resistance in ohms or INFinity.
func (c *Channel) Load() (string, error)     { return c.query("load") }
func (c *Channel) SetLoad(load string) error { return c.set("load", load) }
