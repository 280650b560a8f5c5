// Copyright (c) 2024 The eedlab developers. All rights reserved.
// Project site: https://github.com/gotmc/eedlab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package ds1054

import (
	"fmt"

	"github.com/gotmc/eedlab"
)

// Channel is one analog input of a Scope.
type Channel struct {
	n int
	s *Scope
}

// Number returns the channel number, counted from 1.
func (c *Channel) Number() int { return c.n }

// Source returns the name the scope uses for the channel, e.g. CHAN2.
func (c *Channel) Source() string { return fmt.Sprintf("CHAN%d", c.n) }

// Scale returns the vertical scale in V/div.
func (c *Channel) Scale() (float64, error)  { return c.s.GetFloat(Commands, "channel_scale", c.n) }
func (c *Channel) SetScale(v float64) error { return c.s.Set(Commands, "channel_scale", c.n, v) }

// Offset returns the vertical offset in volts.
func (c *Channel) Offset() (float64, error)  { return c.s.GetFloat(Commands, "channel_offset", c.n) }
func (c *Channel) SetOffset(v float64) error { return c.s.Set(Commands, "channel_offset", c.n, v) }

// Bandwidth returns the bandwidth limit, OFF or 20M.
func (c *Channel) Bandwidth() (string, error)   { return c.s.Get(Commands, "channel_bwlimit", c.n) }
func (c *Channel) SetBandwidth(bw string) error { return c.s.Set(Commands, "channel_bwlimit", c.n, bw) }

// Displayed reports whether the channel is switched on.
func (c *Channel) Displayed() (bool, error) { return c.s.GetBool(Commands, "channel_display", c.n) }
func (c *Channel) SetDisplayed(on bool) error {
	return c.s.Set(Commands, "channel_display", c.n, eedlab.OnOff(on))
}

// Measure measures item on this channel.
func (c *Channel) Measure(item string) (float64, error) { return c.s.Measure(item, c.Source()) }

// Trace retrieves the channel's waveform, see Scope.Trace.
func (c *Channel) Trace(batch bool) (Trace, error) { return c.s.Trace(c.n, batch) }
