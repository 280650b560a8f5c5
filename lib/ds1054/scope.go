// Copyright (c) 2024 The eedlab developers. All rights reserved.
// Project site: https://github.com/gotmc/eedlab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package ds1054 drives the Rigol DS1000Z series of oscilloscopes, the
// DS1054Z in particular, including retrieval of the full sample memory.
package ds1054

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/gotmc/eedlab"
	"github.com/gotmc/eedlab/lib/block"
)

// NumChannels is the number of analog inputs.
const NumChannels = 4

// Commands lists the settings reachable through Get and Set.
var Commands = eedlab.CommandTable{
	"trigger_status":  {Get: ":TRIGGER:STATUS?"},
	"trigger_sweep":   {Get: ":TRIGGER:SWEEP?", Set: ":TRIGGER:SWEEP %s", Options: []string{"AUTO", "NORMal", "NORM", "SINGle", "SING"}},
	"trigger_type":    {Get: ":TRIGGER:MODE?", Set: ":TRIGGER:MODE %s"},
	"trigger_slope":   {Get: ":TRIGGER:EDGE:SLOPE?", Set: ":TRIGGER:EDGE:SLOPE %s", Options: []string{"POSitive", "POS", "NEGative", "NEG", "RFALl", "RFAL"}},
	"trigger_level":   {Get: ":TRIGGER:%s:LEVEL?", Set: ":TRIGGER:%s:LEVEL %g"},
	"measure_source":  {Get: ":MEASURE:SOURCE?", Set: ":MEASURE:SOURCE %s"},
	"threshold_low":   {Get: ":MEASURE:SETUP:MIN?", Set: ":MEASURE:SETUP:MIN %g"},
	"threshold_mid":   {Get: ":MEASURE:SETUP:MID?", Set: ":MEASURE:SETUP:MID %g"},
	"threshold_high":  {Get: ":MEASURE:SETUP:MAX?", Set: ":MEASURE:SETUP:MAX %g"},
	"stats_mode":      {Get: ":MEASURE:STATISTIC:MODE?", Set: ":MEASURE:STATISTIC:MODE %s", Options: []string{"DIFFerence", "DIFF", "EXTRemum", "EXTR"}},
	"timebase":        {Get: ":TIMEBASE:MAIN:SCALE?", Set: ":TIMEBASE:MAIN:SCALE %g"},
	"timebase_offset": {Get: ":TIMEBASE:MAIN:OFFSET?", Set: ":TIMEBASE:MAIN:OFFSET %g"},
	"averages":        {Get: ":ACQUIRE:AVERAGES?", Set: ":ACQUIRE:AVERAGES %d"},
	"acquire_type":    {Get: ":ACQUIRE:TYPE?", Set: ":ACQUIRE:TYPE %s", Options: []string{"NORMal", "NORM", "AVERages", "AVER", "PEAK", "HRESolution", "HRES"}},
	"mdepth":          {Get: ":acquire:mdepth?", Set: ":ACQUIRE:MDEPTH %v"},
	"xorigin":         {Get: ":wav:xorigin?"},
	"xreference":      {Get: ":wav:xreference?"},
	"xincrement":      {Get: ":waveform:xincrement?"},
	"yorigin":         {Get: ":wav:yorigin?"},
	"yreference":      {Get: ":wav:yreference?"},
	"yincrement":      {Get: ":wav:yincrement?"},
	"wav_source":      {Get: "WAV:SOURCE?", Set: "WAV:SOURCE %s"},
	"wav_mode":        {Get: "WAV:MODE?", Set: "WAV:MODE %s", Options: []string{"NORMal", "NORM", "MAXimum", "MAX", "RAW"}},
	"wav_format":      {Get: "WAV:FORMAT?", Set: "WAV:FORMAT %s", Options: []string{"WORD", "BYTE", "ASCii", "ASC"}},
	"channel_scale":   {Get: ":CHANNEL%d:SCALE?", Set: ":CHANNEL%d:SCALE %g"},
	"channel_offset":  {Get: ":CHANNEL%d:OFFSET?", Set: ":CHANNEL%d:OFFSET %g"},
	"channel_bwlimit": {Get: ":CHANNEL%d:BWLIMIT?", Set: ":CHANNEL%d:BWLIMIT %s", Options: []string{"OFF", "20M"}},
	"channel_display": {Get: ":CHANNEL%d:DISPLAY?", Set: ":CHANNEL%d:DISPLAY %s"},
}

// Scope is a DS1000Z oscilloscope.
type Scope struct {
	*eedlab.Instrument
	Channels [NumChannels]*Channel

	acq         AcquireConfig
	autoTimeout time.Duration
	sleep       func(time.Duration)
}

// Option applies an option to the scope.
type Option func(*Scope)

// WithAcquireConfig overrides the batched acquisition parameters. Zero
// fields keep their defaults.
func WithAcquireConfig(c AcquireConfig) Option {
	return func(s *Scope) { s.acq = c.withDefaults() }
}

// WithAutoTimeout bounds how long Auto waits for autoscale to finish.
func WithAutoTimeout(d time.Duration) Option { return func(s *Scope) { s.autoTimeout = d } }

// New wraps a connected instrument.
func New(inst *eedlab.Instrument, opts ...Option) *Scope {
	s := &Scope{
		Instrument:  inst,
		acq:         DefaultAcquireConfig,
		autoTimeout: 10 * time.Second,
		sleep:       time.Sleep,
	}
	for i := range s.Channels {
		s.Channels[i] = &Channel{n: i + 1, s: s}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AcquireConfig returns the batched acquisition parameters in use.
func (s *Scope) AcquireConfig() AcquireConfig { return s.acq }

// Channel returns input n, counted from 1.
func (s *Scope) Channel(n int) (*Channel, error) {
	if n < 1 || n > NumChannels {
		return nil, fmt.Errorf("channel %d out of range 1-%d", n, NumChannels)
	}
	return s.Channels[n-1], nil
}

// Clear erases the waveforms on screen.
func (s *Scope) Clear() error { return s.Command(":CLEAR") }

// Run starts acquiring.
func (s *Scope) Run() error { return s.Command(":RUN") }

// Stop halts acquisition, freezing the sample memory.
func (s *Scope) Stop() error { return s.Command(":STOP") }

// Single arms a single trigger.
func (s *Scope) Single() error { return s.Command(":SINGLE") }

// Force generates a trigger.
func (s *Scope) Force() error { return s.Command(":TFORCE") }

// TriggerStatus returns TD, WAIT, RUN, AUTO or STOP.
func (s *Scope) TriggerStatus() (string, error) { return s.Get(Commands, "trigger_status") }

// TriggerSweep returns the sweep mode, AUTO, NORMal or SINGle.
func (s *Scope) TriggerSweep() (string, error)  { return s.Get(Commands, "trigger_sweep") }
func (s *Scope) SetTriggerSweep(m string) error { return s.Set(Commands, "trigger_sweep", m) }

// TriggerType returns the trigger type, e.g. EDGE or PULS.
func (s *Scope) TriggerType() (string, error)  { return s.Get(Commands, "trigger_type") }
func (s *Scope) SetTriggerType(t string) error { return s.Set(Commands, "trigger_type", t) }

// TriggerEdgeSlope returns the edge trigger slope, POSitive, NEGative or RFALl.
func (s *Scope) TriggerEdgeSlope() (string, error) { return s.Get(Commands, "trigger_slope") }

// SetTriggerEdgeSlope accepts "rising" and "falling" as well as the SCPI
// names.
func (s *Scope) SetTriggerEdgeSlope(slope string) error {
	switch strings.ToLower(slope) {
	case "rising":
		slope = "POSitive"
	case "falling":
		slope = "NEGative"
	}
	return s.Set(Commands, "trigger_slope", slope)
}

// TriggerLevel returns the level of the current trigger type.
func (s *Scope) TriggerLevel() (float64, error) {
	t, err := s.TriggerType()
	if err != nil {
		return 0, err
	}
	return s.GetFloat(Commands, "trigger_level", t)
}

// SetTriggerLevel sets the level of the current trigger type.
func (s *Scope) SetTriggerLevel(v float64) error {
	t, err := s.TriggerType()
	if err != nil {
		return err
	}
	return s.Set(Commands, "trigger_level", t, v)
}

func (s *Scope) MeasureSource() (string, error)    { return s.Get(Commands, "measure_source") }
func (s *Scope) SetMeasureSource(src string) error { return s.Set(Commands, "measure_source", src) }

// Thresholds returns the low, mid and high measurement thresholds in
// percent.
func (s *Scope) Thresholds() (low, mid, high float64, err error) {
	if low, err = s.GetFloat(Commands, "threshold_low"); err != nil {
		return
	}
	if mid, err = s.GetFloat(Commands, "threshold_mid"); err != nil {
		return
	}
	high, err = s.GetFloat(Commands, "threshold_high")
	return
}

func (s *Scope) SetThresholdLow(v float64) error  { return s.Set(Commands, "threshold_low", v) }
func (s *Scope) SetThresholdMid(v float64) error  { return s.Set(Commands, "threshold_mid", v) }
func (s *Scope) SetThresholdHigh(v float64) error { return s.Set(Commands, "threshold_high", v) }

// MeasureRaw returns the reply to :MEASURE:ITEM? for item on sources.
func (s *Scope) MeasureRaw(item string, sources ...string) (string, error) {
	return s.Query(measureCmd(item, sources))
}

// Measure is MeasureRaw parsed as a number. The scope answers 9.9E37 when
// an item cannot be measured.
func (s *Scope) Measure(item string, sources ...string) (float64, error) {
	return s.Float(measureCmd(item, sources))
}

func measureCmd(item string, sources []string) string {
	if len(sources) == 0 {
		return ":MEASURE:ITEM? " + item
	}
	return ":MEASURE:ITEM? " + item + "," + strings.Join(sources, ",")
}

func (s *Scope) StatsMode() (string, error)  { return s.Get(Commands, "stats_mode") }
func (s *Scope) SetStatsMode(m string) error { return s.Set(Commands, "stats_mode", m) }

// StatOn enables statistics for item on sources.
func (s *Scope) StatOn(item string, sources ...string) error {
	return s.Command(":MEASURE:STATISTIC:ITEM " + strings.Join(append([]string{item}, sources...), ","))
}

// Stat returns one statistic of item; kind is MAXimum, MINimum, CURRent,
// AVERages or DEViation.
func (s *Scope) Stat(item, kind string) (float64, error) {
	return s.Float(":MEASURE:STATISTIC:ITEM? %s,%s", kind, item)
}

func (s *Scope) StatsReset() error { return s.Command(":MEASURE:STATISTIC:RESET") }

// Timebase returns the main timebase scale in s/div.
func (s *Scope) Timebase() (float64, error)  { return s.GetFloat(Commands, "timebase") }
func (s *Scope) SetTimebase(v float64) error { return s.Set(Commands, "timebase", v) }

func (s *Scope) TimebaseOffset() (float64, error)  { return s.GetFloat(Commands, "timebase_offset") }
func (s *Scope) SetTimebaseOffset(v float64) error { return s.Set(Commands, "timebase_offset", v) }

func (s *Scope) Averages() (int, error)  { return s.GetInt(Commands, "averages") }
func (s *Scope) SetAverages(n int) error { return s.Set(Commands, "averages", n) }

func (s *Scope) AcquireType() (string, error)  { return s.Get(Commands, "acquire_type") }
func (s *Scope) SetAcquireType(t string) error { return s.Set(Commands, "acquire_type", t) }

// MemDepth returns the memory depth in samples.
func (s *Scope) MemDepth() (int, error) { return s.GetInt(Commands, "mdepth") }

// SetMemDepth sets the memory depth; zero selects AUTO.
func (s *Scope) SetMemDepth(n int) error {
	if n == 0 {
		return s.Set(Commands, "mdepth", "AUTO")
	}
	return s.Set(Commands, "mdepth", strconv.Itoa(n))
}

func (s *Scope) XOrigin() (float64, error)    { return s.GetFloat(Commands, "xorigin") }
func (s *Scope) XReference() (float64, error) { return s.GetFloat(Commands, "xreference") }

// SampleInterval returns the time between samples in seconds.
func (s *Scope) SampleInterval() (float64, error) { return s.GetFloat(Commands, "xincrement") }

func (s *Scope) YOrigin() (float64, error)    { return s.GetFloat(Commands, "yorigin") }
func (s *Scope) YReference() (float64, error) { return s.GetFloat(Commands, "yreference") }
func (s *Scope) YIncrement() (float64, error) { return s.GetFloat(Commands, "yincrement") }

// Auto runs autoscale. If wait is set it polls *OPC? until the scope
// settles or the auto timeout passes.
func (s *Scope) Auto(wait bool) error {
	if err := s.Command(":AUTOSCALE"); err != nil {
		return err
	}
	if !wait {
		return nil
	}
	deadline := time.Now().Add(s.autoTimeout)
	for {
		done, err := s.OperationComplete()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("autoscale not complete after %s", s.autoTimeout)
		}
		s.sleep(100 * time.Millisecond)
	}
}

// VAuto autoscales the vertical axes only: timebase and trigger settings
// are restored after autoscale.
func (s *Scope) VAuto() error {
	tb, err := s.Timebase()
	if err != nil {
		return err
	}
	ttype, err := s.TriggerType()
	if err != nil {
		return err
	}
	sweep, err := s.TriggerSweep()
	if err != nil {
		return err
	}
	if err := s.Auto(true); err != nil {
		return err
	}
	if err := s.SetTimebase(tb); err != nil {
		return err
	}
	if err := s.SetTriggerType(ttype); err != nil {
		return err
	}
	return s.Set(Commands, "trigger_sweep", sweep)
}

// maxScreenshot bounds the PNG reply; an 800x480 screen compresses to well
// below this.
const maxScreenshot = 4 << 20

// Screenshot returns the display as PNG.
func (s *Scope) Screenshot() ([]byte, error) {
	const cmd = ":DISP:DATA? ON,FALSE,PNG"
	b, err := s.QueryRaw(cmd, maxScreenshot)
	if err != nil {
		return nil, err
	}
	img, err := block.Parse(b)
	if err != nil {
		return nil, &eedlab.FramingError{Cmd: cmd, Len: len(b), Msg: err.Error()}
	}
	glog.V(1).Infof("screenshot: %d bytes", len(img))
	return img, nil
}
