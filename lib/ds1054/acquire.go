// Copyright (c) 2024 The eedlab developers. All rights reserved.
// Project site: https://github.com/gotmc/eedlab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package ds1054

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"

	"github.com/gotmc/eedlab"
)

// AcquireConfig parameterizes batched retrieval of the sample memory.
type AcquireConfig struct {
	// MaxChunk is the most samples requested per WAV:DATA? transfer.
	MaxChunk int `yaml:"maxChunk"`
	// Slack is added to MaxChunk to size the read of one transfer, leaving
	// room for the header and terminator.
	Slack int `yaml:"slack"`
	// HeaderLen bytes are stripped from the front of every transfer. A
	// single trailing newline left after the payload is dropped.
	HeaderLen int `yaml:"headerLen"`
	// Restore puts the waveform source, mode and format back the way they
	// were after a successful acquisition. Otherwise they are left as the
	// acquisition set them.
	Restore bool `yaml:"restore"`
}

// DefaultAcquireConfig matches the DS1000Z transfer limits in BYTE format.
//
// A DS1000Z frames each transfer as an 11 byte "#9NNNNNNNNN" block header,
// the samples and a "\n" terminator. The default HeaderLen of 12 strips one
// byte past the header, so every window loses its first sample and decodes
// the terminator as its last. Set HeaderLen to 11 for sample exact windows.
var DefaultAcquireConfig = AcquireConfig{
	MaxChunk:  250000,
	Slack:     256,
	HeaderLen: 12,
}

func (c AcquireConfig) withDefaults() AcquireConfig {
	if c.MaxChunk <= 0 {
		c.MaxChunk = DefaultAcquireConfig.MaxChunk
	}
	if c.Slack <= 0 {
		c.Slack = DefaultAcquireConfig.Slack
	}
	if c.HeaderLen <= 0 {
		c.HeaderLen = DefaultAcquireConfig.HeaderLen
	}
	return c
}

// Trace is a captured waveform.
type Trace struct {
	Samples        []float64 // volts
	SampleInterval float64   // seconds between samples
}

// Calibration converts sample codes to volts. It is only valid for the
// transfer it was read alongside.
type Calibration struct {
	YOrigin    float64
	YReference float64
	YIncrement float64
}

// Volts decodes one sample code.
func (c Calibration) Volts(code byte) float64 {
	return (float64(code) - c.YOrigin - c.YReference) * c.YIncrement
}

// Decode appends the voltages of codes to dst, in order.
func (c Calibration) Decode(dst []float64, codes []byte) []float64 {
	for _, y := range codes {
		dst = append(dst, c.Volts(y))
	}
	return dst
}

// Calibration reads the current vertical calibration.
func (s *Scope) Calibration() (Calibration, error) {
	var c Calibration
	var err error
	if c.YOrigin, err = s.YOrigin(); err != nil {
		return c, err
	}
	if c.YReference, err = s.YReference(); err != nil {
		return c, err
	}
	c.YIncrement, err = s.YIncrement()
	return c, err
}

// Window is a 1-based inclusive range of sample memory.
type Window struct {
	Start, Stop int
}

// Width returns the number of samples in the window.
func (w Window) Width() int { return w.Stop - w.Start + 1 }

// Windows splits a memory of depth samples into transfers of at most
// maxChunk samples. The last window holds exactly the samples left over.
func Windows(depth, maxChunk int) []Window {
	if depth <= 0 || maxChunk <= 0 {
		return nil
	}
	ws := make([]Window, 0, (depth+maxChunk-1)/maxChunk)
	collected := 0
	for m := 1; m <= depth; m += maxChunk {
		remaining := depth - collected
		end := m + maxChunk - 1
		if remaining < maxChunk {
			end = m + remaining - 1
		}
		w := Window{Start: m, Stop: end}
		ws = append(ws, w)
		collected += w.Width()
	}
	return ws
}

// session is the state of one batched acquisition.
type session struct {
	channel  int
	depth    int
	maxChunk int
	interval float64
}

// waveformSettings are the settings an acquisition changes.
type waveformSettings struct {
	source, mode, format string
}

func (s *Scope) saveWaveform() (waveformSettings, error) {
	var w waveformSettings
	var err error
	if w.source, err = s.Get(Commands, "wav_source"); err != nil {
		return w, err
	}
	if w.mode, err = s.Get(Commands, "wav_mode"); err != nil {
		return w, err
	}
	w.format, err = s.Get(Commands, "wav_format")
	return w, err
}

func (s *Scope) restoreWaveform(w waveformSettings) error {
	if err := s.Command("WAV:SOURCE %s", w.source); err != nil {
		return err
	}
	if err := s.Command("WAV:MODE %s", w.mode); err != nil {
		return err
	}
	return s.Command("WAV:FORMAT %s", w.format)
}

func (s *Scope) selectSource(ch int) error {
	if ch <= 0 {
		return nil
	}
	c, err := s.Channel(ch)
	if err != nil {
		return err
	}
	return s.Set(Commands, "wav_source", c.Source())
}

// beginBatch selects the channel, freezes acquisition and switches the
// waveform transfer to raw memory in BYTE format.
func (s *Scope) beginBatch(ch int) (session, error) {
	sess := session{channel: ch, maxChunk: s.acq.MaxChunk}
	if err := s.selectSource(ch); err != nil {
		return sess, err
	}
	if err := s.Stop(); err != nil {
		return sess, err
	}
	if err := s.Set(Commands, "wav_mode", "MAX"); err != nil {
		return sess, err
	}
	if err := s.Set(Commands, "wav_format", "BYTE"); err != nil {
		return sess, err
	}
	var err error
	if sess.depth, err = s.MemDepth(); err != nil {
		return sess, err
	}
	if sess.depth < 0 {
		return sess, fmt.Errorf("scope reports negative memory depth %d", sess.depth)
	}
	if sess.interval, err = s.SampleInterval(); err != nil {
		return sess, err
	}
	return sess, nil
}

// readWindow transfers one window and returns its sample codes with the
// header stripped.
func (s *Scope) readWindow(w Window) ([]byte, error) {
	if err := s.Command("WAV:START %d", w.Start); err != nil {
		return nil, err
	}
	if err := s.Command("WAV:STOP %d", w.Stop); err != nil {
		return nil, err
	}
	const cmd = "WAV:DATA?"
	b, err := s.QueryRaw(cmd, s.acq.MaxChunk+s.acq.Slack)
	if err != nil {
		return nil, err
	}
	if len(b) < s.acq.HeaderLen {
		return nil, &eedlab.FramingError{Cmd: cmd, Len: len(b), Want: s.acq.HeaderLen,
			Msg: "chunk shorter than its header"}
	}
	payload := b[s.acq.HeaderLen:]
	if len(payload) == w.Width()+1 && payload[w.Width()] == '\n' {
		payload = payload[:w.Width()]
	}
	if len(payload) != w.Width() {
		return nil, &eedlab.FramingError{Cmd: cmd, Len: len(payload), Want: w.Width(),
			Msg: fmt.Sprintf("payload does not fill window [%d,%d]", w.Start, w.Stop)}
	}
	return payload, nil
}

// AcquireBatch reads the whole sample memory of channel ch (or of the
// current source if ch is 0) in windows of at most MaxChunk samples.
// Acquisition is stopped for the transfer and restarted once it completes.
// On error the scope is left stopped. The waveform source, mode and format
// stay as set here unless the scope was configured with Restore.
func (s *Scope) AcquireBatch(ch int) (Trace, error) {
	var saved waveformSettings
	if s.acq.Restore {
		var err error
		if saved, err = s.saveWaveform(); err != nil {
			return Trace{}, err
		}
	}
	sess, err := s.beginBatch(ch)
	if err != nil {
		return Trace{}, err
	}

	samples := make([]float64, 0, sess.depth)
	windows := Windows(sess.depth, sess.maxChunk)
	for n, w := range windows {
		codes, err := s.readWindow(w)
		if err != nil {
			return Trace{}, fmt.Errorf("window %d of %d: %w", n+1, len(windows), err)
		}
		// The calibration is read after each transfer since the scope may
		// rescale between them.
		cal, err := s.Calibration()
		if err != nil {
			return Trace{}, fmt.Errorf("window %d of %d: %w", n+1, len(windows), err)
		}
		samples = cal.Decode(samples, codes)
		glog.V(1).Infof("ds1054: window %d/%d [%s,%s], %s samples collected", n+1, len(windows),
			humanize.Comma(int64(w.Start)), humanize.Comma(int64(w.Stop)), humanize.Comma(int64(len(samples))))
	}

	if s.acq.Restore {
		if err := s.restoreWaveform(saved); err != nil {
			return Trace{}, err
		}
	}
	if err := s.Run(); err != nil {
		return Trace{}, err
	}
	return Trace{Samples: samples, SampleInterval: sess.interval}, nil
}

// AcquireScreen reads the points shown on screen for channel ch (or the
// current source if ch is 0) in ASCII format. It does not stop acquisition.
func (s *Scope) AcquireScreen(ch int) (Trace, error) {
	if err := s.selectSource(ch); err != nil {
		return Trace{}, err
	}
	if err := s.Set(Commands, "wav_mode", "NORMAL"); err != nil {
		return Trace{}, err
	}
	if err := s.Set(Commands, "wav_format", "ASCII"); err != nil {
		return Trace{}, err
	}
	const cmd = "WAV:DATA?"
	reply, err := s.Query(cmd)
	if err != nil {
		return Trace{}, err
	}
	samples, err := parseASCII(reply)
	if err != nil {
		return Trace{}, &eedlab.ParseError{Cmd: cmd, Reply: abbrev(reply), Err: err}
	}
	interval, err := s.SampleInterval()
	if err != nil {
		return Trace{}, err
	}
	return Trace{Samples: samples, SampleInterval: interval}, nil
}

// parseASCII parses a comma separated reply. The first field carries the
// block header and is dropped.
func parseASCII(reply string) ([]float64, error) {
	fields := strings.Split(strings.TrimSpace(reply), ",")
	if len(fields) < 2 {
		return []float64{}, nil
	}
	fields = fields[1:]
	samples := make([]float64, 0, len(fields))
	for i, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" && i == len(fields)-1 {
			break
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i+1, err)
		}
		samples = append(samples, v)
	}
	return samples, nil
}

func abbrev(s string) string {
	if len(s) > 64 {
		return s[:64] + "..."
	}
	return s
}

// Trace captures channel ch, from the full memory if batch is set and from
// the screen otherwise.
func (s *Scope) Trace(ch int, batch bool) (Trace, error) {
	if batch {
		return s.AcquireBatch(ch)
	}
	return s.AcquireScreen(ch)
}
