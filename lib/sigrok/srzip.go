// Package sigrok writes traces as sigrok session files (srzip v2), which
// PulseView opens directly. See https://sigrok.org/wiki/File_format:Sigrok/v2
package sigrok

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"
)

// SamplesLimit is the default maximum number of samples in each file part.
const SamplesLimit = 0x280000

var errInterleaved = errors.New("sigrok: channels must be written one after another")

// Writer is an srzip archive under construction.
type Writer struct {
	zw     *zip.Writer
	closer io.Closer

	channels []*AnalogChannel
	open     *AnalogChannel // owner of the zip entry being written

	SampleRate uint64 // Hz
	PartLimit  int    // samples per part, SamplesLimit if 0
}

// AnalogChannel is one float32 channel of a Writer.
type AnalogChannel struct {
	samples uint64
	part    int
	w       io.Writer
	sr      *Writer
	channel int
	name    string
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{zw: zip.NewWriter(w)}
}

// Create truncates or creates the named file and writes to it.
func Create(name string) (*Writer, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	sr := NewWriter(f)
	sr.closer = f
	return sr, nil
}

// Filename returns base with the .sr extension, with a timestamp inserted
// when ts is not zero to avoid overwriting earlier captures.
func Filename(base string, ts time.Time) string {
	if !ts.IsZero() {
		base += "_" + ts.Format("02Jan_15_04_05.000")
	}
	return base + ".sr"
}

func (sr *Writer) createFile(name, contents string) error {
	w, err := sr.zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, contents)
	return err
}

// NewAnalogChannel adds a channel. Channels are numbered from 1 in the order
// they are added.
func (sr *Writer) NewAnalogChannel(name string) *AnalogChannel {
	c := &AnalogChannel{sr: sr, name: name, channel: len(sr.channels) + 1}
	sr.channels = append(sr.channels, c)
	return c
}

// Close writes the version and metadata entries and finishes the archive.
func (sr *Writer) Close() error {
	err := sr.finish()
	if sr.closer != nil {
		if cErr := sr.closer.Close(); err == nil {
			err = cErr
		}
	}
	return err
}

func (sr *Writer) finish() error {
	if err := sr.createFile("version", "2\n"); err != nil {
		return err
	}
	metadata := fmt.Sprintf("[device 1]\nsamplerate=%d\ntotal analog=%d\n", sr.SampleRate, len(sr.channels))
	for _, ch := range sr.channels {
		metadata += fmt.Sprintf("analog%d=%s\n", ch.channel, ch.name)
	}
	if err := sr.createFile("metadata", metadata); err != nil {
		return err
	}
	return sr.zw.Close()
}

func (sr *Writer) partLimit() uint64 {
	if sr.PartLimit > 0 {
		return uint64(sr.PartLimit)
	}
	return SamplesLimit
}

// Write appends one sample, little-endian float32.
func (c *AnalogChannel) Write(v float32) error {
	if err := c.update(); err != nil {
		return err
	}
	bits := math.Float32bits(v)
	if _, err := c.w.Write([]byte{byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24)}); err != nil {
		return err
	}
	c.samples++
	return nil
}

// WriteSamples appends volts.
func (c *AnalogChannel) WriteSamples(samples []float64) error {
	for _, v := range samples {
		if err := c.Write(float32(v)); err != nil {
			return err
		}
	}
	return nil
}

// Samples returns the number of samples written.
func (c *AnalogChannel) Samples() uint64 { return c.samples }

// update starts a new part when the current one is full.
func (c *AnalogChannel) update() error {
	if c.w != nil && c.samples%c.sr.partLimit() != 0 {
		if c.sr.open != c {
			return errInterleaved
		}
		return nil
	}
	c.part++
	w, err := c.sr.zw.Create(fmt.Sprintf("analog-1-%d-%d", c.channel, c.part))
	if err != nil {
		return fmt.Errorf("can't create part for analog ch %s: %w", c.name, err)
	}
	c.w = w
	c.sr.open = c
	return nil
}

// WriteTrace writes a single channel archive of samples taken interval
// seconds apart.
func WriteTrace(w io.Writer, name string, samples []float64, interval float64) error {
	sr := NewWriter(w)
	if interval > 0 {
		sr.SampleRate = uint64(math.Round(1 / interval))
	}
	if err := sr.NewAnalogChannel(name).WriteSamples(samples); err != nil {
		return err
	}
	return sr.Close()
}
