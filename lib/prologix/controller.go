// Copyright (c) 2020–2024 The eedlab developers. All rights reserved.
// Project site: https://github.com/gotmc/eedlab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package prologix reaches GPIB instruments through a Prologix (or
// Arduino AR488) USB-GPIB controller and presents them as SCPI transports.
package prologix

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang/glog"
	goserial "go.bug.st/serial"

	"github.com/gotmc/eedlab/lib/block"
)

// Controller models a GPIB controller-in-charge talking to one instrument.
type Controller struct {
	rw               io.ReadWriter
	r                *bufio.Reader
	primaryAddr      int
	hasSecondaryAddr bool
	secondaryAddr    int
	usbTerm          byte
	eot              bool
	eotChar          byte
	readTimeout      time.Duration
	debug            bool // if true, log controller commands before sending. Set via WithDebug().
	ar488            bool // compatibility with Arduino AR488 - see WithAR488 documentation for details.
}

// ControllerOption applies an option to the controller.
type ControllerOption func(*Controller)

// NewController creates a GPIB controller-in-charge at the given address using
// the given Prologix port. Enable clear to send the Selected Device Clear
// (SDC) message to the GPIB address.
func NewController(
	rw io.ReadWriter,
	addr int,
	clear bool,
	opts ...ControllerOption,
) (*Controller, error) {
	c := Controller{
		rw:          rw,
		r:           bufio.NewReader(rw),
		primaryAddr: addr,
		usbTerm:     '\n',
		eotChar:     '\n',
		readTimeout: 500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(&c)
	}

	if !isPrimaryAddressValid(c.primaryAddr) {
		return nil, fmt.Errorf("invalid primary address %d (must by 0-30)", c.primaryAddr)
	}

	addrCmd := fmt.Sprintf("addr %d", c.primaryAddr)
	if c.hasSecondaryAddr {
		if !isSecondaryAddressValid(c.secondaryAddr) {
			return nil, fmt.Errorf("invalid secondary address %d (must be 96-126)", c.secondaryAddr)
		}
		addrCmd = fmt.Sprintf("addr %d %d", c.primaryAddr, c.secondaryAddr)
	}
	eotEnable := 0
	if c.eot {
		eotEnable = 1
	}
	cmds := []string{}
	if !c.ar488 {
		cmds = append(cmds,
			"verbose 0", // turn off verbosity if on
			"savecfg 0", // Disable saving of configuration parameters in EPROM
		)
	}
	cmds = append(cmds,
		addrCmd,  // Set the primary address.
		"mode 1", // Switch to controller mode.
		"auto 0", // Turn off read-after-write and address instrument to listen.
		"eoi 1",  // Enable EOI assertion with last character.
		"eos 2",  // Append LF to instrument commands.
		fmt.Sprintf("read_tmo_ms %d", c.readTimeout.Milliseconds()),
		fmt.Sprintf("eot_char %d", c.eotChar),
		fmt.Sprintf("eot_enable %d", eotEnable),
	)
	for _, cmd := range cmds {
		if err := c.CommandController(cmd); err != nil {
			return nil, err
		}
	}
	if clear {
		if err := c.ClearDevice(); err != nil {
			return nil, err
		}
	}

	return &c, nil
}

// WithSecondaryAddress sets a secondary address, which must be in the range of
// 96 and 126, inclusive.
func WithSecondaryAddress(addr int) ControllerOption {
	return func(c *Controller) {
		c.hasSecondaryAddr = true
		c.secondaryAddr = addr
	}
}

// WithDebug causes commands and responses to be logged.
func WithDebug() ControllerOption { return func(c *Controller) { c.debug = true } }

// WithAR488 slightly alters the init commands, for compatiblity with the
// Arduino-based AR488. Specifically, we do not emit 'verbose 0', nor do
// we toggle savecfg.
func WithAR488() ControllerOption { return func(c *Controller) { c.ar488 = true } }

// WithEOT makes the controller append char to replies when EOI is detected.
// SCPI instruments terminate their replies themselves, so it is off by
// default.
func WithEOT(char byte) ControllerOption {
	return func(c *Controller) {
		c.eot = true
		c.eotChar = char
	}
}

// WithReadTimeout sets the GPIB read timeout programmed into the controller.
func WithReadTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) { c.readTimeout = d }
}

// Write sends a SCPI command to the instrument at the currently assigned
// GPIB address. All leading and trailing whitespace is removed before
// appending the USB terminator. Plus signs, CR, LF and ESC inside the
// command are escaped so the controller passes them on.
func (c *Controller) Write(cmd string) error {
	cmd = escape(strings.TrimSpace(cmd))
	if c.debug {
		glog.Infof("prologix cmd %q", cmd)
	}
	_, err := fmt.Fprintf(c.rw, "%s%c", cmd, c.usbTerm)
	return err
}

// Query sends cmd, asks the controller to read until EOI and returns one
// reply of at most maxBytes.
func (c *Controller) Query(cmd string, maxBytes int) ([]byte, error) {
	if err := c.Write(cmd); err != nil {
		return nil, fmt.Errorf("error writing command: %w", err)
	}
	// Read-after-write is disabled, so the controller has to be told to
	// read.
	if err := c.CommandController("read eoi"); err != nil {
		return nil, fmt.Errorf("error sending `read eoi` command: %w", err)
	}
	b, err := block.ReadReply(c.r, maxBytes)
	if c.debug {
		glog.Infof("prologix read %d bytes: %q", len(b), abbrev(b))
	}
	return b, err
}

// Close returns the instrument to local control. It does not close the
// underlying port.
func (c *Controller) Close() error {
	return c.FrontPanel(true)
}

// QueryController sends the given command to the Prologix controller and
// returns its response as a string.
func (c *Controller) QueryController(cmd string) (string, error) {
	if err := c.CommandController(cmd); err != nil {
		return "", err
	}
	s, err := c.r.ReadString('\n')
	if c.debug {
		glog.Infof("prologix read data: %q", s)
	}
	return strings.TrimSpace(s), err
}

// CommandController sends the given command to the Prologix controller. To
// indicate this is a command for the Prologix controller, thereby not
// transmitting to the instrument over GPIB, two plus signs `++` are prepended.
func (c *Controller) CommandController(cmd string) error {
	cmd = fmt.Sprintf("++%s%c", strings.ToLower(strings.TrimSpace(cmd)), c.usbTerm)
	if c.debug {
		glog.Infof("prologix cmd %q (%2x)", cmd, cmd)
	}
	_, err := c.rw.Write([]byte(cmd))
	return err
}

// Version returns the controller's firmware version string.
func (c *Controller) Version() (string, error) { return c.QueryController("ver") }

// ClearDevice sends the Selected Device Clear (SDC) message.
func (c *Controller) ClearDevice() error { return c.CommandController("clr") }

// FrontPanel returns the instrument to local control when local is true,
// otherwise it locks the front panel with Local Lockout.
func (c *Controller) FrontPanel(local bool) error {
	if local {
		return c.CommandController("loc")
	}
	return c.CommandController("llo")
}

// GpibTerm provides the type for the available GPIB terminators.
type GpibTerm int

// Available GPIB terminators for the Prologix Controller.
const (
	AppendCRLF GpibTerm = iota
	AppendCR
	AppendLF
	AppendNothing
)

var gpibTermDesc = map[GpibTerm]string{
	AppendCRLF:    `Append CR+LF (\r\n) to instrument commands`,
	AppendCR:      `Append CR (\r) to instrument commands`,
	AppendLF:      `Append LF (\n) to instrument commands`,
	AppendNothing: `Do not append anything to instrument commands`,
}

func (term GpibTerm) String() string {
	return gpibTermDesc[term]
}

// GPIBTermination queries the terminator appended to instrument commands.
func (c *Controller) GPIBTermination() (GpibTerm, error) {
	s, err := c.QueryController("eos")
	if err != nil {
		return AppendNothing, err
	}
	var term int
	if _, err := fmt.Sscanf(s, "%d", &term); err != nil {
		return AppendNothing, fmt.Errorf("parsing eos %q: %w", s, err)
	}
	return GpibTerm(term), nil
}

// OpenVCP opens the Prologix virtual COM port. The baud rate is ignored by
// the USB controller but required by the serial driver.
func OpenVCP(port string) (goserial.Port, error) {
	p, err := goserial.Open(port, &goserial.Mode{BaudRate: 115200})
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(30 * time.Second); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// escape prefixes the characters the controller would otherwise swallow.
func escape(s string) string {
	if !strings.ContainsAny(s, "+\r\n\x1b") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '+', '\r', '\n', 0x1b:
			b.WriteByte(0x1b)
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func abbrev(b []byte) []byte {
	if len(b) > 64 {
		return b[:64]
	}
	return b
}

// isPrimaryAddressValid checks that the primary GPIB address is between 0 and
// 30, inclusive.
func isPrimaryAddressValid(addr int) bool {
	if addr < 0 || addr > 30 {
		return false
	}
	return true
}

// isSecondaryAddressValid checks that the secondary GPIB address is between 96
// and 126, inclusive.
func isSecondaryAddressValid(addr int) bool {
	if addr < 96 || addr > 126 {
		return false
	}
	return true
}
