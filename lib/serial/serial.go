// Package serial talks SCPI over an RS-232 port, as found on the back of the
// DP832 and DM3058E.
package serial

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	goserial "go.bug.st/serial"

	"github.com/gotmc/eedlab/lib/block"
)

// ErrTimeout is returned when the instrument does not answer within the
// read timeout.
var ErrTimeout = errors.New("serial read timeout")

// Port is a SCPI connection over a serial port.
type Port struct {
	port    io.ReadWriteCloser
	r       *bufio.Reader
	term    byte
	mode    goserial.Mode
	timeout time.Duration
}

// Option applies an option to the port.
type Option func(*Port)

// WithBaudRate sets the baud rate; the default is 9600 as shipped on Rigol
// instruments.
func WithBaudRate(baud int) Option { return func(p *Port) { p.mode.BaudRate = baud } }

// WithTimeout sets the read timeout.
func WithTimeout(d time.Duration) Option { return func(p *Port) { p.timeout = d } }

// WithTerminator sets the byte appended to every command.
func WithTerminator(b byte) Option { return func(p *Port) { p.term = b } }

// Open opens the named serial port.
func Open(name string, opts ...Option) (*Port, error) {
	p := Port{
		term:    '\n',
		timeout: 5 * time.Second,
		mode: goserial.Mode{
			BaudRate: 9600,
			DataBits: 8,
			Parity:   goserial.NoParity,
			StopBits: goserial.OneStopBit,
		},
	}
	for _, opt := range opts {
		opt(&p)
	}
	port, err := goserial.Open(name, &p.mode)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	if err := port.SetReadTimeout(p.timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("setting read timeout on %s: %w", name, err)
	}
	return newPort(port, &p), nil
}

func newPort(rw io.ReadWriteCloser, p *Port) *Port {
	p.port = rw
	p.r = bufio.NewReader(timeoutReader{rw})
	return p
}

// Write sends cmd followed by the terminator.
func (p *Port) Write(cmd string) error {
	_, err := fmt.Fprintf(p.port, "%s%c", strings.TrimSpace(cmd), p.term)
	return err
}

// Query sends cmd and reads one reply of at most maxBytes.
func (p *Port) Query(cmd string, maxBytes int) ([]byte, error) {
	if err := p.Write(cmd); err != nil {
		return nil, err
	}
	return block.ReadReply(p.r, maxBytes)
}

// Close closes the port.
func (p *Port) Close() error { return p.port.Close() }

// timeoutReader turns the (0, nil) a go.bug.st/serial port returns on a read
// timeout into ErrTimeout.
type timeoutReader struct{ r io.Reader }

func (t timeoutReader) Read(b []byte) (int, error) {
	n, err := t.r.Read(b)
	if n == 0 && err == nil {
		return 0, ErrTimeout
	}
	return n, err
}
