// Package vxi11 is a minimal VXI-11 core channel client: enough of the
// protocol to open a link to an instrument, send commands and read replies.
package vxi11

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
)

// VXI-11 core channel program and procedures.
const (
	coreProg     = 0x0607AF
	coreVers     = 1
	procCreate   = 10
	procWrite    = 11
	procRead     = 12
	procDestroy  = 23
	flagEnd      = 0x08
	reasonEnd    = 0x04
	defaultChunk = 1 << 20
)

// Error is a non-zero VXI-11 device error code.
type Error struct {
	Op   string
	Code uint32
}

func (e *Error) Error() string {
	msg, ok := errorText[e.Code]
	if !ok {
		msg = "unknown error"
	}
	return fmt.Sprintf("vxi11: %s: %s (%d)", e.Op, msg, e.Code)
}

var errorText = map[uint32]string{
	1:  "syntax error",
	3:  "device not accessible",
	4:  "invalid link identifier",
	5:  "parameter error",
	6:  "channel not established",
	8:  "operation not supported",
	9:  "out of resources",
	11: "device locked by another link",
	12: "no lock held by this link",
	15: "I/O timeout",
	17: "I/O error",
	21: "invalid address",
	23: "abort",
	29: "channel already established",
}

type createLinkParms struct {
	ClientID    int32
	LockDevice  bool
	LockTimeout uint32
	Device      string
}

type createLinkResp struct {
	Error       uint32
	LID         uint32
	AbortPort   uint32
	MaxRecvSize uint32
}

type deviceWriteParms struct {
	LID         uint32
	IOTimeout   uint32
	LockTimeout uint32
	Flags       uint32
	Data        []byte
}

type deviceWriteResp struct {
	Error uint32
	Size  uint32
}

type deviceReadParms struct {
	LID         uint32
	RequestSize uint32
	IOTimeout   uint32
	LockTimeout uint32
	Flags       uint32
	TermChar    uint32
}

type deviceReadResp struct {
	Error  uint32
	Reason uint32
	Data   []byte
}

type deviceError struct {
	Error uint32
}

// Link is an open VXI-11 link to one device of an instrument.
type Link struct {
	rpc     *rpcClient
	lid     uint32
	maxRecv uint32
	timeout time.Duration
}

// Option applies an option to a Link.
type Option func(*Link)

// WithTimeout sets the network and device I/O timeout.
func WithTimeout(d time.Duration) Option { return func(l *Link) { l.timeout = d } }

// Dial looks up the core channel through the portmapper on host and opens a
// link to device (usually "inst0"). host may carry an explicit ":port", in
// which case the portmapper is skipped.
func Dial(host, device string, opts ...Option) (*Link, error) {
	l := &Link{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(l)
	}
	if device == "" {
		device = "inst0"
	}

	var addr string
	if h, p, err := net.SplitHostPort(host); err != nil || p == "" {
		port, err := getPort(host, coreProg, coreVers, l.timeout)
		if err != nil {
			return nil, fmt.Errorf("vxi11 %s: %w", host, err)
		}
		addr = net.JoinHostPort(host, strconv.Itoa(port))
	} else {
		addr = net.JoinHostPort(h, p)
	}

	rpc, err := dialRPC(addr, coreProg, coreVers, l.timeout)
	if err != nil {
		return nil, fmt.Errorf("vxi11 %s: %w", addr, err)
	}
	l.rpc = rpc

	args := createLinkParms{
		ClientID: int32(time.Now().Unix() & 0x7fffffff),
		Device:   device,
	}
	var resp createLinkResp
	if err := rpc.call(procCreate, &args, &resp, 0); err != nil {
		rpc.close()
		return nil, fmt.Errorf("vxi11 create_link: %w", err)
	}
	if resp.Error != 0 {
		rpc.close()
		return nil, &Error{Op: "create_link", Code: resp.Error}
	}
	l.lid, l.maxRecv = resp.LID, resp.MaxRecvSize
	if l.maxRecv == 0 {
		l.maxRecv = defaultChunk
	}
	glog.V(1).Infof("vxi11: link %d to %s/%s, max recv %d", l.lid, addr, device, l.maxRecv)
	return l, nil
}

func (l *Link) ioTimeout() uint32 { return uint32(l.timeout / time.Millisecond) }

// netTimeout leaves the device time to report its own I/O timeout first.
func (l *Link) netTimeout() time.Duration { return l.timeout + 2*time.Second }

// Write sends cmd terminated by a newline, split into chunks no larger than
// the device accepts. Only the last chunk carries the END flag.
func (l *Link) Write(cmd string) error {
	data := []byte(strings.TrimSpace(cmd) + "\n")
	for len(data) > 0 {
		n := len(data)
		if uint32(n) > l.maxRecv {
			n = int(l.maxRecv)
		}
		var flags uint32
		if n == len(data) {
			flags = flagEnd
		}
		args := deviceWriteParms{
			LID:       l.lid,
			IOTimeout: l.ioTimeout(),
			Flags:     flags,
			Data:      data[:n],
		}
		var resp deviceWriteResp
		if err := l.rpc.call(procWrite, &args, &resp, l.netTimeout()); err != nil {
			return fmt.Errorf("vxi11 device_write: %w", err)
		}
		if resp.Error != 0 {
			return &Error{Op: "device_write", Code: resp.Error}
		}
		if resp.Size == 0 || int(resp.Size) > n {
			return fmt.Errorf("vxi11 device_write: device took %d of %d bytes", resp.Size, n)
		}
		data = data[resp.Size:]
	}
	return nil
}

// Query sends cmd and reads the reply until the device signals END or
// maxBytes have arrived.
func (l *Link) Query(cmd string, maxBytes int) ([]byte, error) {
	if err := l.Write(cmd); err != nil {
		return nil, err
	}
	if maxBytes <= 0 {
		maxBytes = 1 << 16
	}
	var reply []byte
	for len(reply) < maxBytes {
		args := deviceReadParms{
			LID:         l.lid,
			RequestSize: uint32(maxBytes - len(reply)),
			IOTimeout:   l.ioTimeout(),
		}
		var resp deviceReadResp
		if err := l.rpc.call(procRead, &args, &resp, l.netTimeout()); err != nil {
			return nil, fmt.Errorf("vxi11 device_read: %w", err)
		}
		if resp.Error != 0 {
			return nil, &Error{Op: "device_read", Code: resp.Error}
		}
		reply = append(reply, resp.Data...)
		if resp.Reason&reasonEnd != 0 {
			break
		}
	}
	return reply, nil
}

// Close destroys the link and closes the connection.
func (l *Link) Close() error {
	var resp deviceError
	err := l.rpc.call(procDestroy, &l.lid, &resp, 0)
	if err == nil && resp.Error != 0 {
		err = &Error{Op: "destroy_link", Code: resp.Error}
	}
	if cerr := l.rpc.close(); err == nil {
		err = cerr
	}
	return err
}
