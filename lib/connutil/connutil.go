// Package connutil turns command-line flags or lab configuration into a
// connected instrument, trying the transport backends in order.
package connutil

import (
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/golang/glog"
	"go.uber.org/multierr"

	"github.com/gotmc/eedlab"
	"github.com/gotmc/eedlab/lib/cmdlog"
	"github.com/gotmc/eedlab/lib/find"
	"github.com/gotmc/eedlab/lib/prologix"
	"github.com/gotmc/eedlab/lib/serial"
	"github.com/gotmc/eedlab/lib/socket"
	"github.com/gotmc/eedlab/lib/usbtmc"
	"github.com/gotmc/eedlab/lib/vxi11"
)

// Backend names, in default order.
const (
	LinuxKernel = "linux_kernel"
	VXI11       = "vxi11"
	Socket      = "socket"
	USBTMC      = "usbtmc"
	Serial      = "serial"
	Prologix    = "prologix"
)

var errWrongKind = errors.New("resource kind not served")

// DefaultBackends returns the backend order used when none is configured.
func DefaultBackends(goos string) []string {
	if goos == "linux" {
		return []string{LinuxKernel, VXI11, Socket, USBTMC, Serial, Prologix}
	}
	return []string{VXI11, Socket, USBTMC, Serial, Prologix}
}

type Conn struct {
	Resource string
	Backends string // comma separated backend names, empty for the default
	Timeout  time.Duration
	MaxRead  int
	Log      bool // log traffic through cmdlog
	Debug    bool

	BaudRate     int
	PrologixPort string
	AR488        bool
	EOT          bool

	finderr error
}

// AddFlags is to be called before [flag.Parse]. It guesses the resource of
// a Rigol instrument attached over USB and the serial port of a GPIB
// controller.
func (c *Conn) AddFlags() {
	if c.Resource == "" {
		dev, err := find.FindUsbtmc(find.RigolFilter)
		if err != nil {
			glog.V(1).Infof("no usbtmc instrument found: %s", err)
		}
		c.Resource = dev
	}
	if c.PrologixPort == "" {
		tty, err := find.Find(find.ArduinoFilter)
		if err != nil {
			tty, c.finderr = "/dev/ttyUSB0", err
		}
		c.PrologixPort = tty
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.BaudRate == 0 {
		c.BaudRate = 9600
	}

	flag.StringVar(&c.Resource, "resource", c.Resource,
		"instrument resource: /dev/usbtmcN, host, TCPIP::host::INSTR, TCPIP::host::5555::SOCKET, USB::0x1ab1::0x04ce::serial, ASRL/dev/ttyUSB0::INSTR or GPIB::pad::INSTR")
	flag.StringVar(&c.Backends, "backends", c.Backends,
		"comma separated backends to try, default "+strings.Join(DefaultBackends(runtime.GOOS), ","))
	flag.DurationVar(&c.Timeout, "timeout", c.Timeout, "transport timeout")
	flag.IntVar(&c.MaxRead, "maxread", c.MaxRead, "reply size limit for ordinary queries")
	flag.BoolVar(&c.Log, "log", c.Log, "log every command and reply")
	flag.BoolVar(&c.Debug, "debug", c.Debug, "log transport internals")
	flag.IntVar(&c.BaudRate, "baud", c.BaudRate, "serial baud rate")
	flag.StringVar(&c.PrologixPort, "port", c.PrologixPort, "serial port of the Prologix or AR488 GPIB controller")
	flag.BoolVar(&c.AR488, "ar488", c.AR488, "the GPIB controller is an AR488")
}

// BackendNames returns the configured backend order.
func (c *Conn) BackendNames() []string {
	if strings.TrimSpace(c.Backends) == "" {
		return DefaultBackends(runtime.GOOS)
	}
	var names []string
	for _, n := range strings.Split(c.Backends, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// Registry returns every known backend configured from c.
func (c *Conn) Registry() map[string]eedlab.Backend {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	reg := map[string]eedlab.Backend{
		LinuxKernel: {Name: LinuxKernel, Open: func(r eedlab.Resource) (eedlab.Transport, error) {
			path, err := kernelPath(r)
			if err != nil {
				return nil, err
			}
			return usbtmc.OpenDevice(path)
		}},
		VXI11: {Name: VXI11, Open: func(r eedlab.Resource) (eedlab.Transport, error) {
			if r.Kind != eedlab.KindVXI11 {
				return nil, errWrongKind
			}
			return vxi11.Dial(r.Host, r.Device, vxi11.WithTimeout(timeout))
		}},
		Socket: {Name: Socket, Open: func(r eedlab.Resource) (eedlab.Transport, error) {
			// a VXI-11 host is tried on the raw port too
			if r.Kind != eedlab.KindSocket && r.Kind != eedlab.KindVXI11 {
				return nil, errWrongKind
			}
			return socket.Dial(r.SocketAddr(), socket.WithTimeout(timeout))
		}},
		USBTMC: {Name: USBTMC, Open: func(r eedlab.Resource) (eedlab.Transport, error) {
			if r.Kind != eedlab.KindUSB {
				return nil, errWrongKind
			}
			return usbtmc.OpenUSB(r.VendorID, r.ProductID, r.Serial, usbtmc.WithTimeout(timeout))
		}},
		Serial: {Name: Serial, Open: func(r eedlab.Resource) (eedlab.Transport, error) {
			switch {
			case r.Kind == eedlab.KindSerial:
			case r.Kind == eedlab.KindDevice && strings.HasPrefix(filepath.Base(r.Path), "tty"):
			default:
				return nil, errWrongKind
			}
			return serial.Open(r.Path, serial.WithBaudRate(c.BaudRate), serial.WithTimeout(timeout))
		}},
		Prologix: {Name: Prologix, Open: func(r eedlab.Resource) (eedlab.Transport, error) {
			if r.Kind != eedlab.KindGPIB {
				return nil, errWrongKind
			}
			return c.openPrologix(r, timeout)
		}},
	}
	return reg
}

// kernelPath maps a device path or a USB resource to a /dev/usbtmcN node.
func kernelPath(r eedlab.Resource) (string, error) {
	switch r.Kind {
	case eedlab.KindDevice:
		if !strings.HasPrefix(filepath.Base(r.Path), "usbtmc") {
			return "", fmt.Errorf("%s is not a usbtmc device", r.Path)
		}
		return r.Path, nil
	case eedlab.KindUSB:
		vid, pid := fmt.Sprintf("%04x", r.VendorID), fmt.Sprintf("%04x", r.ProductID)
		match := find.ProductFilter(vid, pid)
		return find.FindUsbtmc(func(d *find.USBDevice) bool {
			return match(d) && (r.Serial == "" || strings.EqualFold(d.Serial, r.Serial))
		})
	}
	return "", errWrongKind
}

// gpibLink closes the controller and then its serial port.
type gpibLink struct {
	*prologix.Controller
	port interface{ Close() error }
}

func (g gpibLink) Close() error {
	return multierr.Append(g.Controller.Close(), g.port.Close())
}

func (c *Conn) openPrologix(r eedlab.Resource, timeout time.Duration) (eedlab.Transport, error) {
	port, err := prologix.OpenVCP(c.PrologixPort)
	if err != nil {
		return nil, err
	}
	var opts []prologix.ControllerOption
	if r.Secondary != 0 {
		opts = append(opts, prologix.WithSecondaryAddress(r.Secondary))
	}
	if c.AR488 {
		opts = append(opts, prologix.WithAR488())
	}
	if c.EOT {
		opts = append(opts, prologix.WithEOT('\n'))
	}
	if c.Debug {
		opts = append(opts, prologix.WithDebug())
	}
	if timeout < 3*time.Second {
		opts = append(opts, prologix.WithReadTimeout(timeout))
	}
	ctl, err := prologix.NewController(port, r.Primary, false, opts...)
	if err != nil {
		return nil, multierr.Append(err, port.Close())
	}
	if glog.V(1) {
		if ver, err := ctl.Version(); err != nil {
			glog.Warningf("prologix version on %s: %s", c.PrologixPort, err)
		} else {
			glog.Infof("prologix: %s on %s, GPIB %d", ver, c.PrologixPort, r.Primary)
		}
	}
	return gpibLink{Controller: ctl, port: port}, nil
}

// Select returns the named backends from reg, in order.
func Select(reg map[string]eedlab.Backend, names []string) ([]eedlab.Backend, error) {
	bes := make([]eedlab.Backend, 0, len(names))
	for _, n := range names {
		be, ok := reg[n]
		if !ok {
			return nil, fmt.Errorf("unknown backend %q", n)
		}
		bes = append(bes, be)
	}
	return bes, nil
}

// Connect opens c.Resource with the configured backends. When c.Log is set
// the chosen transport is wrapped in a cmdlog.Transport; the probe traffic
// of failed backends is not logged.
func (c *Conn) Connect(opts ...eedlab.Option) eedlab.ConnectResult {
	reg := c.Registry()
	if c.Log {
		for name, be := range reg {
			open := be.Open
			be.Open = func(r eedlab.Resource) (eedlab.Transport, error) {
				tr, err := open(r)
				if err != nil {
					return nil, err
				}
				return cmdlog.Wrap(tr), nil
			}
			reg[name] = be
		}
	}
	if c.MaxRead > 0 {
		opts = append(opts, eedlab.WithMaxRead(c.MaxRead))
	}
	if c.Debug {
		opts = append(opts, eedlab.WithDebug())
	}
	bes, err := Select(reg, c.BackendNames())
	if err != nil {
		return eedlab.ConnectResult{
			Status:   eedlab.NoBackends,
			Attempts: []eedlab.Attempt{{Backend: "select", Err: err}},
		}
	}
	return eedlab.Connect(c.Resource, bes, opts...)
}

// Setup is to be called after [flag.Parse]. The returned cleanup closes the
// instrument.
func (c *Conn) Setup(opts ...eedlab.Option) (inst *eedlab.Instrument, cleanup func(), err error) {
	nocleanup := func() {}
	if c.Resource == "" {
		if c.finderr != nil {
			glog.Warningf("locating GPIB controller failed: %s", c.finderr)
		}
		return nil, nocleanup, errors.New("no resource given and no usbtmc instrument found")
	}
	glog.Infof("resource = %s, backends = %s", c.Resource, strings.Join(c.BackendNames(), ","))

	res := c.Connect(opts...)
	if err := res.Err(); err != nil {
		return nil, nocleanup, err
	}
	glog.Infof("connected using %s: %s", res.Backend, res.IDN)
	inst = res.Instrument
	cleanup = func() {
		if err := inst.Close(); err != nil {
			glog.Errorf("error closing %s: %s", c.Resource, err)
		}
	}
	return inst, cleanup, nil
}
