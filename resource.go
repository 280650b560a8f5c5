// Copyright (c) 2024 The eedlab developers. All rights reserved.
// Project site: https://github.com/gotmc/eedlab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package eedlab

import (
	"fmt"
	"strconv"
	"strings"
)

// ResourceKind identifies how an instrument is addressed.
type ResourceKind int

// Available resource kinds.
const (
	KindDevice ResourceKind = iota // character device path, e.g. /dev/usbtmc0
	KindUSB                        // USB::vid::pid::serial::INSTR
	KindVXI11                      // TCPIP::host::inst0::INSTR
	KindSocket                     // TCPIP::host::port::SOCKET
	KindSerial                     // ASRL/dev/ttyUSB0::INSTR
	KindGPIB                       // GPIB::pad[::sad]::INSTR
)

var kindDesc = map[ResourceKind]string{
	KindDevice: "device",
	KindUSB:    "usb",
	KindVXI11:  "vxi11",
	KindSocket: "socket",
	KindSerial: "serial",
	KindGPIB:   "gpib",
}

func (k ResourceKind) String() string {
	return kindDesc[k]
}

// Resource is a parsed instrument address.
type Resource struct {
	Raw       string
	Kind      ResourceKind
	Path      string // device or serial port path
	Host      string
	Port      int    // socket port
	Device    string // VXI-11 device name
	VendorID  uint16
	ProductID uint16
	Serial    string
	Primary   int // GPIB primary address
	Secondary int // GPIB secondary address, 0 if unused
}

func (r Resource) String() string { return r.Raw }

// DefaultSocketPort is the raw SCPI port of Rigol LAN instruments.
const DefaultSocketPort = 5555

// ParseResource parses a VISA style resource string. A bare path starting
// with "/" is a device, anything else without "::" is a VXI-11 host.
func ParseResource(s string) (Resource, error) {
	r := Resource{Raw: s}
	s = strings.TrimSpace(s)
	if s == "" {
		return r, fmt.Errorf("empty resource")
	}
	if !strings.Contains(s, "::") {
		if strings.HasPrefix(s, "/") {
			r.Kind = KindDevice
			r.Path = s
			return r, nil
		}
		r.Kind = KindVXI11
		r.Host = s
		r.Device = "inst0"
		return r, nil
	}

	parts := strings.Split(s, "::")
	head := strings.ToUpper(parts[0])
	if strings.EqualFold(parts[len(parts)-1], "INSTR") {
		parts = parts[:len(parts)-1]
	}
	switch {
	case strings.HasPrefix(head, "USB"):
		if len(parts) < 3 {
			return r, fmt.Errorf("usb resource %q: want USB::vid::pid[::serial]", s)
		}
		vid, err := strconv.ParseUint(parts[1], 0, 16)
		if err != nil {
			return r, fmt.Errorf("usb resource %q: vendor id: %w", s, err)
		}
		pid, err := strconv.ParseUint(parts[2], 0, 16)
		if err != nil {
			return r, fmt.Errorf("usb resource %q: product id: %w", s, err)
		}
		r.Kind = KindUSB
		r.VendorID, r.ProductID = uint16(vid), uint16(pid)
		if len(parts) > 3 {
			r.Serial = parts[3]
		}
	case strings.HasPrefix(head, "TCPIP"):
		if len(parts) < 2 {
			return r, fmt.Errorf("tcpip resource %q: missing host", s)
		}
		r.Host = parts[1]
		if strings.EqualFold(parts[len(parts)-1], "SOCKET") {
			if len(parts) != 4 {
				return r, fmt.Errorf("socket resource %q: want TCPIP::host::port::SOCKET", s)
			}
			port, err := strconv.Atoi(parts[2])
			if err != nil {
				return r, fmt.Errorf("socket resource %q: port: %w", s, err)
			}
			r.Kind = KindSocket
			r.Port = port
			return r, nil
		}
		r.Kind = KindVXI11
		r.Device = "inst0"
		if len(parts) > 2 {
			r.Device = parts[2]
		}
	case strings.HasPrefix(head, "ASRL"):
		r.Kind = KindSerial
		r.Path = parts[0][len("ASRL"):]
		if r.Path == "" {
			return r, fmt.Errorf("serial resource %q: missing port", s)
		}
	case strings.HasPrefix(head, "GPIB"):
		if len(parts) < 2 {
			return r, fmt.Errorf("gpib resource %q: missing address", s)
		}
		pad, err := strconv.Atoi(parts[1])
		if err != nil {
			return r, fmt.Errorf("gpib resource %q: primary address: %w", s, err)
		}
		r.Kind = KindGPIB
		r.Primary = pad
		if len(parts) > 2 {
			sad, err := strconv.Atoi(parts[2])
			if err != nil {
				return r, fmt.Errorf("gpib resource %q: secondary address: %w", s, err)
			}
			r.Secondary = sad
		}
	default:
		return r, fmt.Errorf("unknown resource type %q", parts[0])
	}
	return r, nil
}

// SocketAddr returns host:port for socket resources, falling back to
// DefaultSocketPort when no port was given.
func (r Resource) SocketAddr() string {
	port := r.Port
	if port == 0 {
		port = DefaultSocketPort
	}
	return fmt.Sprintf("%s:%d", r.Host, port)
}
