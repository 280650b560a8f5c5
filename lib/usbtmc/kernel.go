// Package usbtmc reaches USB Test & Measurement Class instruments, either
// through the Linux kernel driver (/dev/usbtmcN) or directly over libusb.
package usbtmc

import (
	"fmt"
	"os"
	"strings"
)

// Device is an instrument opened through the Linux usbtmc kernel driver.
// Each read returns at most one USBTMC transfer, so a reply is read with a
// single read call.
type Device struct {
	f *os.File
}

// OpenDevice opens a /dev/usbtmcN character device.
func OpenDevice(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &Device{f: f}, nil
}

// Write sends cmd terminated by a newline.
func (d *Device) Write(cmd string) error {
	cmd = strings.TrimSpace(cmd) + "\n"
	n, err := d.f.WriteString(cmd)
	if err != nil {
		return err
	}
	if n != len(cmd) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(cmd))
	}
	return nil
}

// Query sends cmd and reads one reply of at most maxBytes.
func (d *Device) Query(cmd string, maxBytes int) ([]byte, error) {
	if err := d.Write(cmd); err != nil {
		return nil, err
	}
	if maxBytes <= 0 {
		maxBytes = 1 << 16
	}
	buf := make([]byte, maxBytes)
	n, err := d.f.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Close closes the device.
func (d *Device) Close() error { return d.f.Close() }
