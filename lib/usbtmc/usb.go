package usbtmc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/google/gousb"
)

// USB is an instrument driven directly over libusb, without a kernel
// driver.
type USB struct {
	ctx     *gousb.Context
	dev     *gousb.Device
	done    func()
	in      *gousb.InEndpoint
	out     *gousb.OutEndpoint
	inMax   int
	tag     byte
	timeout time.Duration
}

// USBOption applies an option to a USB instrument.
type USBOption func(*USB)

// WithTimeout sets the timeout of every bulk transfer.
func WithTimeout(d time.Duration) USBOption { return func(u *USB) { u.timeout = d } }

// OpenUSB opens the first instrument matching vid and pid, and serial if it
// is not empty.
func OpenUSB(vid, pid uint16, serial string, opts ...USBOption) (*USB, error) {
	u := USB{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&u)
	}
	u.ctx = gousb.NewContext()
	devs, err := u.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(vid) && desc.Product == gousb.ID(pid)
	})
	if err != nil && len(devs) == 0 {
		u.ctx.Close()
		return nil, fmt.Errorf("opening usb %04x:%04x: %w", vid, pid, err)
	}
	for _, d := range devs {
		if u.dev != nil {
			d.Close()
			continue
		}
		if serial != "" {
			sn, err := d.SerialNumber()
			if err != nil || !strings.EqualFold(sn, serial) {
				d.Close()
				continue
			}
		}
		u.dev = d
	}
	if u.dev == nil {
		u.ctx.Close()
		return nil, fmt.Errorf("no usb device %04x:%04x serial %q", vid, pid, serial)
	}
	if err := u.claim(); err != nil {
		u.Close()
		return nil, err
	}
	return &u, nil
}

func (u *USB) claim() error {
	if err := u.dev.SetAutoDetach(true); err != nil {
		return fmt.Errorf("auto detach: %w", err)
	}
	intf, done, err := u.dev.DefaultInterface()
	if err != nil {
		return fmt.Errorf("claiming interface: %w", err)
	}
	u.done = done
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch ep.Direction {
		case gousb.EndpointDirectionIn:
			if u.in == nil {
				if u.in, err = intf.InEndpoint(ep.Number); err != nil {
					return err
				}
				u.inMax = ep.MaxPacketSize
			}
		case gousb.EndpointDirectionOut:
			if u.out == nil {
				if u.out, err = intf.OutEndpoint(ep.Number); err != nil {
					return err
				}
			}
		}
	}
	if u.in == nil || u.out == nil {
		return fmt.Errorf("interface %s has no bulk in/out pair", intf)
	}
	glog.V(1).Infof("usbtmc: claimed %s", intf)
	return nil
}

// Write sends cmd terminated by a newline as one DEV_DEP_MSG_OUT message.
func (u *USB) Write(cmd string) error {
	u.tag = nextTag(u.tag)
	msg := devDepMsgOut(u.tag, []byte(strings.TrimSpace(cmd)+"\n"), true)
	ctx, cancel := context.WithTimeout(context.Background(), u.timeout)
	defer cancel()
	_, err := u.out.WriteContext(ctx, msg)
	return err
}

// Query sends cmd and reads the reply, requesting transfers until the device
// flags the end of the message or maxBytes have arrived.
func (u *USB) Query(cmd string, maxBytes int) ([]byte, error) {
	if err := u.Write(cmd); err != nil {
		return nil, err
	}
	if maxBytes <= 0 {
		maxBytes = 1 << 16
	}
	var reply []byte
	for len(reply) < maxBytes {
		want := maxBytes - len(reply)
		u.tag = nextTag(u.tag)
		ctx, cancel := context.WithTimeout(context.Background(), u.timeout)
		_, err := u.out.WriteContext(ctx, requestDevDepMsgIn(u.tag, uint32(want), 0, false))
		if err != nil {
			cancel()
			return nil, fmt.Errorf("requesting reply: %w", err)
		}
		data, eom, err := u.readTransfer(ctx, want)
		cancel()
		if err != nil {
			return nil, err
		}
		reply = append(reply, data...)
		if eom {
			break
		}
	}
	return reply, nil
}

func (u *USB) readTransfer(ctx context.Context, want int) ([]byte, bool, error) {
	size := headerSize + want + 3
	if u.inMax > 0 {
		size += u.inMax - size%u.inMax
	}
	buf := make([]byte, size)
	n, err := u.in.ReadContext(ctx, buf)
	if err != nil {
		return nil, false, fmt.Errorf("reading reply: %w", err)
	}
	got := buf[:n]
	tsize, eom, err := parseDevDepMsgIn(u.tag, got)
	if err != nil {
		return nil, false, err
	}
	for len(got) < headerSize+tsize {
		more := make([]byte, size)
		n, err := u.in.ReadContext(ctx, more)
		if err != nil {
			return nil, false, fmt.Errorf("reading reply: %w", err)
		}
		if n == 0 {
			break
		}
		got = append(got, more[:n]...)
	}
	end := headerSize + tsize
	if end > len(got) {
		end = len(got)
	}
	return got[headerSize:end], eom, nil
}

// Close releases the interface, the device and the libusb context.
func (u *USB) Close() error {
	if u.done != nil {
		u.done()
	}
	var err error
	if u.dev != nil {
		err = u.dev.Close()
	}
	if cerr := u.ctx.Close(); err == nil {
		err = cerr
	}
	return err
}
