// Package find locates USB instruments and serial adapters through sysfs.
package find

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
)

// RigolVendorID is the USB vendor id of Rigol instruments, as sysfs
// renders it.
const RigolVendorID = "1ab1"

// sysRoot is where sysfs is mounted.
var sysRoot = "/sys"

type FilterFn func(*USBDevice) bool

func ArduinoFilter(d *USBDevice) bool {
	return strings.Contains(d.Mfg, "Arduino")
}

// RigolFilter matches any Rigol instrument.
func RigolFilter(d *USBDevice) bool { return d.IDv == RigolVendorID }

// ProductFilter matches a vendor and product id pair, e.g. "1ab1", "04ce"
// for a DS1000Z scope.
func ProductFilter(vid, pid string) FilterFn {
	return func(d *USBDevice) bool {
		return strings.EqualFold(d.IDv, vid) && strings.EqualFold(d.IDp, pid)
	}
}

func SerialFilter(s string) FilterFn {
	return func(d *USBDevice) bool { return d.Serial == s }
}

// Find searches for a usb serial adapter. If filter is not nil, the first
// device for which it returns true (if any) is chosen.
func Find(filter FilterFn) (string, error) {
	ttys, err := AllUsbTtys()
	if err != nil {
		return "", err
	}
	return pick("ttys", ttys, filter)
}

// FindUsbtmc is like Find for instruments bound to the usbtmc kernel
// driver.
func FindUsbtmc(filter FilterFn) (string, error) {
	devs, err := AllUsbtmc()
	if err != nil {
		return "", err
	}
	return pick("usbtmc devices", devs, filter)
}

func pick(what string, devs USBDevices, filter FilterFn) (string, error) {
	if filter != nil {
		var match USBDevices
		for i := range devs {
			if filter(&devs[i]) {
				match = USBDevices{devs[i]}
				break
			}
		}
		devs = match
	}
	if len(devs) == 0 {
		return "", fmt.Errorf("no matching %s found", what)
	}
	if len(devs) == 1 {
		return devs[0].Dev, nil
	}
	return "", fmt.Errorf("multiple %s:\n%s", what, devs)
}

// USBDevice describes one device node backed by a usb interface.
type USBDevice struct {
	Dev, Path string
	IDp, IDv  string
	Mfg, Prod string
	Serial    string
}

func (u USBDevice) String() string {
	return fmt.Sprintf("dev %s path %s pid/vid %s/%s mfg/prod %s/%s serial %s", u.Dev, u.Path, u.IDp, u.IDv, u.Mfg, u.Prod, u.Serial)
}

type USBDevices []USBDevice

func (uds USBDevices) String() string {
	s := make([]string, 0, len(uds))
	for _, ud := range uds {
		s = append(s, ud.String())
	}
	return strings.Join(s, "\n")
}

// AllUsbTtys lists ttys on usb devices, from /sys/class/tty.
func AllUsbTtys() (USBDevices, error) { return scanClass("tty") }

// AllUsbtmc lists usbtmc character devices, from /sys/class/usbmisc.
func AllUsbtmc() (USBDevices, error) {
	devs, err := scanClass("usbmisc")
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil // usbtmc module never loaded
	}
	var tmc USBDevices
	for _, d := range devs {
		if strings.HasPrefix(filepath.Base(d.Dev), "usbtmc") {
			tmc = append(tmc, d)
		}
	}
	return tmc, err
}

// scanClass follows the symlinks in a sysfs class directory, like
// /sys/class/tty/ttyACM0 ->
// /sys/devices/pci0000:00/0000:00:01.3/0000:02:00.0/usb1/1-10/1-10:1.0/tty/ttyACM0
// and reads the usb descriptor strings of the device owning the interface.
func scanClass(class string) (USBDevices, error) {
	dir := filepath.Join(sysRoot, "class", class)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var devs USBDevices
	for _, e := range entries {
		if e.Type()&fs.ModeSymlink == 0 {
			continue
		}
		path := filepath.Join(dir, e.Name())
		abs, err := filepath.EvalSymlinks(path)
		if err != nil {
			glog.Warningf("error evaluating symlink %s; skipping: %s", path, err)
			continue
		}
		if !strings.Contains(abs, "usb") {
			continue
		}
		// device points at the interface, e.g. .../usb1/1-10/1-10:1.0;
		// the descriptors live one level up.
		intf, err := filepath.EvalSymlinks(filepath.Join(abs, "device"))
		if err != nil {
			glog.Warningf("usb but lacking device subdir?! %s %s", abs, err)
			continue
		}
		d := USBDevice{Dev: "/dev/" + e.Name(), Path: abs}
		if err := readUsbInfo(filepath.Dir(intf), &d); err != nil {
			glog.Warningf("%s: %s", abs, err)
		}
		devs = append(devs, d)
	}
	return devs, nil
}

// readUsbInfo fills in product and vendor ids and the mfg/product/serial
// strings. It returns the last error encountered, ignoring os.ErrNotExist;
// errors do not prevent reading the remaining files.
func readUsbInfo(dev string, d *USBDevice) error {
	var err error
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"idProduct", &d.IDp},
		{"idVendor", &d.IDv},
		{"manufacturer", &d.Mfg},
		{"product", &d.Prod},
		{"serial", &d.Serial},
	} {
		b, rerr := os.ReadFile(filepath.Join(dev, f.name))
		if rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = rerr
		}
		*f.dst = strings.TrimSpace(string(b))
	}
	return err
}
