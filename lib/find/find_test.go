package find

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeSys builds a sysfs tree under a temp dir and points sysRoot at it.
func fakeSys(t *testing.T) {
	t.Helper()
	root := t.TempDir()
	old := sysRoot
	sysRoot = root
	t.Cleanup(func() { sysRoot = old })

	usb := filepath.Join(root, "devices", "pci0000:00", "usb1")
	add := func(class, node, port string, info map[string]string) {
		dev := filepath.Join(usb, port)
		intf := filepath.Join(dev, port+":1.0")
		nodeDir := filepath.Join(intf, class, node)
		must(t, os.MkdirAll(nodeDir, 0o755))
		for k, v := range info {
			must(t, os.WriteFile(filepath.Join(dev, k), []byte(v+"\n"), 0o644))
		}
		must(t, os.Symlink(intf, filepath.Join(nodeDir, "device")))
		classDir := filepath.Join(root, "class", class)
		must(t, os.MkdirAll(classDir, 0o755))
		must(t, os.Symlink(nodeDir, filepath.Join(classDir, node)))
	}
	add("usbmisc", "usbtmc0", "1-3", map[string]string{
		"idVendor": "1ab1", "idProduct": "04ce", "manufacturer": "Rigol Technologies.",
		"product": "DS1000Z Series", "serial": "DS1ZA000000001",
	})
	add("usbmisc", "hiddev0", "1-4", map[string]string{"idVendor": "046d", "idProduct": "c52b"})
	add("tty", "ttyACM0", "1-10", map[string]string{
		"idVendor": "2341", "idProduct": "0043", "manufacturer": "Arduino (www.arduino.cc)", "serial": "A603UX94",
	})
	add("tty", "ttyUSB0", "1-11", map[string]string{"idVendor": "0403", "idProduct": "6001", "serial": "PX9X3ZQ"})

	// a non-usb tty is skipped
	must(t, os.MkdirAll(filepath.Join(root, "devices", "platform", "serial8250", "tty", "ttyS0"), 0o755))
	must(t, os.Symlink(filepath.Join(root, "devices", "platform", "serial8250", "tty", "ttyS0"),
		filepath.Join(root, "class", "tty", "ttyS0")))
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func TestAllUsbtmc(t *testing.T) {
	fakeSys(t)
	devs, err := AllUsbtmc()
	if err != nil {
		t.Fatal(err)
	}
	if len(devs) != 1 {
		t.Fatalf("got %d devices:\n%s", len(devs), devs)
	}
	d := devs[0]
	if d.Dev != "/dev/usbtmc0" || d.IDv != "1ab1" || d.IDp != "04ce" || d.Serial != "DS1ZA000000001" {
		t.Errorf("got %s", d)
	}
	if !RigolFilter(&d) || !ProductFilter("1AB1", "04CE")(&d) {
		t.Error("filters do not match the scope")
	}
}

func TestFind(t *testing.T) {
	fakeSys(t)
	if _, err := Find(nil); err == nil || !strings.Contains(err.Error(), "multiple") {
		t.Errorf("unfiltered find: %v", err)
	}
	dev, err := Find(ArduinoFilter)
	if err != nil || dev != "/dev/ttyACM0" {
		t.Errorf("arduino: %q %v", dev, err)
	}
	dev, err = Find(SerialFilter("PX9X3ZQ"))
	if err != nil || dev != "/dev/ttyUSB0" {
		t.Errorf("serial: %q %v", dev, err)
	}
	if _, err := Find(RigolFilter); err == nil {
		t.Error("rigol filter matched a tty")
	}
	dev, err = FindUsbtmc(RigolFilter)
	if err != nil || dev != "/dev/usbtmc0" {
		t.Errorf("usbtmc: %q %v", dev, err)
	}
}

func TestAllUsbtmcWithoutModule(t *testing.T) {
	old := sysRoot
	sysRoot = t.TempDir()
	defer func() { sysRoot = old }()
	devs, err := AllUsbtmc()
	if err != nil || len(devs) != 0 {
		t.Errorf("got %v %v", devs, err)
	}
}
