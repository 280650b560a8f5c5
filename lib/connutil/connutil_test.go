package connutil

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gotmc/eedlab"
)

func TestDefaultBackends(t *testing.T) {
	linux := DefaultBackends("linux")
	if linux[0] != LinuxKernel || len(linux) != 6 {
		t.Errorf("linux order %v", linux)
	}
	for _, n := range DefaultBackends("darwin") {
		if n == LinuxKernel {
			t.Error("linux_kernel offered on darwin")
		}
	}
}

func TestBackendNames(t *testing.T) {
	c := Conn{Backends: " socket, vxi11,,"}
	got := strings.Join(c.BackendNames(), ",")
	if got != "socket,vxi11" {
		t.Errorf("got %q", got)
	}
}

func TestSelectUnknown(t *testing.T) {
	c := Conn{}
	if _, err := Select(c.Registry(), []string{"socket", "gpib-ethernet"}); err == nil {
		t.Error("unknown backend accepted")
	}
	res := (&Conn{Resource: "TCPIP::h::INSTR", Backends: "nope"}).Connect()
	if res.Status != eedlab.NoBackends || !errors.Is(res.Err(), eedlab.ErrNoBackend) {
		t.Errorf("status %s err %v", res.Status, res.Err())
	}
}

func TestBackendsRejectOtherKinds(t *testing.T) {
	reg := (&Conn{Timeout: time.Second}).Registry()
	gpib, err := eedlab.ParseResource("GPIB::4::INSTR")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{LinuxKernel, VXI11, Socket, USBTMC, Serial} {
		if _, err := reg[name].Open(gpib); err == nil {
			t.Errorf("%s accepted a gpib resource", name)
		}
	}
	dev, _ := eedlab.ParseResource("/dev/ttyUSB3")
	if _, err := reg[LinuxKernel].Open(dev); err == nil {
		t.Error("linux_kernel accepted a tty")
	}
}

// scpiServer answers *IDN? on a raw socket.
func scpiServer(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			if strings.TrimSpace(line) == "*IDN?" {
				fmt.Fprint(conn, "RIGOL TECHNOLOGIES,DS1104Z,DS1ZA000000002,00.04.04.SP4\n")
			}
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestConnectFallsBackToSocket(t *testing.T) {
	port := scpiServer(t)
	c := Conn{
		Resource: fmt.Sprintf("TCPIP::127.0.0.1::%d::SOCKET", port),
		Backends: "vxi11,usbtmc,socket",
		Timeout:  2 * time.Second,
		Log:      true,
	}
	inst, cleanup, err := c.Setup()
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()
	if inst.Backend() != Socket {
		t.Errorf("backend %q", inst.Backend())
	}

	res := (&Conn{Resource: c.Resource, Backends: "vxi11,usbtmc", Timeout: time.Second}).Connect()
	if res.Status != eedlab.NoBackendMatched || len(res.Attempts) != 2 {
		t.Errorf("status %s attempts %v", res.Status, res.Attempts)
	}
}
