package vxi11

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	xdr "github.com/davecgh/go-xdr/xdr2"
)

// fakeDevice serves the core channel procedures on one connection.
type fakeDevice struct {
	maxRecv uint32
	piece   int
	reply   []byte

	mu      sync.Mutex
	written bytes.Buffer
	writes  int
	pending []byte
	device  string
	closed  bool
}

func (d *fakeDevice) serve(t *testing.T, ln net.Listener) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		rec, err := readRecord(conn)
		if err != nil {
			return
		}
		r := bytes.NewReader(rec)
		var call callHeader
		if _, err := xdr.Unmarshal(r, &call); err != nil {
			t.Errorf("bad call: %v", err)
			return
		}
		res, err := d.handle(call.Proc, r)
		if err != nil {
			t.Errorf("bad arguments to %d: %v", call.Proc, err)
			return
		}

		var out bytes.Buffer
		xdr.Marshal(&out, &replyHeader{XID: call.XID, MsgType: rpcReply, ReplyStat: msgAccepted})
		xdr.Marshal(&out, &acceptedReply{AcceptStat: acceptSuccess})
		xdr.Marshal(&out, res)
		if err := writeRecord(conn, out.Bytes()); err != nil {
			return
		}
	}
}

func (d *fakeDevice) handle(proc uint32, r io.Reader) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch proc {
	case procCreate:
		var args createLinkParms
		if _, err := xdr.Unmarshal(r, &args); err != nil {
			return nil, err
		}
		d.device = args.Device
		return &createLinkResp{LID: 42, MaxRecvSize: d.maxRecv}, nil
	case procWrite:
		var args deviceWriteParms
		if _, err := xdr.Unmarshal(r, &args); err != nil {
			return nil, err
		}
		d.written.Write(args.Data)
		d.writes++
		if args.Flags&flagEnd != 0 {
			d.pending = append([]byte(nil), d.reply...)
		}
		return &deviceWriteResp{Size: uint32(len(args.Data))}, nil
	case procRead:
		var args deviceReadParms
		if _, err := xdr.Unmarshal(r, &args); err != nil {
			return nil, err
		}
		n := min(d.piece, int(args.RequestSize), len(d.pending))
		resp := &deviceReadResp{Data: d.pending[:n]}
		d.pending = d.pending[n:]
		if len(d.pending) == 0 {
			resp.Reason = reasonEnd
		}
		return resp, nil
	case procDestroy:
		var lid uint32
		if _, err := xdr.Unmarshal(r, &lid); err != nil {
			return nil, err
		}
		d.closed = lid == 42
		return &deviceError{}, nil
	}
	return nil, fmt.Errorf("unknown procedure %d", proc)
}

func startFake(t *testing.T, d *fakeDevice) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go d.serve(t, ln)
	return ln.Addr().String()
}

func TestLinkQuery(t *testing.T) {
	d := &fakeDevice{maxRecv: 4, piece: 3, reply: []byte("RIGOL TECHNOLOGIES,DS1054Z\n")}
	addr := startFake(t, d)

	l, err := Dial(addr, "inst0", WithTimeout(2*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	got, err := l.Query("*IDN?", 1024)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(d.reply) {
		t.Errorf("reply %q, want %q", got, d.reply)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device != "inst0" {
		t.Errorf("link to %q", d.device)
	}
	if d.written.String() != "*IDN?\n" {
		t.Errorf("device got %q", d.written.String())
	}
	if d.writes != 2 {
		t.Errorf("write split into %d calls, want 2", d.writes)
	}
	if !d.closed {
		t.Error("link not destroyed")
	}
}

func TestLinkQueryStopsAtMax(t *testing.T) {
	d := &fakeDevice{maxRecv: 64, piece: 4, reply: []byte("0123456789\n")}
	addr := startFake(t, d)
	l, err := Dial(addr, "", WithTimeout(2*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	got, err := l.Query(":WAV:DATA?", 6)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "012345" {
		t.Errorf("got %q", got)
	}
}

func TestErrorText(t *testing.T) {
	var err error = &Error{Op: "device_read", Code: 15}
	var ve *Error
	if !errors.As(err, &ve) || ve.Code != 15 {
		t.Fatal("errors.As failed")
	}
	if want := "vxi11: device_read: I/O timeout (15)"; err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestCreateLinkEncoding(t *testing.T) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &createLinkParms{ClientID: 7, Device: "inst0"}); err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0, 0, 0, 7, // client id
		0, 0, 0, 0, // lock device
		0, 0, 0, 0, // lock timeout
		0, 0, 0, 5, 'i', 'n', 's', 't', '0', 0, 0, 0,
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("got % x, want % x", buf.Bytes(), want)
	}
	var back createLinkParms
	if _, err := xdr.Unmarshal(bytes.NewReader(want[:18]), &back); err == nil {
		t.Error("short device name accepted")
	}
}

func TestRecordFragments(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 2, 'a', 'b'})
	writeRecord(&buf, []byte("cd"))
	rec, err := readRecord(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(rec) != "abcd" {
		t.Errorf("record %q", rec)
	}
	if _, err := readRecord(bytes.NewReader([]byte{0x80, 0, 0, 4, 'x'})); err == nil {
		t.Error("truncated fragment accepted")
	}
}
