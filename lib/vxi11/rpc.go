package vxi11

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	xdr "github.com/davecgh/go-xdr/xdr2"
)

// ONC RPC constants.
const (
	rpcCall        = 0
	rpcReply       = 1
	rpcVersion     = 2
	msgAccepted    = 0
	acceptSuccess  = 0
	authNone       = 0
	lastFragment   = 0x80000000
	portmapProg    = 100000
	portmapVers    = 2
	portmapGetPort = 3
	portmapPort    = 111
	protoTCP       = 6
)

type opaqueAuth struct {
	Flavor uint32
	Body   []byte
}

type callHeader struct {
	XID     uint32
	MsgType uint32
	RPCVers uint32
	Prog    uint32
	Vers    uint32
	Proc    uint32
	Cred    opaqueAuth
	Verf    opaqueAuth
}

type replyHeader struct {
	XID       uint32
	MsgType   uint32
	ReplyStat uint32
}

type acceptedReply struct {
	Verf       opaqueAuth
	AcceptStat uint32
}

type mapping struct {
	Prog uint32
	Vers uint32
	Prot uint32
	Port uint32
}

// rpcClient is an ONC RPC client over a TCP stream with record marking.
type rpcClient struct {
	conn    net.Conn
	prog    uint32
	vers    uint32
	xid     uint32
	timeout time.Duration
}

func dialRPC(addr string, prog, vers uint32, timeout time.Duration) (*rpcClient, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return &rpcClient{
		conn:    conn,
		prog:    prog,
		vers:    vers,
		xid:     uint32(time.Now().UnixNano()),
		timeout: timeout,
	}, nil
}

// call sends one procedure call with args and decodes the result into res.
func (c *rpcClient) call(proc uint32, args, res any, timeout time.Duration) error {
	c.xid++
	var msg bytes.Buffer
	msg.Write(make([]byte, 4)) // record mark
	hdr := callHeader{
		XID:     c.xid,
		MsgType: rpcCall,
		RPCVers: rpcVersion,
		Prog:    c.prog,
		Vers:    c.vers,
		Proc:    proc,
		Cred:    opaqueAuth{Flavor: authNone},
		Verf:    opaqueAuth{Flavor: authNone},
	}
	if _, err := xdr.Marshal(&msg, &hdr); err != nil {
		return err
	}
	if _, err := xdr.Marshal(&msg, args); err != nil {
		return err
	}
	frame := msg.Bytes()
	binary.BigEndian.PutUint32(frame, lastFragment|uint32(len(frame)-4))

	if timeout <= 0 {
		timeout = c.timeout
	}
	if err := c.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	if _, err := c.conn.Write(frame); err != nil {
		return err
	}

	for {
		rec, err := readRecord(c.conn)
		if err != nil {
			return err
		}
		r := bytes.NewReader(rec)
		var rh replyHeader
		if _, err := xdr.Unmarshal(r, &rh); err != nil {
			return fmt.Errorf("rpc: malformed reply: %w", err)
		}
		if rh.XID != c.xid {
			continue // stale reply to an earlier, timed out call
		}
		if err := checkReply(r, rh); err != nil {
			return err
		}
		if _, err := xdr.Unmarshal(r, res); err != nil {
			return fmt.Errorf("rpc: malformed result: %w", err)
		}
		return nil
	}
}

// readRecord reads one record marked message, joining its fragments.
func readRecord(r io.Reader) ([]byte, error) {
	var rec []byte
	for {
		var hdr [4]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, err
		}
		h := binary.BigEndian.Uint32(hdr[:])
		frag := make([]byte, h&^lastFragment)
		if _, err := io.ReadFull(r, frag); err != nil {
			return nil, err
		}
		rec = append(rec, frag...)
		if h&lastFragment != 0 {
			return rec, nil
		}
	}
}

// writeRecord sends msg as a single fragment record.
func writeRecord(w io.Writer, msg []byte) error {
	frame := binary.BigEndian.AppendUint32(nil, lastFragment|uint32(len(msg)))
	_, err := w.Write(append(frame, msg...))
	return err
}

func checkReply(r io.Reader, rh replyHeader) error {
	if rh.MsgType != rpcReply {
		return fmt.Errorf("rpc: message type %d is not a reply", rh.MsgType)
	}
	if rh.ReplyStat != msgAccepted {
		return fmt.Errorf("rpc: call denied (reply_stat %d)", rh.ReplyStat)
	}
	var ar acceptedReply
	if _, err := xdr.Unmarshal(r, &ar); err != nil {
		return fmt.Errorf("rpc: malformed reply: %w", err)
	}
	if ar.AcceptStat != acceptSuccess {
		return fmt.Errorf("rpc: call not accepted (accept_stat %d)", ar.AcceptStat)
	}
	return nil
}

func (c *rpcClient) close() error { return c.conn.Close() }

// getPort asks the portmapper on host for the TCP port of prog.
func getPort(host string, prog, vers uint32, timeout time.Duration) (int, error) {
	pm, err := dialRPC(net.JoinHostPort(host, fmt.Sprint(portmapPort)), portmapProg, portmapVers, timeout)
	if err != nil {
		return 0, fmt.Errorf("portmapper: %w", err)
	}
	defer pm.close()
	var port uint32
	if err := pm.call(portmapGetPort, &mapping{Prog: prog, Vers: vers, Prot: protoTCP}, &port, 0); err != nil {
		return 0, fmt.Errorf("portmapper: %w", err)
	}
	if port == 0 {
		return 0, errors.New("portmapper: program not registered")
	}
	return int(port), nil
}
