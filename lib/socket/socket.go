// Package socket talks SCPI over a raw TCP connection, the way Rigol LAN
// instruments accept it on port 5555.
package socket

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gotmc/eedlab/lib/block"
)

// Conn is a raw socket SCPI connection.
type Conn struct {
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
}

// Option applies an option to the connection.
type Option func(*Conn)

// WithTimeout sets the deadline applied to every write and read.
func WithTimeout(d time.Duration) Option { return func(c *Conn) { c.timeout = d } }

// Dial connects to addr (host:port).
func Dial(addr string, opts ...Option) (*Conn, error) {
	c := Conn{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&c)
	}
	conn, err := net.DialTimeout("tcp", addr, c.timeout)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.r = bufio.NewReaderSize(conn, 64*1024)
	return &c, nil
}

// Write sends cmd terminated by a newline.
func (c *Conn) Write(cmd string) error {
	if err := c.deadline(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.conn, "%s\n", strings.TrimSpace(cmd))
	return err
}

// Query sends cmd and reads one reply of at most maxBytes.
func (c *Conn) Query(cmd string, maxBytes int) ([]byte, error) {
	if err := c.Write(cmd); err != nil {
		return nil, err
	}
	if err := c.deadline(); err != nil {
		return nil, err
	}
	return block.ReadReply(c.r, maxBytes)
}

// Close closes the connection.
func (c *Conn) Close() error { return c.conn.Close() }

func (c *Conn) deadline() error {
	if c.timeout <= 0 {
		return c.conn.SetDeadline(time.Time{})
	}
	return c.conn.SetDeadline(time.Now().Add(c.timeout))
}
