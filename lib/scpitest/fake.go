// Package scpitest provides a scripted SCPI transport for tests.
package scpitest

import (
	"fmt"
	"strings"
	"sync"
)

// Fake is an in-memory transport. It records every command it is sent and
// answers queries from canned replies, falling back to Handler.
type Fake struct {
	// Handler answers queries that have no canned reply. If nil, such
	// queries fail.
	Handler func(cmd string, maxBytes int) ([]byte, error)

	mu      sync.Mutex
	log     []string
	replies map[string][]string
	fails   map[string]error
	closed  bool
}

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		replies: make(map[string][]string),
		fails:   make(map[string]error),
	}
}

// Reply queues replies for cmd. Each query consumes one reply; the last one
// is repeated once the queue is drained. A newline is appended the way an
// instrument terminates its replies.
func (f *Fake) Reply(cmd string, replies ...string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[cmd] = append(f.replies[cmd], replies...)
	return f
}

// Fail makes every write or query of cmd return err.
func (f *Fake) Fail(cmd string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails[cmd] = err
	return f
}

// Write records cmd.
func (f *Fake) Write(cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, cmd)
	if err, ok := f.fails[cmd]; ok {
		return err
	}
	return nil
}

// Query records cmd and returns its reply, truncated to maxBytes.
func (f *Fake) Query(cmd string, maxBytes int) ([]byte, error) {
	f.mu.Lock()
	f.log = append(f.log, cmd)
	if err, ok := f.fails[cmd]; ok {
		f.mu.Unlock()
		return nil, err
	}
	q, ok := f.replies[cmd]
	if !ok || len(q) == 0 {
		h := f.Handler
		f.mu.Unlock()
		if h == nil {
			return nil, fmt.Errorf("scpitest: unexpected query %q", cmd)
		}
		return h(cmd, maxBytes)
	}
	r := q[0]
	if len(q) > 1 {
		f.replies[cmd] = q[1:]
	}
	f.mu.Unlock()
	b := []byte(r + "\n")
	if maxBytes > 0 && len(b) > maxBytes {
		b = b[:maxBytes]
	}
	return b, nil
}

// Close marks the fake closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Log returns every command and query in the order received.
func (f *Fake) Log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

// Count returns how many times cmd was sent.
func (f *Fake) Count(cmd string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.log {
		if c == cmd {
			n++
		}
	}
	return n
}

// Sent reports whether cmd was sent at least once.
func (f *Fake) Sent(cmd string) bool { return f.Count(cmd) > 0 }

// Reset clears the log.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = nil
}

// String renders the log one command per line.
func (f *Fake) String() string { return strings.Join(f.Log(), "\n") }
