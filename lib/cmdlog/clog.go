// Package cmdlog wraps a transport so that every command and reply is
// logged, with commands and replies styled for a terminal.
package cmdlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/gotmc/eedlab"
)

func isASCII(s string) bool {
	return !strings.ContainsFunc(s, func(r rune) bool {
		switch {
		case r < 7:
			return true
		case r > 6 && r < 14:
			return false
		case r > 13 && r < 32:
			return true
		case r > 127:
			return true
		}
		return false
	})
}

var (
	CmdStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	R1Style  = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	R2Style  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
)

// Transport logs traffic through to the wrapped transport. Binary replies
// longer than Preview bytes are logged as a length and a hex prefix.
type Transport struct {
	tr      eedlab.Transport
	Preview int
	Logf    func(format string, args ...any)
}

var _ eedlab.Transport = (*Transport)(nil)

// Wrap returns tr with logging added.
func Wrap(tr eedlab.Transport) *Transport {
	return &Transport{tr: tr, Preview: 32, Logf: glog.Infof}
}

// Unwrap returns the wrapped transport.
func (t *Transport) Unwrap() eedlab.Transport { return t.tr }

func (t *Transport) Write(cmd string) error {
	err := t.tr.Write(cmd)
	if err != nil {
		t.Logf("cmd %s: error %s", CmdStyle.Render(cmd), err)
	} else {
		t.Logf("%s()", CmdStyle.Render(cmd))
	}
	return err
}

func (t *Transport) Query(cmd string, maxBytes int) ([]byte, error) {
	start := time.Now()
	b, err := t.tr.Query(cmd, maxBytes)
	q := CmdStyle.Render(cmd)
	if err != nil {
		t.Logf("query %s: error %s", q, err)
		return b, err
	}
	t.Logf("%s: %s (%s)", q, t.describe(b), time.Since(start).Round(time.Millisecond))
	return b, nil
}

func (t *Transport) describe(b []byte) string {
	a := strings.TrimSuffix(string(b), "\n")
	switch {
	case len(a) == 0:
		return R1Style.Render("<no response>")
	case isASCII(a) && len(a) <= 4*t.Preview:
		return R2Style.Render(fmt.Sprintf("[%d] %q", len(a), a))
	case len(a) < t.Preview:
		return R2Style.Render(fmt.Sprintf("[%d] %q (% 2x)", len(a), a, []byte(a)))
	default:
		return R1Style.Render(fmt.Sprintf("[%s] % 2x ...", humanize.Bytes(uint64(len(b))), b[:t.Preview]))
	}
}

func (t *Transport) Close() error {
	err := t.tr.Close()
	if err != nil {
		t.Logf("close: error %s", err)
	}
	return err
}
