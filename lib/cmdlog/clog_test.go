package cmdlog

import (
	"fmt"
	"strings"
	"testing"

	"github.com/gotmc/eedlab/lib/scpitest"
)

func TestTransportLogs(t *testing.T) {
	fake := scpitest.New()
	fake.Reply("*IDN?", "RIGOL TECHNOLOGIES,DS1054Z,DS1ZA0000,00.04.04")
	fake.Reply(":WAV:DATA?", "#9000000100"+strings.Repeat("\x80", 100))

	var lines []string
	tr := Wrap(fake)
	tr.Logf = func(format string, args ...any) { lines = append(lines, fmt.Sprintf(format, args...)) }

	if err := tr.Write(":STOP"); err != nil {
		t.Fatal(err)
	}
	b, err := tr.Query("*IDN?", 1024)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(b), "RIGOL") {
		t.Errorf("reply %q", b)
	}
	if _, err := tr.Query(":WAV:DATA?", 1024); err != nil {
		t.Fatal(err)
	}
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}

	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], ":STOP") {
		t.Errorf("write line %q", lines[0])
	}
	if !strings.Contains(lines[1], "DS1054Z") {
		t.Errorf("query line %q", lines[1])
	}
	if !strings.Contains(lines[2], "112 B") {
		t.Errorf("binary line %q", lines[2])
	}
	if !fake.Closed() {
		t.Error("close not passed through")
	}
	if tr.Unwrap() != fake {
		t.Error("Unwrap")
	}
}

func TestIsASCII(t *testing.T) {
	for s, want := range map[string]bool{
		"1.25e-3\n": true,
		"a\tb":      true,
		"\x00\x01":  false,
		"\xff":      false,
	} {
		if got := isASCII(s); got != want {
			t.Errorf("isASCII(%q) = %t", s, got)
		}
	}
}
