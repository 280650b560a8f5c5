package usbtmc

import (
	"bytes"
	"testing"
)

func TestDevDepMsgOut(t *testing.T) {
	got := devDepMsgOut(7, []byte("*IDN?\n"), true)
	want := []byte{
		1, 7, 0xf8, 0,
		6, 0, 0, 0,
		1, 0, 0, 0,
		'*', 'I', 'D', 'N', '?', '\n', 0, 0,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("got  % x\nwant % x", got, want)
	}
	if len(got)%4 != 0 {
		t.Errorf("length %d not padded", len(got))
	}
}

func TestRequestDevDepMsgIn(t *testing.T) {
	got := requestDevDepMsgIn(2, 250256, '\n', true)
	want := []byte{2, 2, 0xfd, 0, 0x90, 0xd1, 0x03, 0, 2, '\n', 0, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("got  % x\nwant % x", got, want)
	}
}

func TestParseDevDepMsgIn(t *testing.T) {
	hdr := []byte{2, 9, 0xf6, 0, 5, 0, 0, 0, 1, 0, 0, 0}
	size, eom, err := parseDevDepMsgIn(9, append(hdr, "1.25\n"...))
	if err != nil {
		t.Fatal(err)
	}
	if size != 5 || !eom {
		t.Errorf("size=%d eom=%t", size, eom)
	}
	if _, _, err := parseDevDepMsgIn(10, hdr); err == nil {
		t.Error("tag mismatch accepted")
	}
	if _, _, err := parseDevDepMsgIn(9, hdr[:8]); err == nil {
		t.Error("short header accepted")
	}
}

func TestNextTagSkipsZero(t *testing.T) {
	if nextTag(255) != 1 {
		t.Errorf("nextTag(255) = %d", nextTag(255))
	}
	if nextTag(1) != 2 {
		t.Errorf("nextTag(1) = %d", nextTag(1))
	}
}
