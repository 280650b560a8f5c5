package block

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	data, err := Parse([]byte("#9000000004\x00\n\x7f\xff\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte{0x00, '\n', 0x7f, 0xff}) {
		t.Errorf("data = % x", data)
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "#", "X9000000004abcd", "#9000", "#9000000010abc", "#a"} {
		if _, err := Parse([]byte(in)); err == nil {
			t.Errorf("Parse(%q) succeeded", in)
		}
	}
}

func TestParseIndefinite(t *testing.T) {
	data, err := Parse([]byte("#0abc\n"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "abc" {
		t.Errorf("data = %q", data)
	}
}

func TestReadReplyASCIIThenBlock(t *testing.T) {
	stream := "RIGOL,DS1054Z\n#15a\nb\x00c\n1.0e-03\n"
	r := bufio.NewReader(strings.NewReader(stream))

	got, err := ReadReply(r, 0)
	if err != nil || string(got) != "RIGOL,DS1054Z\n" {
		t.Fatalf("first = %q, %v", got, err)
	}
	got, err = ReadReply(r, 0)
	if err != nil || string(got) != "#15a\nb\x00c\n" {
		t.Fatalf("block = %q, %v", got, err)
	}
	got, err = ReadReply(r, 0)
	if err != nil || string(got) != "1.0e-03\n" {
		t.Fatalf("last = %q, %v", got, err)
	}
	if _, err := ReadReply(r, 0); err != io.EOF {
		t.Errorf("err = %v, want EOF", err)
	}
}

func TestReadReplyLimitDrainsBlock(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("#210abcdefghij\nnext\n"))
	got, err := ReadReply(r, 6)
	if err != nil || string(got) != "#210ab" {
		t.Fatalf("got %q, %v", got, err)
	}
	got, err = ReadReply(r, 6)
	if err != nil || string(got) != "next\n" {
		t.Fatalf("next = %q, %v", got, err)
	}
}

func TestReadReplyShortBlock(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("#210abc"))
	if _, err := ReadReply(r, 0); err == nil {
		t.Error("expected error for truncated block")
	}
}

func TestReadReplyNoTerminator(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("#13xyz"))
	got, err := ReadReply(r, 0)
	if err != nil || string(got) != "#13xyz" {
		t.Errorf("got %q, %v", got, err)
	}
}
