// Package block reads IEEE 488.2 definite length arbitrary blocks, the
// framing Rigol instruments use for binary replies:
//
//	'#', one digit n, n digits of length, length data bytes, '\n'
package block

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// Header parses the block header at the start of b and returns the header
// length and the data length.
func Header(b []byte) (hdrLen, dataLen int, err error) {
	if len(b) < 2 {
		return 0, 0, io.ErrUnexpectedEOF
	}
	if b[0] != '#' {
		return 0, 0, fmt.Errorf("invalid header: want # got %q", b[0])
	}
	if b[1] < '0' || b[1] > '9' {
		return 0, 0, fmt.Errorf("invalid length digit %q", b[1])
	}
	n := int(b[1] - '0')
	if n == 0 {
		// indefinite length, data runs to the terminator
		return 2, -1, nil
	}
	if len(b) < 2+n {
		return 0, 0, io.ErrUnexpectedEOF
	}
	dataLen, err = strconv.Atoi(string(b[2 : 2+n]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid length %q: %w", b[2:2+n], err)
	}
	return 2 + n, dataLen, nil
}

// Parse returns the data of the block at the start of b.
func Parse(b []byte) ([]byte, error) {
	hdr, n, err := Header(b)
	if err != nil {
		return nil, err
	}
	data := b[hdr:]
	if n < 0 {
		if l := len(data); l > 0 && data[l-1] == '\n' {
			data = data[:l-1]
		}
		return data, nil
	}
	if len(data) < n {
		return nil, fmt.Errorf("short block: expect %d bytes, got %d", n, len(data))
	}
	return data[:n], nil
}

// ReadReply reads one complete reply from r and returns it exactly as
// received, terminator included. A reply starting with '#' is read as a
// block so that binary data containing newlines is not split. Replies
// longer than max are read in full but only the first max bytes are
// returned; max <= 0 means no limit.
func ReadReply(r *bufio.Reader, max int) ([]byte, error) {
	first, err := r.Peek(1)
	if err != nil {
		return nil, err
	}
	var reply []byte
	if first[0] != '#' {
		reply, err = r.ReadBytes('\n')
		if err != nil && !(err == io.EOF && len(reply) > 0) {
			return nil, err
		}
		return limit(reply, max), nil
	}

	prefix, err := r.Peek(2)
	if err != nil {
		return nil, err
	}
	hdrLen := 2
	if prefix[1] >= '1' && prefix[1] <= '9' {
		hdrLen += int(prefix[1] - '0')
	}
	hdr := make([]byte, hdrLen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}
	_, n, err := Header(hdr)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		rest, err := r.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		return limit(append(hdr, rest...), max), nil
	}
	reply = make([]byte, hdrLen+n, hdrLen+n+1)
	copy(reply, hdr)
	if _, err := io.ReadFull(r, reply[hdrLen:]); err != nil {
		return nil, fmt.Errorf("reading %d byte block: %w", n, err)
	}
	if b, err := r.Peek(1); err == nil && b[0] == '\n' {
		r.ReadByte()
		reply = append(reply, '\n')
	}
	return limit(reply, max), nil
}

func limit(b []byte, max int) []byte {
	if max > 0 && len(b) > max {
		return b[:max]
	}
	return b
}
