package usbtmc

import (
	"encoding/binary"
	"fmt"
)

// USBTMC bulk message IDs.
const (
	msgDevDepOut             = 1
	msgRequestDevDepIn       = 2
	msgDevDepIn              = 2
	headerSize               = 12
	attrEOM             byte = 0x01
	attrTermChar        byte = 0x02
)

// nextTag returns the bTag following t; zero is not a valid tag.
func nextTag(t byte) byte {
	t++
	if t == 0 {
		t = 1
	}
	return t
}

// devDepMsgOut frames payload as a single DEV_DEP_MSG_OUT transfer, padded
// to a multiple of four bytes.
func devDepMsgOut(tag byte, payload []byte, eom bool) []byte {
	n := headerSize + len(payload)
	pad := (4 - n%4) % 4
	b := make([]byte, n+pad)
	b[0] = msgDevDepOut
	b[1] = tag
	b[2] = ^tag
	binary.LittleEndian.PutUint32(b[4:8], uint32(len(payload)))
	if eom {
		b[8] = attrEOM
	}
	copy(b[headerSize:], payload)
	return b
}

// requestDevDepMsgIn asks the device to send up to size bytes.
func requestDevDepMsgIn(tag byte, size uint32, term byte, useTerm bool) []byte {
	b := make([]byte, headerSize)
	b[0] = msgRequestDevDepIn
	b[1] = tag
	b[2] = ^tag
	binary.LittleEndian.PutUint32(b[4:8], size)
	if useTerm {
		b[8] = attrTermChar
		b[9] = term
	}
	return b
}

// parseDevDepMsgIn validates a DEV_DEP_MSG_IN header and returns the
// transfer size it announces and whether it ends the message.
func parseDevDepMsgIn(tag byte, b []byte) (size int, eom bool, err error) {
	if len(b) < headerSize {
		return 0, false, fmt.Errorf("short bulk-in header: %d bytes", len(b))
	}
	if b[0] != msgDevDepIn {
		return 0, false, fmt.Errorf("unexpected MsgID %d", b[0])
	}
	if b[1] != tag || b[2] != ^tag {
		return 0, false, fmt.Errorf("bTag mismatch: sent %d, got %d/%d", tag, b[1], b[2])
	}
	size = int(binary.LittleEndian.Uint32(b[4:8]))
	return size, b[8]&attrEOM != 0, nil
}
