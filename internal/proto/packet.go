// Package proto implements the TPDD wire formats: Operation-mode packet
// framing with the one's-complement block checksum, the command and status
// code tables for both drive models, and the FDC-mode ASCII response codec.
package proto

import (
	"errors"
	"fmt"
	"io"
)

// Operation-mode messages, in both directions, have the form
//
//	cmd      - 1 byte       format/type of this packet
//	length   - 1 byte       number of payload bytes
//	payload  - length bytes
//	checksum - 1 byte       covers cmd, length and payload
//
// Requests are additionally preceded by a two-byte sync marker (0x5A 0x5A).
const (
	SyncByte   = 0x5A
	PayloadMax = 128            // largest legal request payload
	MsgMax     = PayloadMax + 3 // cmd + len + payload + checksum
)

// ErrChecksum is returned by Reader.ReadPacket when a fully framed message
// arrives with a bad checksum. The packet is returned alongside so the
// caller can decide the reply policy (real drives stay silent).
var ErrChecksum = errors.New("checksum mismatch")

// Checksum returns the one's complement of the low byte of the 16-bit sum
// of cmd, length and payload. The drive manual describes the checksum as
// the complement of the "number of bytes from the block format through the
// data block", but real drives sum the bytes rather than count them.
func Checksum(cmd, length byte, payload []byte) byte {
	s := uint16(cmd) + uint16(length)
	for _, b := range payload {
		s += uint16(b)
	}
	return ^byte(s & 0xFF)
}

// Packet is one decoded Operation-mode message.
type Packet struct {
	Cmd     byte
	Payload []byte
}

// AppendPacket appends cmd, length, payload and checksum to dst and returns
// the extended slice. Replies are not preceded by a sync marker. Payloads
// longer than 255 bytes cannot be represented and are a caller error.
func AppendPacket(dst []byte, cmd byte, payload []byte) []byte {
	if len(payload) > 0xFF {
		panic(fmt.Sprintf("proto: payload too long: %d", len(payload)))
	}
	dst = append(dst, cmd, byte(len(payload)))
	dst = append(dst, payload...)
	return append(dst, Checksum(cmd, byte(len(payload)), payload))
}

// Marshal returns the complete framed form of p (without sync marker).
func Marshal(cmd byte, payload []byte) []byte {
	return AppendPacket(make([]byte, 0, len(payload)+3), cmd, payload)
}

// Reader deframes Operation-mode requests from a byte stream.
//
// Framing resynchronizes on the two-byte sync marker at the start of every
// message: bytes are consumed one at a time and any non-sync byte resets
// the sync counter, so line noise between messages is skipped silently.
type Reader struct {
	r io.ByteReader
}

func NewReader(r io.ByteReader) *Reader {
	return &Reader{r: r}
}

// ReadPacket blocks until a complete message has been framed. A message
// whose checksum does not verify is returned with ErrChecksum; any
// transport error is returned as-is.
func (r *Reader) ReadPacket() (Packet, error) {
	var p Packet
	for {
		// Hunt for two consecutive sync bytes.
		sync := 0
		for sync < 2 {
			b, err := r.r.ReadByte()
			if err != nil {
				return p, err
			}
			if b == SyncByte {
				sync++
			} else {
				sync = 0
			}
		}

		cmd, err := r.r.ReadByte()
		if err != nil {
			return p, err
		}
		length, err := r.r.ReadByte()
		if err != nil {
			return p, err
		}
		if int(length) > PayloadMax {
			// Not a legal request; treat as noise and resynchronize.
			continue
		}

		payload := make([]byte, int(length))
		for i := range payload {
			if payload[i], err = r.r.ReadByte(); err != nil {
				return p, err
			}
		}
		sum, err := r.r.ReadByte()
		if err != nil {
			return p, err
		}

		p.Cmd = cmd
		p.Payload = payload
		if sum != Checksum(cmd, length, payload) {
			return p, ErrChecksum
		}
		return p, nil
	}
}
