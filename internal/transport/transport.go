// Package transport abstracts the byte stream between the drive and its
// client: a real serial line in production, an in-memory pipe in tests.
//
// The protocol needs exactly one non-stream feature from the line: a
// bounded single-byte read, used when the drive waits briefly for a
// client to confirm or continue and treats silence as an answer.
package transport

import (
	"io"
	"time"

	"github.com/pkg/errors"
)

// ErrTimeout reports that a read hit the deadline set with
// SetReadTimeout before any byte arrived.
var ErrTimeout = errors.New("read timed out")

// Conn is one client connection.
type Conn interface {
	io.ReadWriteCloser

	// SetReadTimeout bounds subsequent reads; zero or negative restores
	// blocking reads. A read that times out returns ErrTimeout.
	SetReadTimeout(d time.Duration) error
}

// ByteReader adapts a Conn to io.ByteReader without buffering, so read
// timeouts keep their per-byte meaning.
type ByteReader struct{ C Conn }

func (r ByteReader) ReadByte() (byte, error) {
	var b [1]byte
	for {
		n, err := r.C.Read(b[:])
		if n == 1 {
			return b[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// ReadFull fills buf from the connection.
func ReadFull(c Conn, buf []byte) error {
	_, err := io.ReadFull(c, buf)
	return err
}
