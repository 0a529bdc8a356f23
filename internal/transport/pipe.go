package transport

import (
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Pipe returns two connected in-memory Conns: whatever one side writes
// the other reads. Used in tests as a stand-in for the serial line.
func Pipe() (Conn, Conn) {
	a, b := net.Pipe()
	return &pipeConn{c: a}, &pipeConn{c: b}
}

type pipeConn struct {
	c       net.Conn
	timeout time.Duration
}

func (p *pipeConn) Read(b []byte) (int, error) {
	if p.timeout > 0 {
		if err := p.c.SetReadDeadline(time.Now().Add(p.timeout)); err != nil {
			return 0, err
		}
		defer p.c.SetReadDeadline(time.Time{})
	}
	n, err := p.c.Read(b)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return n, ErrTimeout
	}
	return n, err
}

func (p *pipeConn) Write(b []byte) (int, error) { return p.c.Write(b) }

func (p *pipeConn) Close() error { return p.c.Close() }

func (p *pipeConn) SetReadTimeout(d time.Duration) error {
	if d < 0 {
		d = 0
	}
	p.timeout = d
	return nil
}
