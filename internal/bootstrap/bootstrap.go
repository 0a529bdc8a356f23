// Package bootstrap feeds a BASIC loader program to a machine that is
// typing it into its own BASIC prompt over the serial line. The receiving
// machine has no flow control in that state, so bytes go out one at a
// time with a fixed delay after each.
package bootstrap

import (
	"io"
	"time"

	"github.com/pkg/errors"
)

const (
	basicEOL = 0x0D // carriage return ends a BASIC line
	basicEOF = 0x1A // ^Z ends the whole program
	localEOL = 0x0A
)

// Sender streams one loader file.
type Sender struct {
	W       io.Writer
	PerByte time.Duration // delay after every byte

	// Trailer supplies a missing final CR and ^Z, which BASIC needs to
	// finish the load. Leave it off when sending raw binary.
	Trailer bool

	// Echo, when set, receives every byte as it goes out, for showing
	// progress on the console.
	Echo func(b byte)
}

// Send writes r to the line at the configured pace.
func (s Sender) Send(r io.Reader) error {
	br := make([]byte, 1)
	var last byte
	for {
		n, err := r.Read(br)
		if n == 1 {
			last = br[0]
			if werr := s.sendByte(last); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "loader read")
		}
	}
	if s.Trailer {
		if last != localEOL && last != basicEOL && last != basicEOF {
			if err := s.sendByte(basicEOL); err != nil {
				return err
			}
		}
		if last != basicEOF {
			if err := s.sendByte(basicEOF); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s Sender) sendByte(b byte) error {
	if _, err := s.W.Write([]byte{b}); err != nil {
		return errors.Wrap(err, "loader send")
	}
	if s.Echo != nil {
		s.Echo(b)
	}
	if s.PerByte > 0 {
		time.Sleep(s.PerByte)
	}
	return nil
}

// StatCode returns the digit the KC-85 platform machines use for a baud
// rate in their STAT/COM strings ("COM:98N1ENN" is 19200), and whether
// the rate is reachable from BASIC at all.
func StatCode(baud int) (byte, bool) {
	switch baud {
	case 75:
		return '1', true
	case 110:
		return '2', true
	case 300:
		return '3', true
	case 600:
		return '4', true
	case 1200:
		return '5', true
	case 2400:
		return '6', true
	case 4800:
		return '7', true
	case 9600:
		return '8', true
	case 19200:
		return '9', true
	}
	return 0, false
}
