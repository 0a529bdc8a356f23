package transport

import (
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

type serialConn struct {
	port  serial.Port
	timed bool
}

// OpenSerial opens a serial device at 8N1 with the given baud rate.
// With rtscts the handshake lines are asserted so the client sees a
// powered, ready drive; clients stop sending when they are dropped.
func OpenSerial(device string, baud int, rtscts bool) (Conn, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", device)
	}
	if rtscts {
		if err := port.SetRTS(true); err != nil {
			port.Close()
			return nil, errors.Wrapf(err, "assert RTS on %s", device)
		}
		if err := port.SetDTR(true); err != nil {
			port.Close()
			return nil, errors.Wrapf(err, "assert DTR on %s", device)
		}
	}
	if err := port.SetReadTimeout(serial.NoTimeout); err != nil {
		port.Close()
		return nil, err
	}
	return &serialConn{port: port}, nil
}

func (c *serialConn) Read(p []byte) (int, error) {
	n, err := c.port.Read(p)
	if err == nil && n == 0 && c.timed {
		return 0, ErrTimeout
	}
	return n, err
}

func (c *serialConn) Write(p []byte) (int, error) { return c.port.Write(p) }

func (c *serialConn) Close() error { return c.port.Close() }

func (c *serialConn) SetReadTimeout(d time.Duration) error {
	if d <= 0 {
		c.timed = false
		return c.port.SetReadTimeout(serial.NoTimeout)
	}
	c.timed = true
	return c.port.SetReadTimeout(d)
}
