package server

import (
	"strings"

	"github.com/pkg/errors"

	"tpdd-server/internal/diskimage"
	"tpdd-server/internal/proto"
	"tpdd-server/internal/transport"
)

// fdcParamMax bounds the stored parameter text of one FDC command line.
// The drive's own buffer is this small; longer lines lose their tail but
// still terminate on the CR.
const fdcParamMax = 6

// serveFDC reads and answers one FDC-mode command line.
func (s *Server) serveFDC() error {
	br := transport.ByteReader{C: s.conn}

	// Hunt for a command character. Anything else is noise, except a bare
	// CR, which gets the invalid-command reply; Sardine DOS probes with an
	// empty line to tell an FDC-mode drive from an Operation-mode one.
	var cmd byte
	for cmd == 0 {
		var b byte
		var err error
		if s.hasPending {
			b, s.hasPending = s.pending, false
		} else if b, err = br.ReadByte(); err != nil {
			return err
		}
		switch {
		case b == proto.FDCEol:
			if err := s.retFDC(proto.FDCErrCommand, 0, 0); err != nil {
				return err
			}
		case strings.IndexByte(proto.FDCCommands, b) >= 0:
			cmd = b
		}
	}

	// Parameter text runs to the CR; spaces are separators and drop out.
	var param []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			return err
		}
		if b == proto.FDCEol {
			break
		}
		if b == ' ' || len(param) >= fdcParamMax {
			continue
		}
		param = append(param, b)
	}

	p, l := proto.ParseFDCParams(param)
	s.logf(2, "fdc: %c p=%d l=%d", cmd, p, l)

	// Range checks come before the command does anything, like the
	// firmware's shared parameter validation.
	switch {
	case p < 0:
		return s.retFDC(proto.FDCErrParam, 0xFF, 0)
	case p >= s.img.Geometry().Tracks:
		return s.retFDC(proto.FDCErrPSNHigh, 0xFF, 0)
	case l < 1:
		return s.retFDC(proto.FDCErrLSNLow, byte(p), 0)
	case l > 20:
		return s.retFDC(proto.FDCErrLSNHigh, byte(p), 0)
	}

	switch cmd {
	case proto.FDCSetMode:
		// M0 stays in FDC mode, M1 returns to Operation mode. No reply.
		s.opMode = p != 0
		if s.opMode {
			s.logf(1, "switched to operation mode")
		}
		return nil
	case proto.FDCCondition:
		return s.retFDC(proto.FDCErrSuccess, s.cond1, 0)
	case proto.FDCFormat, proto.FDCFormatNV:
		return s.fdcFormat(p)
	case proto.FDCReadID:
		return s.fdcReadID(p)
	case proto.FDCReadSector:
		return s.fdcReadSector(p, l)
	case proto.FDCSearchID:
		return s.fdcSearchID()
	case proto.FDCWriteID, proto.FDCWriteIDNV:
		return s.fdcWriteID(p)
	case proto.FDCWriteSector, proto.FDCWriteSectorNV:
		return s.fdcWriteSector(p, l)
	}
	return s.retFDC(proto.FDCErrCommand, 0, 0)
}

func (s *Server) retFDC(e, st byte, l uint16) error {
	if e != proto.FDCErrSuccess {
		s.logf(1, "fdc error reply: %d", e)
	}
	return s.send(proto.FDCResponse(e, st, l))
}

// fdcErr maps a media error onto the FDC-mode error code.
func fdcErr(err error) byte {
	switch {
	case errors.Is(err, diskimage.ErrNoDisk):
		return proto.FDCErrNoDisk
	case errors.Is(err, diskimage.ErrWriteProtected):
		return proto.FDCErrWriteProtect
	default:
		return proto.FDCErrRead
	}
}

// confirmFDC waits for the CR with which the client requests the data
// half of a two-stage read. Any other byte abandons the transfer.
func (s *Server) confirmFDC() (bool, error) {
	b, err := transport.ByteReader{C: s.conn}.ReadByte()
	if err != nil {
		return false, err
	}
	return b == proto.FDCEol, nil
}

func (s *Server) fdcFormat(sizeCode int) error {
	if sizeCode >= len(diskimage.LogicalSizes) {
		return s.retFDC(proto.FDCErrLSSCHigh, 0xFF, 0)
	}
	s.logf(1, "fdc format, logical size %d", diskimage.LogicalSizes[sizeCode])
	if failedAt, err := s.img.FormatFDC(byte(sizeCode)); err != nil {
		return s.retFDC(fdcErr(err), byte(failedAt), 0)
	}
	return s.retFDC(proto.FDCErrSuccess, 0, 0)
}

func (s *Server) fdcReadID(p int) error {
	id, size, err := s.img.ReadID(p)
	if err != nil {
		return s.retFDC(fdcErr(err), 0, 0)
	}
	if err := s.retFDC(proto.FDCErrSuccess, byte(p), size); err != nil {
		return err
	}
	ok, err := s.confirmFDC()
	if err != nil || !ok {
		return err
	}
	return s.send(id)
}

func (s *Server) fdcReadSector(p, l int) error {
	data, size, err := s.img.ReadSector(p, l)
	if errors.Is(err, diskimage.ErrLogicalRange) {
		return s.retFDC(proto.FDCErrLSNHigh, byte(p), size)
	}
	if err != nil {
		return s.retFDC(fdcErr(err), 0, 0)
	}
	if err := s.retFDC(proto.FDCErrSuccess, byte(p), size); err != nil {
		return err
	}
	ok, err := s.confirmFDC()
	if err != nil || !ok {
		return err
	}
	return s.send(data)
}

func (s *Server) fdcSearchID() error {
	// Media errors must surface before the client is asked for the
	// 12-byte search pattern.
	if err := s.img.CheckReadable(); err != nil {
		return s.retFDC(fdcErr(err), 0, 0)
	}
	if err := s.retFDC(proto.FDCErrSuccess, 0, 0); err != nil {
		return err
	}
	want := make([]byte, diskimage.IDLen)
	if err := transport.ReadFull(s.conn, want); err != nil {
		return err
	}
	rn, size, found, err := s.img.SearchID(want)
	switch {
	case err != nil:
		return s.retFDC(proto.FDCErrRead, byte(rn), 0)
	case found:
		s.logf(2, "search ID hit at sector %d", rn)
		return s.retFDC(proto.FDCErrSuccess, byte(rn), size)
	default:
		return s.retFDC(proto.FDCErrIDNotFound, 0xFF, size)
	}
}

func (s *Server) fdcWriteID(p int) error {
	size, err := s.img.SizeAt(p)
	if err != nil {
		return s.retFDC(fdcErr(err), 0, 0)
	}
	if err := s.retFDC(proto.FDCErrSuccess, byte(p), size); err != nil {
		return err
	}
	id := make([]byte, diskimage.IDLen)
	if err := transport.ReadFull(s.conn, id); err != nil {
		return err
	}
	if err := s.img.WriteID(p, id); err != nil {
		return s.retFDC(fdcErr(err), byte(p), 0)
	}
	return s.retFDC(proto.FDCErrSuccess, byte(p), size)
}

func (s *Server) fdcWriteSector(p, l int) error {
	size, err := s.img.SizeAt(p)
	if err != nil {
		return s.retFDC(fdcErr(err), 0, 0)
	}
	// Reject an out-of-range logical sector before asking for the data;
	// past the first-stage OK the client commits to sending size bytes.
	if int(size)*l > diskimage.DataLen {
		return s.retFDC(proto.FDCErrLSNHigh, byte(p), size)
	}
	if err := s.retFDC(proto.FDCErrSuccess, byte(p), size); err != nil {
		return err
	}
	data := make([]byte, size)
	if err := transport.ReadFull(s.conn, data); err != nil {
		return err
	}
	if err := s.img.WriteSector(p, l, data); err != nil {
		return s.retFDC(fdcErr(err), byte(p), 0)
	}
	return s.retFDC(proto.FDCErrSuccess, byte(p), size)
}
