package server

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"tpdd-server/internal/dirlist"
	"tpdd-server/internal/diskimage"
	"tpdd-server/internal/fname"
	"tpdd-server/internal/pathutil"
	"tpdd-server/internal/proto"
	"tpdd-server/internal/transport"
)

// Canned TPDD2 identification payloads. Some TS-DOS versions detect a
// TPDD2 by matching the whole version packet byte for byte, so these have
// to reproduce the real drive exactly.
var (
	versionPayload = []byte{
		0x41, 0x10, // firmware version
		0x01,       // sides
		0x00, 0x50, // tracks
		0x05, 0x00, // sector size
		0x02,       // sectors per track
		0x00, 0x28, // directory entries
		0x00, // max open files
		0xE1, // model code
		0x00, 0x00, 0x00,
	}
	sysinfoPayload = []byte{
		0x80, 0x13, // sector cache start address
		0x05, 0x00, // sector size
		0x10, // CPU code
		0xE1, // model code
	}
)

// serveOp reads and answers one Operation-mode request.
func (s *Server) serveOp() error {
	pkt, err := s.pkt.ReadPacket()
	if err != nil {
		if errors.Is(err, proto.ErrChecksum) {
			s.logf(1, "bad checksum on %s request", proto.CmdName(pkt.Cmd))
			if s.cfg.ReplyBadChecksum {
				return s.retStd(proto.ErrParam)
			}
			return nil // real drives stay silent
		}
		return err
	}

	canon, bank := proto.Normalize(pkt.Cmd, s.model == diskimage.TPDD2)
	if s.model == diskimage.TPDD2 {
		s.bank = int(bank)
	}
	s.logf(2, "request: %s (0x%02X) bank %d", proto.CmdName(canon), pkt.Cmd, s.bank)

	switch canon {
	case proto.ReqDirent:
		return s.reqDirent(pkt.Payload)
	case proto.ReqOpen:
		return s.reqOpen(pkt.Payload)
	case proto.ReqClose:
		return s.reqClose()
	case proto.ReqRead:
		return s.reqRead()
	case proto.ReqWrite:
		return s.reqWrite(pkt.Payload)
	case proto.ReqDelete:
		return s.reqDelete()
	case proto.ReqFormat:
		return s.reqFormat()
	case proto.ReqStatus:
		return s.retStd(proto.ErrSuccess)
	case proto.ReqFDC:
		return s.reqFDC()
	case proto.ReqCondition:
		return s.reqCondition()
	case proto.ReqRename:
		return s.reqRename(pkt.Payload)
	case proto.ReqVersion:
		return s.retVersion()
	case proto.ReqCache:
		return s.reqCache(pkt.Payload)
	case proto.ReqMemRead:
		return s.reqMemRead(pkt.Payload)
	case proto.ReqMemWrite:
		return s.reqMemWrite(pkt.Payload)
	case proto.ReqSysinfo:
		return s.retSysinfo()
	case proto.ReqExec:
		return s.reqExec(pkt.Payload)
	default:
		// No reply; a real drive ignores requests it does not know.
		s.logf(1, "unknown request 0x%02X", pkt.Cmd)
		return nil
	}
}

// retStd sends the standard single-status reply.
func (s *Server) retStd(e byte) error {
	if e != proto.ErrSuccess {
		s.logf(1, "error reply: %s (0x%02X)", proto.StatusName(e), e)
	}
	return s.send(proto.Marshal(proto.RetStd, []byte{e}))
}

// opErr maps a media error onto the Operation-mode status byte.
func opErr(err error) byte {
	switch {
	case errors.Is(err, diskimage.ErrNoDisk):
		return proto.ErrNoDisk
	case errors.Is(err, diskimage.ErrWriteProtected):
		return proto.ErrWriteProtect
	case errors.Is(err, diskimage.ErrRecord):
		return proto.ErrDefective
	default:
		return proto.ErrReadTimeout
	}
}

// ---- directory entries ----

func (s *Server) reqDirent(p []byte) error {
	if len(p) < 26 {
		return s.retStd(proto.ErrParam)
	}
	// The action byte decides first: TS-DOS sends get-first/get-next with
	// junk left in the name and attribute fields.
	switch p[25] {
	case proto.DirentSetName:
		return s.direntSetName(p)
	case proto.DirentGetFirst:
		return s.direntGetFirst()
	case proto.DirentGetNext:
		return s.retDirent(s.list.Next())
	case proto.DirentGetPrev:
		return s.retDirent(s.list.Prev())
	case proto.DirentClose:
		return nil // no reply
	default:
		return s.retStd(proto.ErrParam)
	}
}

func (s *Server) direntSetName(p []byte) error {
	// Refresh before every lookup: clients open files without listing
	// first, and the share can change under us between requests.
	s.updateFileList()

	raw := p[:proto.FilenameLen]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	name := strings.TrimRight(string(raw), " ")
	attr := p[24]

	if e := s.list.Find(name); e != nil {
		s.curFile = e
		s.logf(2, "exists: %q (%d bytes)", e.LocalName, e.Size)
		return s.retDirent(e)
	}

	if s.profile.MagicFiles && isMagicFile(name) {
		// Loader files resolve from the share root or the lib dir, so
		// UR2/TSLOAD can pull DOS100.CO from any directory.
		for _, dir := range []string{s.bankRoot(), s.cfg.LibDir} {
			if dir == "" {
				continue
			}
			full := filepath.Join(dir, name)
			st, err := os.Stat(full)
			if err != nil || !st.Mode().IsRegular() {
				continue
			}
			size := st.Size()
			if size > 0xFFFF {
				size = 0
			}
			e := &dirlist.Entry{
				LocalName:  full,
				ClientName: s.tr.Translate(name, false),
				Attr:       attr,
				Size:       uint16(size),
			}
			s.curFile = e
			s.logf(2, "loader file: %q <- %q", name, full)
			return s.retDirent(e)
		}
		s.curFile = nil
		return s.retDirent(nil)
	}

	// Unknown name: remember it as the pending file (or directory) a
	// following open may create.
	isDir := false
	if s.profile.BaseLen > 0 && len(name) >= s.profile.BaseLen+3 &&
		name[s.profile.BaseLen+1:s.profile.BaseLen+3] == fname.DirLabel {
		isDir = true
	}
	e := s.newEntry(s.tr.Collapse(name), attr, 0, isDir)
	s.curFile = &e
	if isDir {
		s.logf(2, "new directory: %q", e.LocalName)
	} else {
		s.logf(2, "new file: %q", e.LocalName)
	}
	return s.retDirent(nil)
}

func (s *Server) direntGetFirst() error {
	s.updateFileList()
	err := s.retDirent(s.list.First())
	s.inDME = 0 // listing finished the DME handshake; see reqFDC
	return err
}

// ---- file access ----

func (s *Server) reqOpen(p []byte) error {
	if len(p) < 1 {
		return s.retStd(proto.ErrParam)
	}
	mode := p[0]

	// At most one file is open at a time, like the single FCB in the
	// drive firmware.
	if s.file != nil {
		s.file.Close()
		s.file = nil
		s.openMode = proto.OpenNone
	}

	cur := s.curFile
	switch mode {
	case proto.OpenWrite:
		if cur == nil {
			return s.retStd(proto.ErrCmdSeq)
		}
		if cur.Dir {
			if err := os.Mkdir(s.path(cur.LocalName), 0o777); err != nil {
				return s.retStd(proto.ErrFmtMismatch)
			}
			return s.retStd(proto.ErrSuccess)
		}
		f, err := os.OpenFile(s.path(cur.LocalName), os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_EXCL, 0o666)
		if err != nil {
			return s.retStd(proto.ErrFmtMismatch)
		}
		s.file, s.openMode = f, mode
		s.attrs.Set(s.path(cur.LocalName), cur.Attr)
		s.logf(1, "open for write: %q (%c)", cur.LocalName, cur.Attr)
		return s.retStd(proto.ErrSuccess)

	case proto.OpenAppend:
		if cur == nil {
			return s.retStd(proto.ErrFmtMismatch)
		}
		f, err := os.OpenFile(s.path(cur.LocalName), os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return s.retStd(proto.ErrFmtMismatch)
		}
		s.file, s.openMode = f, mode
		s.attrs.Set(s.path(cur.LocalName), cur.Attr)
		s.logf(1, "open for append: %q (%c)", cur.LocalName, cur.Attr)
		return s.retStd(proto.ErrSuccess)

	case proto.OpenRead:
		if cur == nil {
			return s.retStd(proto.ErrNoFile)
		}
		if cur.Dir {
			return s.openDirectory(cur)
		}
		f, err := os.Open(s.path(cur.LocalName))
		if err != nil {
			return s.retStd(proto.ErrNoFile)
		}
		s.file, s.openMode = f, mode
		cur.Attr = s.attrs.Get(s.path(cur.LocalName))
		s.logf(1, "open for read: %q (%c)", cur.LocalName, cur.Attr)
		return s.retStd(proto.ErrSuccess)

	default:
		s.logf(1, "unrecognized open mode 0x%02X", mode)
		return s.retStd(proto.ErrParam)
	}
}

// openDirectory is "open for read" on a directory entry: it navigates.
func (s *Server) openDirectory(cur *dirlist.Entry) error {
	var failed bool
	if cur.LocalName == ".." {
		if up := filepath.Dir(s.cwd); s.dirDepth > 0 && pathutil.Within(s.bankRoot(), up) {
			s.cwd = up
			s.dirDepth--
		}
	} else {
		p := s.path(cur.LocalName)
		if st, err := os.Stat(p); err == nil && st.IsDir() {
			s.cwd = p
			s.dirDepth++
		} else {
			failed = true
		}
	}
	s.updateDMELabel()
	if failed {
		return s.retStd(proto.ErrFmtMismatch)
	}
	s.logf(1, "changed dir: %s", s.cwd)
	return s.retStd(proto.ErrSuccess)
}

func (s *Server) reqClose() error {
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	s.openMode = proto.OpenNone
	return s.retStd(proto.ErrSuccess)
}

func (s *Server) reqRead() error {
	if s.file == nil {
		return s.retStd(proto.ErrCmdSeq)
	}
	if s.openMode != proto.OpenRead {
		return s.retStd(proto.ErrFmtMismatch)
	}
	buf := make([]byte, proto.PayloadMax)
	n, _ := s.file.Read(buf)
	// EOF is a short (finally: empty) data packet, not an error reply.
	return s.send(proto.Marshal(proto.RetRead, buf[:n]))
}

func (s *Server) reqWrite(p []byte) error {
	if s.file == nil {
		return s.retStd(proto.ErrCmdSeq)
	}
	if s.openMode != proto.OpenWrite && s.openMode != proto.OpenAppend {
		return s.retStd(proto.ErrFmtMismatch)
	}
	if n, err := s.file.Write(p); err != nil || n != len(p) {
		return s.retStd(proto.ErrSectorNum)
	}
	return s.retStd(proto.ErrSuccess)
}

func (s *Server) reqDelete() error {
	cur := s.curFile
	if cur == nil {
		return s.retStd(proto.ErrCmdSeq)
	}
	// The drive reports success even for a miss; clients recover from a
	// stale listing by listing again, not from an error code.
	os.Remove(s.path(cur.LocalName))
	s.logf(1, "deleted: %q", cur.LocalName)
	return s.retStd(proto.ErrSuccess)
}

func (s *Server) reqRename(p []byte) error {
	if s.model != diskimage.TPDD2 {
		return nil
	}
	cur := s.curFile
	if cur == nil || len(p) < proto.FilenameLen {
		return s.retStd(proto.ErrCmdSeq)
	}
	raw := p[:proto.FilenameLen]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	newLocal := pathutil.CleanName(s.tr.Collapse(strings.TrimRight(string(raw), " ")))
	if err := os.Rename(s.path(cur.LocalName), filepath.Join(s.cwd, newLocal)); err != nil {
		return s.retStd(proto.ErrSectorNum)
	}
	s.logf(1, "renamed: %q -> %q", cur.LocalName, newLocal)
	return s.retStd(proto.ErrSuccess)
}

// ---- drive control ----

func (s *Server) reqFormat() error {
	s.logf(1, "operation-mode format")
	if err := s.img.FormatOperation(); err != nil {
		e := opErr(err)
		if e == proto.ErrReadTimeout {
			e = proto.ErrFmtInterrupt
		}
		return s.retStd(e)
	}
	return s.retStd(proto.ErrSuccess)
}

func (s *Server) reqCondition() error {
	if s.model != diskimage.TPDD2 {
		return nil
	}
	return s.send(proto.Marshal(proto.RetCondition, []byte{s.cond2}))
}

// reqFDC is the switch-to-FDC-mode request, which doubles as the TS-DOS
// directory-mode (DME) probe. TS-DOS sends it with a trailing CR, twice,
// before a directory listing; a real switch never has the CR. So while
// the handshake is still possible we wait briefly for one more byte, and
// only after two CR-terminated requests in a row do we answer with the
// directory label instead of changing modes. Get-first re-arms the probe.
func (s *Server) reqFDC() error {
	if s.model == diskimage.TPDD2 {
		// A real TPDD2 has no FDC mode and rejects the request; that
		// rejection is how TS-DOS decides to show its Bank button.
		return s.retStd(proto.ErrParam)
	}
	if s.inDME < 2 && s.profile.DME {
		if err := s.conn.SetReadTimeout(dmePeekTimeout); err != nil {
			return err
		}
		b, err := transport.ByteReader{C: s.conn}.ReadByte()
		if terr := s.conn.SetReadTimeout(0); terr != nil {
			return terr
		}
		switch {
		case err == nil && b == proto.FDCEol:
			s.inDME++
			s.logf(2, "DME request %d of 2", s.inDME)
		case err == nil:
			// Not a DME probe: keep the byte, it starts an FDC command.
			s.pending, s.hasPending = b, true
		case !errors.Is(err, transport.ErrTimeout):
			return err
		}
	}
	if s.inDME > 1 {
		return s.retDMECwd()
	}
	s.opMode = false
	s.logf(1, "switched to FDC mode")
	return nil // no reply, just the mode change
}

// ---- TPDD2 extensions ----

func (s *Server) retVersion() error {
	if s.model != diskimage.TPDD2 {
		return nil // a TPDD1 does not answer, which is the detection
	}
	return s.send(proto.Marshal(proto.RetVersion, versionPayload))
}

func (s *Server) retSysinfo() error {
	if s.model != diskimage.TPDD2 {
		return nil
	}
	return s.send(proto.Marshal(proto.RetSysinfo, sysinfoPayload))
}

// retCache is the short status reply shared by cache, memory-write and
// failed memory-read requests.
func (s *Server) retCache(e byte) error {
	return s.send(proto.Marshal(proto.RetCache, []byte{e}))
}

func (s *Server) reqCache(p []byte) error {
	if s.model != diskimage.TPDD2 {
		return nil
	}
	if len(p) < 5 {
		return s.retCache(proto.ErrParam)
	}
	action, track, sector := p[0], int(p[2]), int(p[4])
	g := s.img.Geometry()
	if track >= g.Tracks || sector >= g.SectorsPerTrack {
		return s.retCache(proto.ErrParam)
	}
	rn := g.LinearRecord(track, sector)

	var err error
	switch action {
	case 0: // load: disk -> cache
		s.logf(2, "cache load: track %d sector %d", track, sector)
		err = s.mem.CacheLoad(s.img, rn)
	case 1, 2: // commit / commit+verify: cache -> disk
		s.logf(2, "cache commit: track %d sector %d", track, sector)
		err = s.mem.CacheCommit(s.img, rn)
	default:
		return s.retCache(proto.ErrParam)
	}
	if err != nil {
		return s.retCache(opErr(err))
	}
	return s.retCache(proto.ErrSuccess)
}

func (s *Server) reqMemRead(p []byte) error {
	if s.model != diskimage.TPDD2 {
		return nil
	}
	if len(p) < 4 {
		return s.retCache(proto.ErrParam)
	}
	area, off, n := p[0], int(p[1])<<8|int(p[2]), int(p[3])
	data, err := s.mem.Read(area, off, n)
	if err != nil {
		s.logf(1, "mem read rejected: area %d offset 0x%04X len %d", area, off, n)
		return s.retCache(proto.ErrParam)
	}
	reply := make([]byte, 3+len(data))
	reply[0], reply[1], reply[2] = area, p[1], p[2]
	copy(reply[3:], data)
	return s.send(proto.Marshal(proto.RetMemRead, reply))
}

func (s *Server) reqMemWrite(p []byte) error {
	if s.model != diskimage.TPDD2 {
		return nil
	}
	if len(p) < 3 {
		return s.retCache(proto.ErrParam)
	}
	area, off := p[0], int(p[1])<<8|int(p[2])
	if err := s.mem.Write(area, off, p[3:]); err != nil {
		s.logf(1, "mem write rejected: area %d offset 0x%04X len %d", area, off, len(p)-3)
		return s.retCache(proto.ErrParam)
	}
	return s.retCache(proto.ErrSuccess)
}

// reqExec acknowledges the execute-program request without running any
// 6301 code: the registers echo back unchanged. The TPDD2 utility disk
// bootstrap issues this and only needs the reply shape.
func (s *Server) reqExec(p []byte) error {
	if s.model != diskimage.TPDD2 {
		return nil
	}
	if len(p) < 5 {
		return s.retCache(proto.ErrParam)
	}
	regA, regXMSB, regXLSB := p[2], p[3], p[4]
	return s.send(proto.Marshal(proto.RetExec, []byte{regA, regXMSB, regXLSB}))
}
