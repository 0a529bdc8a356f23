package server

import (
	"os"
	"path/filepath"
	"strings"

	"tpdd-server/internal/dirlist"
	"tpdd-server/internal/diskimage"
	"tpdd-server/internal/proto"
)

// localNameMax is the longest host filename the listing will show when a
// profile with fixed name lengths is active.
const localNameMax = 255

// magicFiles are loader programs that set-name resolves from the share
// root or the lib directory even while the client sits in a subdirectory.
// TS-DOS and Ultimate ROM 2 load-use-discard these on demand and expect
// them to exist "on every disk". The list is checked only after a normal
// lookup misses, so keep it short.
var magicFiles = []string{
	"DOS100.CO",
	"DOS200.CO",
	"DOSNEC.CO",
	"SAR100.CO",
	"SAR200.CO",
	"SARNEC.CO",
	"DOSM10.CO",
	"DOSK85.CO",
	"SARM10.CO",
	"SARK85.CO",
}

func isMagicFile(name string) bool {
	for _, m := range magicFiles {
		if name == m {
			return true
		}
	}
	return false
}

// newEntry builds a listing entry for one host file.
func (s *Server) newEntry(localName string, attr byte, size int64, isDir bool) dirlist.Entry {
	// Oversize files report length 0 but stay readable; REXCPM depends
	// on being able to pull a file bigger than the 16-bit size field.
	if size > 0xFFFF || isDir {
		size = 0
	}
	return dirlist.Entry{
		LocalName:  localName,
		ClientName: s.tr.Translate(localName, isDir),
		Attr:       attr,
		Size:       uint16(size),
		Dir:        isDir,
	}
}

// updateFileList rereads the current host directory into the listing.
// It runs before every set-name and get-first: clients open files without
// listing first, and other processes edit the share between requests.
func (s *Server) updateFileList() {
	if s.model == diskimage.TPDD2 {
		// Banks never nest; each bank lists its own share root.
		s.cwd = s.bankRoot()
		s.updateCondition()
	}
	s.list.Clear()

	if s.dirDepth > 0 {
		s.list.Add(s.newEntry("..", s.profile.DefaultAttr, 0, true))
	}

	ents, err := os.ReadDir(s.cwd)
	if err != nil {
		s.logf(1, "list %s: %v", s.cwd, err)
		return
	}
	for _, de := range ents {
		isDir := de.IsDir()
		if !isDir && !de.Type().IsRegular() {
			continue
		}
		// Directories appear only mid DME handshake; plain clients
		// (Floppy etc.) have no way to enter them.
		if isDir && s.inDME < 2 {
			continue
		}
		name := de.Name()
		if s.profile.BaseLen > 0 {
			if strings.HasPrefix(name, ".") {
				continue
			}
			if len(name) > localNameMax {
				continue
			}
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		attr := s.attrs.Get(s.path(name))
		s.list.Add(s.newEntry(name, attr, info.Size(), isDir))
	}
}

// retDirent sends the 31-byte directory entry reply; a nil entry answers
// "no such file" with a blank name field.
func (s *Server) retDirent(e *dirlist.Entry) error {
	p := make([]byte, proto.LenRetDirent)

	if e != nil {
		for i := 0; i < proto.FilenameLen; i++ {
			p[i] = ' '
		}
		if s.profile.BaseLen > 0 {
			// Fixed-width profiles fill base+dot+ext and pad the rest.
			w := s.profile.BaseLen + 3
			for i := 0; i < w; i++ {
				if i < len(e.ClientName) && e.ClientName[i] != 0 {
					p[i] = e.ClientName[i]
				}
			}
		} else {
			copy(p, e.ClientName)
		}
		p[24] = e.Attr
		p[25] = byte(e.Size >> 8)
		p[26] = byte(e.Size)
	}

	p[27] = byte(s.img.Geometry().Records()) // free sectors

	return s.send(proto.Marshal(proto.RetDirent, p))
}

// updateDMELabel refreshes the 6-byte directory label TS-DOS shows in its
// top-right corner. All 6 bytes always go out; a short label leaves stale
// characters on the client screen.
func (s *Server) updateDMELabel() {
	if !s.profile.DME {
		return
	}
	s.updateCondition()
	if s.dirDepth == 0 {
		s.dmeCWD = s.cfg.RootLabel
		return
	}
	base := filepath.Base(s.cwd)
	if s.profile.Upcase {
		base = strings.ToUpper(base)
	}
	if len(base) > 6 {
		base = base[:6]
	}
	s.dmeCWD = base + strings.Repeat(" ", 6-len(base))
}

// retDMECwd answers a directory-mode request with the current label. The
// packet reuses the standard-return format byte with an oversized length;
// that violation of the drive's own framing is exactly what TS-DOS keys
// on.
func (s *Server) retDMECwd() error {
	p := make([]byte, 11)
	copy(p[1:7], s.dmeCWD)
	return s.send(proto.Marshal(proto.RetStd, p))
}
