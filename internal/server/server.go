// Package server implements one TPDD drive session: it reads requests
// from the client line, keeps the drive state (mode, bank, open file,
// working directory, sector cache), and answers in whichever of the two
// protocols the drive is currently speaking.
package server

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"tpdd-server/internal/attrstore"
	"tpdd-server/internal/config"
	"tpdd-server/internal/dirlist"
	"tpdd-server/internal/diskimage"
	"tpdd-server/internal/fname"
	"tpdd-server/internal/fsops"
	"tpdd-server/internal/pathutil"
	"tpdd-server/internal/proto"
	"tpdd-server/internal/transport"
	"tpdd-server/internal/vmem"
)

// dmePeekTimeout bounds the wait for the trailing CR that distinguishes a
// TS-DOS directory request from a real switch-to-FDC command.
const dmePeekTimeout = 100 * time.Millisecond

type Server struct {
	cfg     config.Config
	profile fname.Profile
	tr      fname.Translator
	model   diskimage.Model

	conn transport.Conn
	pkt  *proto.Reader

	img *diskimage.Image
	mem *vmem.Memory

	attrs *attrstore.Store
	list  *dirlist.List

	// Drive state.
	opMode bool
	bank   int

	curFile  *dirlist.Entry
	file     *os.File
	openMode byte

	cwd      string // current host directory of the active bank
	dirDepth int

	inDME  int    // consecutive DME requests seen (2 arms the DME reply)
	dmeCWD string // 6-byte label shown by TS-DOS

	cond1 byte // TPDD1 condition flags
	cond2 byte // TPDD2 condition flags

	// pending holds a byte consumed by the DME peek that turned out to
	// be the start of a real FDC command.
	pending    byte
	hasPending bool
}

// New builds a session for one client connection.
func New(cfg config.Config, conn transport.Conn) (*Server, error) {
	profile, err := cfg.ResolveProfile()
	if err != nil {
		return nil, err
	}

	model := diskimage.Model(cfg.Model)
	var img *diskimage.Image
	if cfg.DiskImage != "" {
		img, err = diskimage.Open(cfg.DiskImage, model)
		if err != nil {
			return nil, err
		}
		model = img.Geometry().Model
	} else {
		if model == 0 {
			model = diskimage.TPDD1
		}
		img = diskimage.None(model)
	}

	root, err := filepath.Abs(cfg.SharePath(0))
	if err != nil {
		return nil, errors.Wrap(err, "share path")
	}

	tr := fname.NewTranslator(profile, cfg.Tildes)
	tr.ParentLabel = cfg.ParentLabel

	s := &Server{
		cfg:     cfg,
		profile: profile,
		tr:      tr,
		model:   model,
		conn:    conn,
		pkt:     proto.NewReader(transport.ByteReader{C: conn}),
		img:     img,
		attrs:   attrstore.New(cfg.XattrName, profile.DefaultAttr),
		list:    dirlist.New(),
		opMode:  !cfg.StartInFDCMode,
		cwd:     root,
		dmeCWD:  cfg.RootLabel,
	}
	if model == diskimage.TPDD2 {
		s.mem = vmem.New()
		if cfg.ROMFile != "" {
			if err := s.mem.LoadROM(cfg.ROMFile); err != nil {
				return nil, err
			}
		}
	}
	s.updateCondition()
	return s, nil
}

// Serve runs the request loop until the line closes.
func (s *Server) Serve() error {
	s.logf(1, "serving %s as %s, profile %s", s.shareDesc(), s.model, s.profile.ID)
	for {
		var err error
		if s.opMode {
			err = s.serveOp()
		} else {
			err = s.serveFDC()
		}
		if err != nil {
			return s.close(ignoreEOF(err))
		}
	}
}

func (s *Server) close(err error) error {
	var result error
	if err != nil {
		result = multierror.Append(result, err)
	}
	if s.file != nil {
		if cerr := s.file.Close(); cerr != nil {
			result = multierror.Append(result, cerr)
		}
		s.file = nil
	}
	if cerr := s.conn.Close(); cerr != nil {
		result = multierror.Append(result, cerr)
	}
	return result
}

func ignoreEOF(err error) error {
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	// net.Pipe and serial lines both end with plain EOF or "closed".
	if err != nil && (err.Error() == "EOF" || err.Error() == "io: read/write on closed pipe") {
		return nil
	}
	return err
}

func (s *Server) shareDesc() string {
	if s.cfg.DiskImage != "" {
		return "image " + s.cfg.DiskImage
	}
	return "dir " + s.cwd
}

// logf prints when the configured verbosity reaches level.
func (s *Server) logf(level int, format string, args ...interface{}) {
	if s.cfg.Verbose >= level {
		log.Printf(format, args...)
	}
}

func (s *Server) send(b []byte) error {
	_, err := s.conn.Write(b)
	return err
}

// bankRoot is the share directory of the active bank.
func (s *Server) bankRoot() string {
	root, err := filepath.Abs(s.cfg.SharePath(s.bank))
	if err != nil {
		return s.cfg.SharePath(s.bank)
	}
	return root
}

// updateCondition refreshes the write-protect flag from the current
// directory. Like the hardware latch, bits stick until the client reads
// them.
func (s *Server) updateCondition() {
	if !fsops.Writable(s.cwd) {
		s.cond1 |= 1 << proto.PDD1CondBitWProt
		s.cond2 |= 1 << proto.PDD2CondBitWProt
	}
}

// path resolves a listing entry name against the current directory.
// Magic entries already carry a full path; anything else is confined to
// a single component under cwd.
func (s *Server) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.cwd, pathutil.CleanName(name))
}
