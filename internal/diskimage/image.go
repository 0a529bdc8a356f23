package diskimage

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/xaionaro-go/bytesextra"
)

// Sentinel errors for the three media conditions a drive can report.
// Everything else surfaces as a wrapped ErrIO.
var (
	ErrNoDisk         = errors.New("no disk image loaded")
	ErrWriteProtected = errors.New("disk image is write-protected")
	ErrIO             = errors.New("disk image access error")

	// ErrRecord marks a truncated or unreadable record, distinct from
	// ErrIO because the TPDD2 cache reports it as a defective sector.
	ErrRecord = errors.New("defective record")

	// ErrLogicalRange marks a logical sector index that does not fit the
	// record's data area at its current logical size.
	ErrLogicalRange = errors.New("logical sector out of range")
)

type accessMode int

const (
	modeRead accessMode = iota // read-only
	modeEdit                   // read-write, must exist and be writable
	modeWrite                  // write-only, created on demand
)

type handle interface {
	io.ReadWriteSeeker
	io.Closer
}

// Image is one disk image. The backing store is opened per operation.
type Image struct {
	geo  Geometry
	open func(m accessMode) (handle, error)
}

// Open prepares access to the image file at path. Model 0 auto-detects
// from the filename extension or the file size; an explicit model is
// validated against the size of an existing file. The file itself may be
// absent until the first format.
func Open(path string, model Model) (*Image, error) {
	var size int64
	if path != "" {
		if fi, err := os.Stat(path); err == nil {
			if fi.IsDir() {
				return nil, errors.Errorf("%s is a directory", path)
			}
			size = fi.Size()
		}
	}

	if model == 0 {
		m, ok := DetectModel(path, size)
		if !ok {
			return nil, errors.Errorf("cannot tell drive model from %q; name it .pdd1/.pdd2 or set the model", path)
		}
		model = m
	}
	geo := GeometryFor(model)
	if err := geo.ValidateSize(size); err != nil {
		return nil, errors.Wrap(err, path)
	}

	return &Image{geo: geo, open: fileOpener(path)}, nil
}

// None returns an image with no media behind it: every access reports
// ErrNoDisk, like a drive with the door open.
func None(model Model) *Image {
	return &Image{geo: GeometryFor(model), open: fileOpener("")}
}

// NewMemory returns a zero-filled in-memory image, used by tests and by
// dummy drives that need no backing file.
func NewMemory(model Model) *Image {
	img, _ := newMemory(model)
	return img
}

func newMemory(model Model) (*Image, []byte) {
	geo := GeometryFor(model)
	buf := make([]byte, geo.ImageSize())
	return &Image{
		geo: geo,
		open: func(accessMode) (handle, error) {
			return nopCloser{bytesextra.NewReadWriteSeeker(buf)}, nil
		},
	}, buf
}

// Create writes a freshly formatted blank image file for model at path.
// The image is assembled in memory and lands atomically, so an existing
// file is never left half-formatted.
func Create(path string, model Model) error {
	img, buf := newMemory(model)
	if err := img.FormatOperation(); err != nil {
		return err
	}
	return writeFileAtomic(path, buf, 0o666)
}

func (img *Image) Geometry() Geometry { return img.geo }

// fileOpener reproduces the access semantics of a real drive door:
// no path configured reads as "no disk", a file we may not write to is
// "write-protected" (including read-write access to a missing file), and
// write-only access creates the file so a format can mint fresh media.
func fileOpener(path string) func(m accessMode) (handle, error) {
	return func(m accessMode) (handle, error) {
		if path == "" {
			return nil, ErrNoDisk
		}
		var f *os.File
		var err error
		switch m {
		case modeEdit:
			f, err = os.OpenFile(path, os.O_RDWR, 0o666)
			if os.IsPermission(err) || os.IsNotExist(err) {
				return nil, ErrWriteProtected
			}
		case modeWrite:
			f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o666)
			if os.IsPermission(err) {
				return nil, ErrWriteProtected
			}
		default:
			f, err = os.Open(path)
		}
		if err != nil {
			return nil, errors.Wrap(ErrIO, err.Error())
		}
		return f, nil
	}
}

// seekRecord opens the image and positions it at a record boundary.
func (img *Image) seekRecord(m accessMode, rn int) (handle, error) {
	h, err := img.open(m)
	if err != nil {
		return nil, err
	}
	if _, err := h.Seek(int64(rn)*RecordLen, io.SeekStart); err != nil {
		h.Close()
		return nil, errors.Wrap(ErrIO, err.Error())
	}
	return h, nil
}

// readHeader reads the 13-byte record header at the current position and
// resolves its logical-size code.
func readHeader(h io.Reader) (hdr [HeaderLen]byte, size uint16, err error) {
	if _, err = io.ReadFull(h, hdr[:]); err != nil {
		return hdr, 0, errors.Wrap(ErrIO, "record header")
	}
	size, ok := LogicalSize(hdr[0])
	if !ok {
		// Unformatted or garbage media reads back as size code 0.
		size = LogicalSizes[0]
	}
	return hdr, size, nil
}

// ReadID returns a record's 12-byte ID field and its logical sector size.
func (img *Image) ReadID(rn int) (id []byte, size uint16, err error) {
	h, err := img.seekRecord(modeRead, rn)
	if err != nil {
		return nil, 0, err
	}
	defer h.Close()

	hdr, size, err := readHeader(h)
	if err != nil {
		return nil, 0, err
	}
	return append([]byte(nil), hdr[1:]...), size, nil
}

// ReadSector returns one logical sector of a record's data area. The
// logical index counts from 1; an index that runs past the data area for
// the record's logical size fails with ErrLogicalRange carrying no data,
// and the size is reported so the caller can echo it back.
func (img *Image) ReadSector(rn, logical int) (data []byte, size uint16, err error) {
	h, err := img.seekRecord(modeRead, rn)
	if err != nil {
		return nil, 0, err
	}
	defer h.Close()

	_, size, err = readHeader(h)
	if err != nil {
		return nil, 0, err
	}
	if int(size)*logical > DataLen {
		return nil, size, ErrLogicalRange
	}

	off := int64(rn)*RecordLen + HeaderLen + int64(logical-1)*int64(size)
	if _, err := h.Seek(off, io.SeekStart); err != nil {
		return nil, 0, errors.Wrap(ErrIO, err.Error())
	}
	data = make([]byte, size)
	if _, err := io.ReadFull(h, data); err != nil {
		return nil, 0, errors.Wrap(ErrIO, "logical sector read")
	}
	return data, size, nil
}

// CheckReadable opens the media for reading and closes it again. It is
// the first stage of a two-phase read that must surface door and media
// errors before the client is asked to send anything.
func (img *Image) CheckReadable() error {
	h, err := img.open(modeRead)
	if err != nil {
		return err
	}
	return h.Close()
}

// SizeAt opens the image for editing and returns the logical sector size
// of a record. It is the first stage of a write: the media checks (door,
// write protection) happen here, before the caller commits to receiving
// data.
func (img *Image) SizeAt(rn int) (uint16, error) {
	h, err := img.seekRecord(modeEdit, rn)
	if err != nil {
		return 0, err
	}
	defer h.Close()

	_, size, err := readHeader(h)
	return size, err
}

// WriteID overwrites a record's 12-byte ID field.
func (img *Image) WriteID(rn int, id []byte) error {
	if len(id) != IDLen {
		return errors.Wrapf(ErrIO, "ID field must be %d bytes", IDLen)
	}
	h, err := img.open(modeEdit)
	if err != nil {
		return err
	}
	defer h.Close()

	if _, err := h.Seek(int64(rn)*RecordLen+1, io.SeekStart); err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	if _, err := h.Write(id); err != nil {
		return errors.Wrap(ErrIO, "ID write")
	}
	return nil
}

// WriteSector overwrites one logical sector of a record's data area with
// data, which must be exactly the record's logical size (see SizeAt). A
// logical index that would spill past the data area into the next record
// fails with ErrLogicalRange before anything is written.
func (img *Image) WriteSector(rn, logical int, data []byte) error {
	h, err := img.seekRecord(modeEdit, rn)
	if err != nil {
		return err
	}
	defer h.Close()

	_, size, err := readHeader(h)
	if err != nil {
		return err
	}
	if int(size)*logical > DataLen {
		return ErrLogicalRange
	}

	off := int64(rn)*RecordLen + HeaderLen + int64(logical-1)*int64(size)
	if _, err := h.Seek(off, io.SeekStart); err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	if _, err := h.Write(data); err != nil {
		return errors.Wrap(ErrIO, "logical sector write")
	}
	return nil
}

// SearchID scans every record for an exact 12-byte ID match. It reports
// the matching record and its logical size, or found=false with the last
// record's size, mirroring a drive's head-to-end seek.
func (img *Image) SearchID(want []byte) (rn int, size uint16, found bool, err error) {
	h, err := img.seekRecord(modeRead, 0)
	if err != nil {
		return 0, 0, false, err
	}
	defer h.Close()

	rec := make([]byte, RecordLen)
	for rn = 0; rn < img.geo.Records(); rn++ {
		if _, err := io.ReadFull(h, rec); err != nil {
			return rn, 0, false, errors.Wrap(ErrIO, "record scan")
		}
		size, _ = LogicalSize(rec[0])
		if string(rec[1:HeaderLen]) == string(want) {
			return rn, size, true, nil
		}
	}
	return rn, size, false, nil
}

// FormatFDC writes every record as zeroes under the given logical-size
// code. On failure it reports the record that could not be written.
func (img *Image) FormatFDC(sizeCode byte) (failedAt int, err error) {
	h, err := img.seekRecord(modeEdit, 0)
	if err != nil {
		return 0, err
	}
	defer h.Close()

	rec := make([]byte, RecordLen)
	rec[0] = sizeCode
	for rn := 0; rn < img.geo.Records(); rn++ {
		if _, err := h.Write(rec); err != nil {
			return rn, errors.Wrap(ErrIO, "format write")
		}
	}
	return 0, nil
}

// FormatOperation writes a fresh Operation-mode filesystem.
//
// A real TPDD1 format leaves record 0 with size code 0 plus the SMT
// marker byte (the SMT itself counts as data in sector 0) and every other
// record with size code 1. A TPDD2 format stamps 0x16 into every record's
// size-code byte and marks the first two records with a raw SMT
// signature. Neither layout matters to this server's own filesystem
// emulation, but dump tools compare images byte for byte.
func (img *Image) FormatOperation() error {
	h, err := img.open(modeWrite)
	if err != nil {
		return err
	}
	defer h.Close()

	if _, err := h.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	rec := make([]byte, RecordLen)
	for rn := 0; rn < img.geo.Records(); rn++ {
		for i := range rec {
			rec[i] = 0
		}
		if img.geo.Model == TPDD2 {
			rec[0] = 0x16
			if rn < 2 {
				rec[1] = 0xFF
				rec[HeaderLen+SMTOffset] = SMTPDD2
			}
		} else if rn == 0 {
			rec[HeaderLen+SMTOffset] = SMTPDD1
		} else {
			rec[0] = 1
		}
		if _, err := h.Write(rec); err != nil {
			return errors.Wrap(ErrIO, "format write")
		}
	}
	return nil
}

// ReadRecord loads a whole record, header and data, for the TPDD2 sector
// cache. Short media reads come back as ErrRecord.
func (img *Image) ReadRecord(rn int) (hdr, data []byte, err error) {
	h, err := img.seekRecord(modeRead, rn)
	if err != nil {
		return nil, nil, err
	}
	defer h.Close()

	hdr = make([]byte, HeaderLen)
	data = make([]byte, DataLen)
	if _, err := io.ReadFull(h, hdr); err != nil {
		return nil, nil, ErrRecord
	}
	if _, err := io.ReadFull(h, data); err != nil {
		return nil, nil, ErrRecord
	}
	return hdr, data, nil
}

// WriteRecord commits a whole record from the TPDD2 sector cache.
func (img *Image) WriteRecord(rn int, hdr, data []byte) error {
	if len(hdr) != HeaderLen || len(data) != DataLen {
		return ErrRecord
	}
	h, err := img.seekRecord(modeWrite, rn)
	if err != nil {
		return err
	}
	defer h.Close()

	if _, err := h.Write(hdr); err != nil {
		return ErrRecord
	}
	if _, err := h.Write(data); err != nil {
		return ErrRecord
	}
	return nil
}

type nopCloser struct{ io.ReadWriteSeeker }

func (nopCloser) Close() error { return nil }
