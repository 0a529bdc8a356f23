// Package diskimage provides raw sector access to TPDD1 and TPDD2 disk
// image files.
//
// An image is a flat array of physical records. Each record is a 1-byte
// logical-size code, a 12-byte ID field, and a 1280-byte data area. The
// data area is addressed either whole (Operation mode) or as 1..20
// logical sub-sectors whose size comes from the record's size code
// (FDC mode).
//
// Every operation opens the backing file fresh, seeks, works, and closes.
// There is no persistent handle and no lock: media can be swapped or
// edited between operations, same as a physical drive.
package diskimage

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	IDLen     = 12              // ID field bytes per record
	HeaderLen = 1 + IDLen       // size code + ID
	DataLen   = 1280            // data area bytes per record
	RecordLen = HeaderLen + DataLen

	// Offset of the sector-management-table byte inside record 0's data
	// area, written by an Operation-mode format.
	SMTOffset = 1240
	SMTPDD1   = 0x80
	SMTPDD2   = 0x80
)

// LogicalSizes maps a record's logical-size code to the logical sector
// byte length.
var LogicalSizes = [7]uint16{64, 80, 128, 256, 512, 1024, 1280}

// LogicalSize returns the byte length for a size code, or false for a
// code outside the table.
func LogicalSize(code byte) (uint16, bool) {
	if int(code) >= len(LogicalSizes) {
		return 0, false
	}
	return LogicalSizes[code], true
}

// Model selects the emulated drive hardware.
type Model int

const (
	TPDD1 Model = 1
	TPDD2 Model = 2
)

func (m Model) String() string {
	if m == TPDD2 {
		return "tpdd2"
	}
	return "tpdd1"
}

// Geometry is the record layout of one drive model.
type Geometry struct {
	Model           Model
	Tracks          int
	SectorsPerTrack int
}

var (
	geomTPDD1 = Geometry{Model: TPDD1, Tracks: 80, SectorsPerTrack: 1}
	geomTPDD2 = Geometry{Model: TPDD2, Tracks: 80, SectorsPerTrack: 2}
)

// GeometryFor returns the layout of a drive model.
func GeometryFor(m Model) Geometry {
	if m == TPDD2 {
		return geomTPDD2
	}
	return geomTPDD1
}

// Records is the total physical record count.
func (g Geometry) Records() int { return g.Tracks * g.SectorsPerTrack }

// ImageSize is the byte size of a complete image file.
func (g Geometry) ImageSize() int64 { return int64(g.Records()) * RecordLen }

// LinearRecord converts a track/sector pair to the linear record number.
func (g Geometry) LinearRecord(track, sector int) int {
	return track*g.SectorsPerTrack + sector
}

// DetectModel guesses the drive model of an image file from its extension
// (".pdd1" / ".pdd2") or, failing that, its exact size.
func DetectModel(path string, size int64) (Model, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdd1":
		return TPDD1, true
	case ".pdd2":
		return TPDD2, true
	}
	switch size {
	case geomTPDD1.ImageSize():
		return TPDD1, true
	case geomTPDD2.ImageSize():
		return TPDD2, true
	}
	return 0, false
}

// ValidateSize checks a nonzero file size against the geometry. Zero is
// always fine: a fresh file gets its full size on the first format.
func (g Geometry) ValidateSize(size int64) error {
	if size != 0 && size != g.ImageSize() {
		return fmt.Errorf("image size %d does not match %s geometry (%d)",
			size, g.Model, g.ImageSize())
	}
	return nil
}
