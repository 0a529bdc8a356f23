package diskimage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeometry(t *testing.T) {
	g1 := GeometryFor(TPDD1)
	assert.Equal(t, 80, g1.Records())
	assert.Equal(t, int64(103440), g1.ImageSize())

	g2 := GeometryFor(TPDD2)
	assert.Equal(t, 160, g2.Records())
	assert.Equal(t, int64(206880), g2.ImageSize())

	// track/sector to linear record and back covers every record once.
	seen := make(map[int]bool)
	for tr := 0; tr < g2.Tracks; tr++ {
		for s := 0; s < g2.SectorsPerTrack; s++ {
			rn := g2.LinearRecord(tr, s)
			assert.False(t, seen[rn])
			seen[rn] = true
		}
	}
	assert.Len(t, seen, 160)
}

func TestDetectModel(t *testing.T) {
	m, ok := DetectModel("disk.pdd1", 0)
	require.True(t, ok)
	assert.Equal(t, TPDD1, m)

	m, ok = DetectModel("disk.PDD2", 0)
	require.True(t, ok)
	assert.Equal(t, TPDD2, m)

	m, ok = DetectModel("disk.img", 103440)
	require.True(t, ok)
	assert.Equal(t, TPDD1, m)

	m, ok = DetectModel("disk.img", 206880)
	require.True(t, ok)
	assert.Equal(t, TPDD2, m)

	_, ok = DetectModel("disk.img", 12345)
	assert.False(t, ok)
}

func TestLogicalSizeTable(t *testing.T) {
	want := []uint16{64, 80, 128, 256, 512, 1024, 1280}
	for code, w := range want {
		got, ok := LogicalSize(byte(code))
		require.True(t, ok)
		assert.Equal(t, w, got)
	}
	_, ok := LogicalSize(7)
	assert.False(t, ok)
}

func TestFDCFormatAndSectorRoundTrip(t *testing.T) {
	img := NewMemory(TPDD1)
	_, err := img.FormatFDC(3) // 256-byte logical sectors
	require.NoError(t, err)

	id, size, err := img.ReadID(5)
	require.NoError(t, err)
	assert.Equal(t, uint16(256), size)
	assert.Equal(t, make([]byte, IDLen), id)

	wid := []byte("filesystem99")
	require.Len(t, wid, IDLen)
	require.NoError(t, img.WriteID(5, wid))

	id, size, err = img.ReadID(5)
	require.NoError(t, err)
	assert.Equal(t, uint16(256), size)
	assert.Equal(t, wid, id)

	// Logical sectors address independent slices of the data area.
	one := make([]byte, 256)
	two := make([]byte, 256)
	for i := range one {
		one[i] = 0x11
		two[i] = 0x22
	}
	require.NoError(t, img.WriteSector(5, 1, one))
	require.NoError(t, img.WriteSector(5, 2, two))

	got, size, err := img.ReadSector(5, 2)
	require.NoError(t, err)
	assert.Equal(t, uint16(256), size)
	assert.Equal(t, two, got)

	got, _, err = img.ReadSector(5, 1)
	require.NoError(t, err)
	assert.Equal(t, one, got)

	// 256 * 6 overruns the 1280-byte data area.
	_, size, err = img.ReadSector(5, 6)
	assert.ErrorIs(t, err, ErrLogicalRange)
	assert.Equal(t, uint16(256), size)
}

func TestWriteSectorLogicalRange(t *testing.T) {
	img := NewMemory(TPDD1)
	_, err := img.FormatFDC(6) // one 1280-byte logical sector per record
	require.NoError(t, err)

	// Logical 2 of a full-size sector would land in record 1's header.
	spill := make([]byte, 1280)
	for i := range spill {
		spill[i] = 0xAA
	}
	assert.ErrorIs(t, img.WriteSector(0, 2, spill), ErrLogicalRange)

	// The neighbouring record must be untouched.
	id, size, err := img.ReadID(1)
	require.NoError(t, err)
	assert.Equal(t, uint16(1280), size)
	assert.Equal(t, make([]byte, IDLen), id)

	got, _, err := img.ReadSector(1, 1)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 1280), got)
}

func TestSearchID(t *testing.T) {
	img := NewMemory(TPDD1)
	_, err := img.FormatFDC(0)
	require.NoError(t, err)

	want := []byte("needle-here!")
	require.NoError(t, img.WriteID(42, want))

	rn, size, found, err := img.SearchID(want)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 42, rn)
	assert.Equal(t, uint16(64), size)

	_, _, found, err = img.SearchID([]byte("not-present!"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOperationFormatTPDD1(t *testing.T) {
	img := NewMemory(TPDD1)
	require.NoError(t, img.FormatOperation())

	// Record 0 carries the SMT marker and size code 0; the rest code 1.
	hdr, data, err := img.ReadRecord(0)
	require.NoError(t, err)
	assert.Equal(t, byte(0), hdr[0])
	assert.Equal(t, byte(SMTPDD1), data[SMTOffset])

	hdr, data, err = img.ReadRecord(1)
	require.NoError(t, err)
	assert.Equal(t, byte(1), hdr[0])
	assert.Equal(t, byte(0), data[SMTOffset])
}

func TestOperationFormatTPDD2(t *testing.T) {
	img := NewMemory(TPDD2)
	require.NoError(t, img.FormatOperation())

	for rn := 0; rn < 3; rn++ {
		hdr, data, err := img.ReadRecord(rn)
		require.NoError(t, err)
		assert.Equal(t, byte(0x16), hdr[0], "record %d", rn)
		if rn < 2 {
			assert.Equal(t, byte(0xFF), hdr[1])
			assert.Equal(t, byte(SMTPDD2), data[SMTOffset])
		} else {
			assert.Equal(t, byte(0), hdr[1])
			assert.Equal(t, byte(0), data[SMTOffset])
		}
	}
}

func TestRecordRoundTrip(t *testing.T) {
	img := NewMemory(TPDD2)
	require.NoError(t, img.FormatOperation())

	hdr := make([]byte, HeaderLen)
	data := make([]byte, DataLen)
	hdr[0] = 0x16
	copy(hdr[1:], "cache-commit")
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, img.WriteRecord(77, hdr, data))

	gh, gd, err := img.ReadRecord(77)
	require.NoError(t, err)
	assert.Equal(t, hdr, gh)
	assert.Equal(t, data, gd)

	// Neighbours untouched.
	_, gd, err = img.ReadRecord(76)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, DataLen), gd)
}

func TestFileBackendMediaErrors(t *testing.T) {
	// No path at all reads as an open drive door.
	img := &Image{geo: GeometryFor(TPDD1), open: fileOpener("")}
	_, _, err := img.ReadID(0)
	assert.ErrorIs(t, err, ErrNoDisk)

	// Editing a missing file is write-protected, not created.
	missing := filepath.Join(t.TempDir(), "nothere.pdd1")
	img = &Image{geo: GeometryFor(TPDD1), open: fileOpener(missing)}
	_, err = img.SizeAt(0)
	assert.ErrorIs(t, err, ErrWriteProtected)

	// A write-only format creates the file.
	require.NoError(t, img.FormatOperation())
	fi, err := os.Stat(missing)
	require.NoError(t, err)
	assert.Equal(t, GeometryFor(TPDD1).ImageSize(), fi.Size())
}

func TestOpenValidatesModelAndSize(t *testing.T) {
	dir := t.TempDir()

	p := filepath.Join(dir, "blank.pdd2")
	require.NoError(t, os.WriteFile(p, nil, 0o644))
	img, err := Open(p, 0)
	require.NoError(t, err)
	assert.Equal(t, TPDD2, img.Geometry().Model)

	// Wrong-size payload is rejected up front.
	bad := filepath.Join(dir, "short.pdd1")
	require.NoError(t, os.WriteFile(bad, make([]byte, 100), 0o644))
	_, err = Open(bad, 0)
	assert.Error(t, err)

	// Undetectable name needs an explicit model.
	_, err = Open(filepath.Join(dir, "disk.bin"), 0)
	assert.Error(t, err)
	img, err = Open(filepath.Join(dir, "disk.bin"), TPDD1)
	require.NoError(t, err)
	assert.Equal(t, 80, img.Geometry().Records())
}

func TestCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blank.pdd2")
	require.NoError(t, Create(path, TPDD2))

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, GeometryFor(TPDD2).ImageSize(), st.Size())

	img, err := Open(path, 0)
	require.NoError(t, err)
	assert.Equal(t, TPDD2, img.Geometry().Model)

	hdr, _, err := img.ReadRecord(0)
	require.NoError(t, err)
	assert.Equal(t, byte(0x16), hdr[0])

	// Re-creating over an existing image replaces it in one step.
	require.NoError(t, Create(path, TPDD2))
}
