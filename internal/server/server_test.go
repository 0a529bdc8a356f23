package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tpdd-server/internal/config"
	"tpdd-server/internal/diskimage"
	"tpdd-server/internal/proto"
	"tpdd-server/internal/transport"
)

// startServer runs a drive session against one end of an in-memory pipe
// and hands the test the other end.
func startServer(t *testing.T, mutate func(*config.Config)) (transport.Conn, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.SharePaths = []string{dir}
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, cfg.Validate())

	drive, client := transport.Pipe()
	s, err := New(cfg, drive)
	require.NoError(t, err)
	go func() { _ = s.Serve() }()

	t.Cleanup(func() { client.Close() })
	return client, dir
}

func opRequest(t *testing.T, c transport.Conn, cmd byte, payload []byte) {
	t.Helper()
	msg := append([]byte{proto.SyncByte, proto.SyncByte}, proto.Marshal(cmd, payload)...)
	_, err := c.Write(msg)
	require.NoError(t, err)
}

func opReply(t *testing.T, c transport.Conn) (byte, []byte) {
	t.Helper()
	var hdr [2]byte
	require.NoError(t, transport.ReadFull(c, hdr[:]))
	payload := make([]byte, int(hdr[1]))
	require.NoError(t, transport.ReadFull(c, payload))
	var sum [1]byte
	require.NoError(t, transport.ReadFull(c, sum[:]))
	require.Equal(t, proto.Checksum(hdr[0], hdr[1], payload), sum[0], "reply checksum")
	return hdr[0], payload
}

func requireStd(t *testing.T, c transport.Conn, want byte) {
	t.Helper()
	cmd, p := opReply(t, c)
	require.Equal(t, byte(proto.RetStd), cmd)
	require.Len(t, p, 1)
	require.Equal(t, want, p[0])
}

// direntReq builds the 26-byte directory-entry request payload the way
// TS-DOS does: space-padded name, attribute, action.
func direntReq(name string, attr, action byte) []byte {
	p := make([]byte, 26)
	for i := 0; i < proto.FilenameLen; i++ {
		p[i] = ' '
	}
	copy(p, name)
	p[24] = attr
	p[25] = action
	return p
}

func direntReply(t *testing.T, c transport.Conn) []byte {
	t.Helper()
	cmd, p := opReply(t, c)
	require.Equal(t, byte(proto.RetDirent), cmd)
	require.Len(t, p, proto.LenRetDirent)
	return p
}

func TestDirectoryListing(t *testing.T) {
	c, dir := startServer(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "APP.BA"), []byte("10 PRINT"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "HELLO.DO"), []byte("hello world"), 0o644))

	opRequest(t, c, proto.ReqDirent, direntReq("", 0, proto.DirentGetFirst))
	p := direntReply(t, c)
	assert.Equal(t, "APP   .BA", string(p[:9]))
	assert.Equal(t, byte('F'), p[24])
	assert.Equal(t, 8, int(p[25])<<8|int(p[26]))
	assert.Equal(t, byte(80), p[27], "free sectors")

	opRequest(t, c, proto.ReqDirent, direntReq("", 0, proto.DirentGetNext))
	p = direntReply(t, c)
	assert.Equal(t, "HELLO .DO", string(p[:9]))
	assert.Equal(t, 11, int(p[25])<<8|int(p[26]))

	// End of listing is a blank entry, not an error.
	opRequest(t, c, proto.ReqDirent, direntReq("", 0, proto.DirentGetNext))
	p = direntReply(t, c)
	assert.Equal(t, byte(0), p[0])

	opRequest(t, c, proto.ReqDirent, direntReq("", 0, proto.DirentGetPrev))
	p = direntReply(t, c)
	assert.Equal(t, "HELLO .DO", string(p[:9]))
}

func TestFileWriteReadDelete(t *testing.T) {
	c, dir := startServer(t, nil)

	// A name the share has never seen answers blank but arms the open.
	opRequest(t, c, proto.ReqDirent, direntReq("DATA  .DO", 'F', proto.DirentSetName))
	p := direntReply(t, c)
	require.Equal(t, byte(0), p[0])

	opRequest(t, c, proto.ReqOpen, []byte{proto.OpenWrite})
	requireStd(t, c, proto.ErrSuccess)
	opRequest(t, c, proto.ReqWrite, []byte("hello"))
	requireStd(t, c, proto.ErrSuccess)
	opRequest(t, c, proto.ReqWrite, []byte(" tpdd"))
	requireStd(t, c, proto.ErrSuccess)
	opRequest(t, c, proto.ReqClose, nil)
	requireStd(t, c, proto.ErrSuccess)

	b, err := os.ReadFile(filepath.Join(dir, "DATA.DO"))
	require.NoError(t, err)
	assert.Equal(t, "hello tpdd", string(b))

	opRequest(t, c, proto.ReqDirent, direntReq("DATA  .DO", 'F', proto.DirentSetName))
	p = direntReply(t, c)
	require.Equal(t, "DATA  .DO", string(p[:9]))
	require.Equal(t, 10, int(p[25])<<8|int(p[26]))

	opRequest(t, c, proto.ReqOpen, []byte{proto.OpenRead})
	requireStd(t, c, proto.ErrSuccess)
	opRequest(t, c, proto.ReqRead, nil)
	cmd, data := opReply(t, c)
	require.Equal(t, byte(proto.RetRead), cmd)
	assert.Equal(t, "hello tpdd", string(data))
	opRequest(t, c, proto.ReqRead, nil)
	cmd, data = opReply(t, c)
	require.Equal(t, byte(proto.RetRead), cmd)
	assert.Empty(t, data)
	opRequest(t, c, proto.ReqClose, nil)
	requireStd(t, c, proto.ErrSuccess)

	opRequest(t, c, proto.ReqDelete, nil)
	requireStd(t, c, proto.ErrSuccess)
	_, err = os.Stat(filepath.Join(dir, "DATA.DO"))
	assert.True(t, os.IsNotExist(err))
}

func TestOpenAppend(t *testing.T) {
	c, dir := startServer(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "LOG.DO"), []byte("one"), 0o644))

	opRequest(t, c, proto.ReqDirent, direntReq("LOG   .DO", 'F', proto.DirentSetName))
	direntReply(t, c)
	opRequest(t, c, proto.ReqOpen, []byte{proto.OpenAppend})
	requireStd(t, c, proto.ErrSuccess)
	opRequest(t, c, proto.ReqWrite, []byte("two"))
	requireStd(t, c, proto.ErrSuccess)
	opRequest(t, c, proto.ReqClose, nil)
	requireStd(t, c, proto.ErrSuccess)

	b, err := os.ReadFile(filepath.Join(dir, "LOG.DO"))
	require.NoError(t, err)
	assert.Equal(t, "onetwo", string(b))
}

func TestReadWithoutOpen(t *testing.T) {
	c, _ := startServer(t, nil)
	opRequest(t, c, proto.ReqRead, nil)
	requireStd(t, c, proto.ErrCmdSeq)
}

func TestOpenMissingFile(t *testing.T) {
	c, _ := startServer(t, nil)
	opRequest(t, c, proto.ReqDirent, direntReq("NOPE  .DO", 'F', proto.DirentSetName))
	direntReply(t, c)
	opRequest(t, c, proto.ReqOpen, []byte{proto.OpenRead})
	requireStd(t, c, proto.ErrNoFile)
}

func TestSubdirectoryNavigation(t *testing.T) {
	c, dir := startServer(t, nil)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "SUB"), 0o755))

	// Open-for-read on a "<>" name enters the directory.
	opRequest(t, c, proto.ReqDirent, direntReq("SUB   .<>", 'F', proto.DirentSetName))
	direntReply(t, c)
	opRequest(t, c, proto.ReqOpen, []byte{proto.OpenRead})
	requireStd(t, c, proto.ErrSuccess)

	opRequest(t, c, proto.ReqDirent, direntReq("IN    .DO", 'F', proto.DirentSetName))
	direntReply(t, c)
	opRequest(t, c, proto.ReqOpen, []byte{proto.OpenWrite})
	requireStd(t, c, proto.ErrSuccess)
	opRequest(t, c, proto.ReqWrite, []byte("x"))
	requireStd(t, c, proto.ErrSuccess)
	opRequest(t, c, proto.ReqClose, nil)
	requireStd(t, c, proto.ErrSuccess)

	_, err := os.Stat(filepath.Join(dir, "SUB", "IN.DO"))
	require.NoError(t, err)

	// ".." climbs back out and stops at the share root.
	opRequest(t, c, proto.ReqDirent, direntReq("^     .<>", 'F', proto.DirentSetName))
	direntReply(t, c)
	opRequest(t, c, proto.ReqOpen, []byte{proto.OpenRead})
	requireStd(t, c, proto.ErrSuccess)
}

func TestMkdirViaOpenWrite(t *testing.T) {
	c, dir := startServer(t, nil)
	opRequest(t, c, proto.ReqDirent, direntReq("NEWDIR.<>", 'F', proto.DirentSetName))
	p := direntReply(t, c)
	require.Equal(t, byte(0), p[0])
	opRequest(t, c, proto.ReqOpen, []byte{proto.OpenWrite})
	requireStd(t, c, proto.ErrSuccess)

	st, err := os.Stat(filepath.Join(dir, "NEWDIR"))
	require.NoError(t, err)
	assert.True(t, st.IsDir())
}

func TestMagicLoaderFile(t *testing.T) {
	lib := t.TempDir()
	body := make([]byte, 100)
	require.NoError(t, os.WriteFile(filepath.Join(lib, "DOS100.CO"), body, 0o644))

	c, _ := startServer(t, func(cfg *config.Config) { cfg.LibDir = lib })

	opRequest(t, c, proto.ReqDirent, direntReq("DOS100.CO", 'F', proto.DirentSetName))
	p := direntReply(t, c)
	require.Equal(t, "DOS100.CO", string(p[:9]))
	require.Equal(t, 100, int(p[25])<<8|int(p[26]))

	opRequest(t, c, proto.ReqOpen, []byte{proto.OpenRead})
	requireStd(t, c, proto.ErrSuccess)
	opRequest(t, c, proto.ReqRead, nil)
	cmd, data := opReply(t, c)
	require.Equal(t, byte(proto.RetRead), cmd)
	assert.Len(t, data, 100)
	opRequest(t, c, proto.ReqClose, nil)
	requireStd(t, c, proto.ErrSuccess)

	// The last name of the loader table resolves too.
	require.NoError(t, os.WriteFile(filepath.Join(lib, "SARK85.CO"), body, 0o644))
	opRequest(t, c, proto.ReqDirent, direntReq("SARK85.CO", 'F', proto.DirentSetName))
	p = direntReply(t, c)
	require.Equal(t, "SARK85.CO", string(p[:9]))
	require.Equal(t, 100, int(p[25])<<8|int(p[26]))
}

func TestBadChecksumStaysSilent(t *testing.T) {
	c, _ := startServer(t, nil)

	// Corrupt checksum gets no reply; the next good request still works.
	_, err := c.Write([]byte{proto.SyncByte, proto.SyncByte, proto.ReqStatus, 0x00, 0x00})
	require.NoError(t, err)
	opRequest(t, c, proto.ReqStatus, nil)
	requireStd(t, c, proto.ErrSuccess)
}

func TestBadChecksumReplyOption(t *testing.T) {
	c, _ := startServer(t, func(cfg *config.Config) { cfg.ReplyBadChecksum = true })
	_, err := c.Write([]byte{proto.SyncByte, proto.SyncByte, proto.ReqStatus, 0x00, 0x00})
	require.NoError(t, err)
	requireStd(t, c, proto.ErrParam)
}

// fdcRequest sends one ASCII FDC command line.
func fdcRequest(t *testing.T, c transport.Conn, line string) {
	t.Helper()
	_, err := c.Write(append([]byte(line), proto.FDCEol))
	require.NoError(t, err)
}

func fdcReply(t *testing.T, c transport.Conn) string {
	t.Helper()
	b := make([]byte, 8)
	require.NoError(t, transport.ReadFull(c, b))
	return string(b)
}

// switchToFDC sends the mode-change request without a trailing CR and
// waits out the DME peek.
func switchToFDC(t *testing.T, c transport.Conn) {
	t.Helper()
	opRequest(t, c, proto.ReqFDC, nil)
	time.Sleep(dmePeekTimeout + 50*time.Millisecond)
}

func TestFDCSectorAccess(t *testing.T) {
	img := filepath.Join(t.TempDir(), "disk.pdd1")
	require.NoError(t, os.WriteFile(img, make([]byte, diskimage.GeometryFor(diskimage.TPDD1).ImageSize()), 0o644))

	c, _ := startServer(t, func(cfg *config.Config) {
		cfg.SharePaths = nil
		cfg.DiskImage = img
	})
	switchToFDC(t, c)

	fdcRequest(t, c, "F0")
	require.Equal(t, "00000000", fdcReply(t, c))

	// Two-stage write: status with the logical size, then the data.
	fdcRequest(t, c, "W5,1")
	require.Equal(t, "00050040", fdcReply(t, c))
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}
	_, err := c.Write(data)
	require.NoError(t, err)
	require.Equal(t, "00050040", fdcReply(t, c))

	// Two-stage read: status, CR to confirm, then the data.
	fdcRequest(t, c, "R5,1")
	require.Equal(t, "00050040", fdcReply(t, c))
	_, err = c.Write([]byte{proto.FDCEol})
	require.NoError(t, err)
	got := make([]byte, 64)
	require.NoError(t, transport.ReadFull(c, got))
	assert.Equal(t, data, got)

	// ID write and search.
	fdcRequest(t, c, "B5")
	require.Equal(t, "00050040", fdcReply(t, c))
	id := []byte("sector-five!")
	require.Len(t, id, diskimage.IDLen)
	_, err = c.Write(id)
	require.NoError(t, err)
	require.Equal(t, "00050040", fdcReply(t, c))

	fdcRequest(t, c, "S")
	require.Equal(t, "00000000", fdcReply(t, c))
	_, err = c.Write(id)
	require.NoError(t, err)
	require.Equal(t, "00050040", fdcReply(t, c))

	fdcRequest(t, c, "A5")
	require.Equal(t, "00050040", fdcReply(t, c))
	_, err = c.Write([]byte{proto.FDCEol})
	require.NoError(t, err)
	gotID := make([]byte, diskimage.IDLen)
	require.NoError(t, transport.ReadFull(c, gotID))
	assert.Equal(t, id, gotID)

	// A write whose logical span runs past the data area is refused at
	// the first stage; no data bytes are requested.
	fdcRequest(t, c, "F6")
	require.Equal(t, "00000000", fdcReply(t, c))
	fdcRequest(t, c, "W0,2")
	require.Equal(t, "12000500", fdcReply(t, c))

	// M1 returns to Operation mode silently.
	fdcRequest(t, c, "M1")
	opRequest(t, c, proto.ReqStatus, nil)
	requireStd(t, c, proto.ErrSuccess)
}

func TestFDCValidation(t *testing.T) {
	c, _ := startServer(t, nil)
	switchToFDC(t, c)

	fdcRequest(t, c, "R99")
	assert.Equal(t, "13FF0000", fdcReply(t, c))
	fdcRequest(t, c, "R5,0")
	assert.Equal(t, "11050000", fdcReply(t, c))
	fdcRequest(t, c, "R5,21")
	assert.Equal(t, "12050000", fdcReply(t, c))

	// A bare CR draws the invalid-command reply Sardine keys on.
	fdcRequest(t, c, "")
	assert.Equal(t, "C1000000", fdcReply(t, c))

	// No image behind the share means no disk.
	fdcRequest(t, c, "R0,1")
	assert.Equal(t, "D1000000", fdcReply(t, c))
}

func TestDMEHandshake(t *testing.T) {
	c, _ := startServer(t, nil)

	// First CR-terminated request is only counted; the drive still drops
	// to FDC mode.
	msg := append([]byte{proto.SyncByte, proto.SyncByte}, proto.Marshal(proto.ReqFDC, nil)...)
	_, err := c.Write(append(msg, proto.FDCEol))
	require.NoError(t, err)

	// Climb back to Operation mode; the second request completes the
	// handshake and gets the directory label instead of a mode change.
	fdcRequest(t, c, "M1")
	_, err = c.Write(append(msg, proto.FDCEol))
	require.NoError(t, err)

	cmd, p := opReply(t, c)
	require.Equal(t, byte(proto.RetStd), cmd)
	require.Len(t, p, int(proto.LenRetDME))
	assert.Equal(t, "0:    ", string(p[1:7]))
}

func TestTPDD2Identification(t *testing.T) {
	c, _ := startServer(t, func(cfg *config.Config) { cfg.Model = 2 })

	opRequest(t, c, proto.ReqVersion, nil)
	cmd, p := opReply(t, c)
	require.Equal(t, byte(proto.RetVersion), cmd)
	assert.Equal(t, versionPayload, p)

	opRequest(t, c, proto.ReqSysinfo, nil)
	cmd, p = opReply(t, c)
	require.Equal(t, byte(proto.RetSysinfo), cmd)
	assert.Equal(t, sysinfoPayload, p)

	opRequest(t, c, proto.ReqCondition, nil)
	cmd, p = opReply(t, c)
	require.Equal(t, byte(proto.RetCondition), cmd)
	require.Len(t, p, 1)
	assert.Equal(t, byte(0), p[0])

	// A TPDD2 rejects the FDC-mode request outright.
	opRequest(t, c, proto.ReqFDC, nil)
	requireStd(t, c, proto.ErrParam)
}

func TestTPDD2Banks(t *testing.T) {
	dir1 := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir1, "B.BA"), []byte("bank one"), 0o644))

	c, dir0 := startServer(t, func(cfg *config.Config) {
		cfg.Model = 2
		cfg.SharePaths = append(cfg.SharePaths, dir1)
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir0, "A.BA"), []byte("bank zero"), 0o644))

	opRequest(t, c, proto.ReqDirent, direntReq("", 0, proto.DirentGetFirst))
	p := direntReply(t, c)
	assert.Equal(t, "A     .BA", string(p[:9]))
	assert.Equal(t, byte(160), p[27])

	// Bit 6 of the command byte addresses the second bank.
	opRequest(t, c, proto.ReqDirent|proto.BankBit, direntReq("", 0, proto.DirentGetFirst))
	p = direntReply(t, c)
	assert.Equal(t, "B     .BA", string(p[:9]))
}

func TestTPDD2SectorCache(t *testing.T) {
	img := filepath.Join(t.TempDir(), "disk.pdd2")
	require.NoError(t, os.WriteFile(img, make([]byte, diskimage.GeometryFor(diskimage.TPDD2).ImageSize()), 0o644))

	c, _ := startServer(t, func(cfg *config.Config) {
		cfg.SharePaths = nil
		cfg.DiskImage = img
	})

	// Load track 3 sector 1 into the cache.
	opRequest(t, c, proto.ReqCache, []byte{0x00, 0x00, 0x03, 0x00, 0x01})
	cmd, p := opReply(t, c)
	require.Equal(t, byte(proto.RetCache), cmd)
	require.Equal(t, []byte{proto.ErrSuccess}, p)

	// Patch the first four bytes of the cached data area and commit.
	opRequest(t, c, proto.ReqMemWrite, append([]byte{0x00, 0x00, 0x00}, "tpdd"...))
	cmd, p = opReply(t, c)
	require.Equal(t, byte(proto.RetCache), cmd)
	require.Equal(t, []byte{proto.ErrSuccess}, p)

	opRequest(t, c, proto.ReqCache, []byte{0x01, 0x00, 0x03, 0x00, 0x01})
	cmd, p = opReply(t, c)
	require.Equal(t, byte(proto.RetCache), cmd)
	require.Equal(t, []byte{proto.ErrSuccess}, p)

	// Read the same bytes back through the memory window.
	opRequest(t, c, proto.ReqMemRead, []byte{0x00, 0x00, 0x00, 0x04})
	cmd, p = opReply(t, c)
	require.Equal(t, byte(proto.RetMemRead), cmd)
	require.Equal(t, []byte{0x00, 0x00, 0x00}, p[:3])
	assert.Equal(t, "tpdd", string(p[3:]))

	// The committed record lands at track 3 sector 1 of the image.
	b, err := os.ReadFile(img)
	require.NoError(t, err)
	rn := diskimage.GeometryFor(diskimage.TPDD2).LinearRecord(3, 1)
	off := rn*diskimage.RecordLen + diskimage.HeaderLen
	assert.Equal(t, "tpdd", string(b[off:off+4]))

	// Out-of-range track is a parameter error.
	opRequest(t, c, proto.ReqCache, []byte{0x00, 0x00, 0x50, 0x00, 0x00})
	cmd, p = opReply(t, c)
	require.Equal(t, byte(proto.RetCache), cmd)
	require.Equal(t, []byte{proto.ErrParam}, p)
}

func TestTPDD2CacheWithoutImage(t *testing.T) {
	c, _ := startServer(t, func(cfg *config.Config) { cfg.Model = 2 })
	opRequest(t, c, proto.ReqCache, []byte{0x00, 0x00, 0x00, 0x00, 0x00})
	cmd, p := opReply(t, c)
	require.Equal(t, byte(proto.RetCache), cmd)
	require.Equal(t, []byte{proto.ErrNoDisk}, p)
}

func TestTPDD2Exec(t *testing.T) {
	c, _ := startServer(t, func(cfg *config.Config) { cfg.Model = 2 })
	opRequest(t, c, proto.ReqExec, []byte{0x80, 0x00, 0x42, 0x12, 0x34})
	cmd, p := opReply(t, c)
	require.Equal(t, byte(proto.RetExec), cmd)
	assert.Equal(t, []byte{0x42, 0x12, 0x34}, p)
}

func TestTPDD2Rename(t *testing.T) {
	c, dir := startServer(t, func(cfg *config.Config) { cfg.Model = 2 })
	require.NoError(t, os.WriteFile(filepath.Join(dir, "OLD.DO"), []byte("x"), 0o644))

	opRequest(t, c, proto.ReqDirent, direntReq("OLD   .DO", 'F', proto.DirentSetName))
	p := direntReply(t, c)
	require.Equal(t, "OLD   .DO", string(p[:9]))

	opRequest(t, c, proto.ReqRename, direntReq("NEW   .DO", 'F', 0)[:24])
	requireStd(t, c, proto.ErrSuccess)

	_, err := os.Stat(filepath.Join(dir, "NEW.DO"))
	require.NoError(t, err)
}
