// Package vmem models the TPDD2 drive's CPU address space: the I/O port
// block, the CPU-internal RAM, the gate-array interface, the 2K work RAM
// holding the sector cache, and the 4K mask ROM.
//
// TPDD2 clients read and write this space directly with the memory
// request packets, both at the documented sector-cache offsets and at
// raw CPU addresses (the backup utilities peek the ROM and poke the
// drive-status registers).
package vmem

import (
	"os"

	"github.com/pkg/errors"

	"tpdd-server/internal/diskimage"
)

// CPU memory map.
const (
	IOPortAddr = 0x0000
	IOPortLen  = 0x0020
	CPURAMAddr = 0x0080
	CPURAMLen  = 0x0080
	GateAddr   = 0x4000
	GateLen    = 0x0003
	RAMAddr    = 0x8000
	RAMLen     = 0x0800
	ROMAddr    = 0xF000
	ROMLen     = 0x1000
)

// Sector cache layout inside the 2K RAM.
const (
	CacheIDOff   = 0x04 // 13-byte record header
	CacheDataOff = 0x13 // 1280-byte data area

	cacheLenMSB = 0x05
	cacheLenLSB = 0x13

	// MemReadMax bounds one memory-read reply; a larger count cannot be
	// framed. Writes are bounded by the request payload itself.
	MemReadMax = 252
)

// Memory access areas selected by the first request byte.
const (
	AreaCache = 0
	AreaCPU   = 1
)

// ErrParam reports an out-of-range area, address or length.
var ErrParam = errors.New("memory address out of range")

// Memory is one drive's address space.
type Memory struct {
	ioport [IOPortLen]byte
	cpuram [CPURAMLen]byte
	gate   [GateLen]byte
	ram    [RAMLen]byte
	rom    [ROMLen]byte
}

func New() *Memory { return &Memory{} }

// LoadROM fills the ROM area from an image file, so ROM-range reads hand
// back real mask-ROM contents. A short file leaves the tail zeroed; a
// missing file is not an error, the ROM just reads as zeroes.
func (m *Memory) LoadROM(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	if _, err := f.Read(m.rom[:]); err != nil {
		return errors.Wrapf(err, "rom image %s", path)
	}
	return nil
}

// window resolves a CPU address range to the backing array, requiring the
// whole range to sit inside one mapped region. ROM is read-only.
func (m *Memory) window(addr, n int, write bool) ([]byte, error) {
	type region struct {
		base, size int
		mem        []byte
		ro         bool
	}
	regions := []region{
		{IOPortAddr, IOPortLen, m.ioport[:], false},
		{CPURAMAddr, CPURAMLen, m.cpuram[:], false},
		{GateAddr, GateLen, m.gate[:], false},
		{RAMAddr, RAMLen, m.ram[:], false},
		{ROMAddr, ROMLen, m.rom[:], true},
	}
	for _, r := range regions {
		if addr >= r.base && addr+n <= r.base+r.size {
			if write && r.ro {
				return nil, ErrParam
			}
			off := addr - r.base
			return r.mem[off : off+n], nil
		}
	}
	return nil, ErrParam
}

// Read copies n bytes out of an area. For AreaCache the offset addresses
// the cached record's data region; for AreaCPU it is a raw CPU address.
func (m *Memory) Read(area byte, offset, n int) ([]byte, error) {
	if n < 0 || n > MemReadMax {
		return nil, ErrParam
	}
	var src []byte
	switch area {
	case AreaCache:
		if offset < 0 || offset+n > diskimage.DataLen {
			return nil, ErrParam
		}
		src = m.ram[CacheDataOff+offset : CacheDataOff+offset+n]
	case AreaCPU:
		w, err := m.window(offset, n, false)
		if err != nil {
			return nil, err
		}
		src = w
	default:
		return nil, ErrParam
	}
	return append([]byte(nil), src...), nil
}

// Write copies data into an area, with the same addressing as Read.
func (m *Memory) Write(area byte, offset int, data []byte) error {
	switch area {
	case AreaCache:
		if offset < 0 || offset+len(data) > diskimage.DataLen {
			return ErrParam
		}
		copy(m.ram[CacheDataOff+offset:], data)
		return nil
	case AreaCPU:
		w, err := m.window(offset, len(data), true)
		if err != nil {
			return err
		}
		copy(w, data)
		return nil
	}
	return ErrParam
}

// CacheLoad fills the sector cache from one disk record. The header words
// in front of the record mirror what a real drive leaves there: the cache
// length and the linear record number.
func (m *Memory) CacheLoad(img *diskimage.Image, rn int) error {
	hdr, data, err := img.ReadRecord(rn)
	if err != nil {
		return err
	}
	for i := range m.ram {
		m.ram[i] = 0
	}
	m.ram[0] = cacheLenMSB
	m.ram[1] = cacheLenLSB
	m.ram[2] = byte(rn)
	copy(m.ram[CacheIDOff:], hdr)
	copy(m.ram[CacheDataOff:], data)
	return nil
}

// CacheCommit writes the sector cache to one disk record. The cache
// itself is left intact; a client can commit the same contents to
// several sectors in a row.
func (m *Memory) CacheCommit(img *diskimage.Image, rn int) error {
	hdr := m.ram[CacheIDOff : CacheIDOff+diskimage.HeaderLen]
	data := m.ram[CacheDataOff : CacheDataOff+diskimage.DataLen]
	return img.WriteRecord(rn, hdr, data)
}
