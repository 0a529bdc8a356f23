package proto

// Operation-mode status codes, returned verbatim to the client in the
// standard RetStd reply. Host I/O failures are mapped to the nearest code
// and never surfaced raw.
const (
	ErrSuccess      byte = 0x00 // operation complete
	ErrNoFile       byte = 0x10 // file not found
	ErrExists       byte = 0x11 // file exists
	ErrCmdSeq       byte = 0x30 // missing filename / command sequence error
	ErrDirSearch    byte = 0x31 // directory search error
	ErrBank         byte = 0x35 // bank error
	ErrParam        byte = 0x36 // parameter error
	ErrFmtMismatch  byte = 0x37 // open format mismatch
	ErrEOF          byte = 0x3F // end of file
	ErrNoStart      byte = 0x40 // no start mark
	ErrIDCRC        byte = 0x41 // ID CRC check error
	ErrSectorLen    byte = 0x42 // sector length error
	ErrFmtVerify    byte = 0x44 // format verify error
	ErrNotFormatted byte = 0x45 // disk not formatted
	ErrFmtInterrupt byte = 0x46 // format interruption
	ErrEraseOffset  byte = 0x47 // erase offset error
	ErrDataCRC      byte = 0x49 // DATA CRC check error
	ErrSectorNum    byte = 0x4A // sector number error
	ErrReadTimeout  byte = 0x4B // read data timeout
	ErrSectorNum2   byte = 0x4D // sector number error
	ErrWriteProtect byte = 0x50 // write-protected disk
	ErrDiskNoInit   byte = 0x5E // disk not formatted
	ErrDirFull      byte = 0x60 // directory full
	ErrDiskFull     byte = 0x61 // disk full
	ErrFileLen      byte = 0x6E // file too long
	ErrNoDisk       byte = 0x70 // no disk
	ErrDiskChange   byte = 0x71 // disk not inserted or disk change error
	ErrDefective    byte = 0x83 // defective disk
)

// StatusName names an Operation-mode status code for log output.
func StatusName(e byte) string {
	switch e {
	case ErrSuccess:
		return "OK"
	case ErrNoFile:
		return "file not found"
	case ErrExists:
		return "file exists"
	case ErrCmdSeq:
		return "command sequence error"
	case ErrDirSearch:
		return "directory search error"
	case ErrBank:
		return "bank error"
	case ErrParam:
		return "parameter error"
	case ErrFmtMismatch:
		return "open format mismatch"
	case ErrEOF:
		return "end of file"
	case ErrFmtVerify:
		return "format verify error"
	case ErrNotFormatted, ErrDiskNoInit:
		return "disk not formatted"
	case ErrFmtInterrupt:
		return "format interruption"
	case ErrSectorNum, ErrSectorNum2:
		return "sector number error"
	case ErrReadTimeout:
		return "read data timeout"
	case ErrWriteProtect:
		return "write-protected disk"
	case ErrDirFull:
		return "directory full"
	case ErrDiskFull:
		return "disk full"
	case ErrFileLen:
		return "file too long"
	case ErrNoDisk:
		return "no disk"
	case ErrDiskChange:
		return "disk change error"
	case ErrDefective:
		return "defective disk"
	default:
		return "error"
	}
}

// Drive condition bit positions, per model. The condition byte is reported
// by the FDC-mode D command (TPDD1) and the Operation-mode condition
// request (TPDD2).
const (
	PDD1CondBitNoDisk = 7
	PDD1CondBitChange = 6
	PDD1CondBitWProt  = 5

	PDD2CondBitChange = 3
	PDD2CondBitNoDisk = 2
	PDD2CondBitWProt  = 1
	PDD2CondBitPower  = 0
)
