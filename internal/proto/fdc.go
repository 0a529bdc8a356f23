package proto

import "fmt"

// FDC-mode command characters. Requests are ASCII lines of the form
// <cmd>[P[,L]]<CR>; spaces act as separators and are dropped.
const (
	FDCSetMode       = 'M'
	FDCCondition     = 'D'
	FDCFormat        = 'F'
	FDCFormatNV      = 'G' // format without verify
	FDCReadID        = 'A'
	FDCReadSector    = 'R'
	FDCSearchID      = 'S'
	FDCWriteID       = 'B'
	FDCWriteIDNV     = 'C' // write ID without verify
	FDCWriteSector   = 'W'
	FDCWriteSectorNV = 'X' // write sector without verify
)

// FDCCommands lists every valid FDC-mode command character. Anything else
// is eaten until a valid command or a bare CR arrives.
const FDCCommands = "MDFGARSBCWX"

// FDCEol terminates an FDC command line, and is also the confirmation byte
// a client sends to request the data half of a two-stage read.
const FDCEol = 0x0D

// FDC-mode error codes, the first hex pair of the 8-character response.
// Real-drive FDC error codes are undocumented; these values were worked
// out by experimentation against real hardware.
const (
	FDCErrSuccess      byte = 0   // OK
	FDCErrLSNLow       byte = 17  // logical sector number below range
	FDCErrLSNHigh      byte = 18  // logical sector number above range
	FDCErrPSNHigh      byte = 19  // physical sector number above range
	FDCErrParam        byte = 33  // parameter invalid or wrong type
	FDCErrLSSCLow      byte = 50  // invalid logical sector size code
	FDCErrLSSCHigh     byte = 51  // logical sector size code above range
	FDCErrNotFormatted byte = 160 // disk not formatted
	FDCErrRead         byte = 161 // read error
	FDCErrIDNotFound   byte = 162 // search ID not found
	FDCErrWriteProtect byte = 176 // write-protected disk
	FDCErrCommand      byte = 193 // invalid command
	FDCErrNoDisk       byte = 209 // disk not inserted
)

// FDCResponse renders the fixed 8-character ASCII reply: two hex digits of
// error code, two of status/data, four of 16-bit length or address. The
// protocol requires no trailing terminator.
func FDCResponse(e, s byte, l uint16) []byte {
	return []byte(fmt.Sprintf("%02X%02X%04X", e, s, l))
}

// ParseFDCParams parses the decimal "P[,L]" parameter text of an FDC
// command line. Absent parameters take the real-drive defaults: physical
// sector 0, logical sector 1. Like the drive firmware, non-numeric text
// parses as 0 rather than an explicit error; range validation happens
// before dispatch.
func ParseFDCParams(raw []byte) (p, l int) {
	p, l = 0, 1
	if len(raw) == 0 {
		return p, l
	}
	fields := splitByte(raw, ',')
	if len(fields) > 0 && len(fields[0]) > 0 {
		p = atoi(fields[0])
	}
	if len(fields) > 1 && len(fields[1]) > 0 {
		l = atoi(fields[1])
	}
	return p, l
}

func splitByte(b []byte, sep byte) [][]byte {
	var out [][]byte
	start := 0
	for i := 0; i < len(b); i++ {
		if b[i] == sep {
			out = append(out, b[start:i])
			start = i + 1
		}
	}
	return append(out, b[start:])
}

// atoi mimics C atoi: optional sign, leading digits, garbage yields 0.
func atoi(b []byte) int {
	i, neg := 0, false
	if i < len(b) && (b[i] == '-' || b[i] == '+') {
		neg = b[i] == '-'
		i++
	}
	n := 0
	for ; i < len(b) && b[i] >= '0' && b[i] <= '9'; i++ {
		n = n*10 + int(b[i]-'0')
	}
	if neg {
		return -n
	}
	return n
}
