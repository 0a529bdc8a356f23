package proto

// Operation-mode request codes (canonical, after Normalize).
const (
	ReqDirent    = 0x00
	ReqOpen      = 0x01
	ReqClose     = 0x02
	ReqRead      = 0x03
	ReqWrite     = 0x04
	ReqDelete    = 0x05
	ReqFormat    = 0x06
	ReqStatus    = 0x07
	ReqFDC       = 0x08
	ReqSeek      = 0x09
	ReqTell      = 0x0A
	ReqSetExt    = 0x0B
	ReqCondition = 0x0C // TPDD2
	ReqRename    = 0x0D
	ReqVersion   = 0x23 // TPDD2; TS-DOS uses it to detect TPDD2
	ReqCache     = 0x30 // TPDD2 sector cache load/commit
	ReqMemWrite  = 0x31 // TPDD2
	ReqMemRead   = 0x32 // TPDD2
	ReqSysinfo   = 0x33 // TPDD2
	ReqExec      = 0x34 // TPDD2
)

// Return block formats.
const (
	RetRead      = 0x10
	RetDirent    = 0x11
	RetStd       = 0x12 // shared by: error open close delete status write
	RetVersion   = 0x14
	RetCondition = 0x15 // TPDD2
	RetCache     = 0x38 // TPDD2 shared by: cache, mem write
	RetMemRead   = 0x39 // TPDD2
	RetSysinfo   = 0x3A // TPDD2
	RetExec      = 0x3B // TPDD2
)

// Fixed reply payload lengths.
const (
	LenRetStd       = 0x01
	LenRetDME       = 0x0B
	LenRetDirent    = 0x1C
	LenRetVersion   = 0x0F
	LenRetCondition = 0x01
	LenRetSysinfo   = 0x06
	LenRetExec      = 0x03
)

// Directory-entry request actions (payload byte 25).
const (
	DirentSetName  = 0x00
	DirentGetFirst = 0x01
	DirentGetNext  = 0x02
	DirentGetPrev  = 0x03 // TPDD2
	DirentClose    = 0x04 // TPDD2
)

// File open access modes (payload of ReqOpen).
const (
	OpenNone   = 0x00 // no file open; not a wire value
	OpenWrite  = 0x01
	OpenAppend = 0x02
	OpenRead   = 0x03
)

// FilenameLen is the fixed width of the client filename field in
// directory-entry requests and replies.
const FilenameLen = 24

// BankBit is bit 6 of the request command byte. TPDD2 clients set it to
// address the second bank; it is extracted and cleared before dispatch.
const BankBit = 0x40

// Normalize maps a raw request command byte onto its canonical code.
//
// For TPDD2 the bank-select bit is read and cleared first, so an incoming
// 0x4# matches its 0x0# handler. Codes 0x0E-0x12 are undocumented legacy
// synonyms for the TPDD2 commands 0x30-0x34 and are shifted onto them.
func Normalize(cmd byte, tpdd2 bool) (canon byte, bank uint8) {
	if tpdd2 {
		bank = (cmd >> 6) & 1
		cmd &^= BankBit
	}
	if cmd > 0x0D && cmd < 0x13 {
		cmd += 0x22
	}
	return cmd, bank
}

// CmdName names a canonical command code for log output.
func CmdName(c byte) string {
	switch c {
	case ReqDirent:
		return "dirent"
	case ReqOpen:
		return "open"
	case ReqClose:
		return "close"
	case ReqRead:
		return "read"
	case ReqWrite:
		return "write"
	case ReqDelete:
		return "delete"
	case ReqFormat:
		return "format"
	case ReqStatus:
		return "status"
	case ReqFDC:
		return "fdc"
	case ReqCondition:
		return "condition"
	case ReqRename:
		return "rename"
	case ReqVersion:
		return "version"
	case ReqCache:
		return "cache"
	case ReqMemWrite:
		return "mem_write"
	case ReqMemRead:
		return "mem_read"
	case ReqSysinfo:
		return "sysinfo"
	case ReqExec:
		return "exec"
	default:
		return "unknown"
	}
}
