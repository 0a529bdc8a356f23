package fname

import "strings"

// TS-DOS directory mode extension labels. The dir label cannot change
// without also hacking TS-DOS; the other two mimic the original Desk-Link.
const (
	DefaultRootLabel   = "0:    "
	DefaultParentLabel = "^     "
	DirLabel           = "<>"
)

// Translator applies one profile plus the session-level naming options.
type Translator struct {
	Profile     Profile
	Tildes      bool   // mark truncated names with a trailing '~'
	ParentLabel string // base field of the synthetic ".." entry
}

// NewTranslator returns a Translator with the default DME labels.
func NewTranslator(p Profile, tildes bool) Translator {
	return Translator{Profile: p, Tildes: tildes, ParentLabel: DefaultParentLabel}
}

// Translate builds the client form of a host filename.
//
// With no extension handling the name is truncated or padded to the
// profile width. Otherwise the name splits at its last dot (directory
// names never split), base and extension truncate independently with '~'
// substitution, and dots that survive inside the truncated base become
// '_' so they cannot reintroduce an extension boundary. A DME directory
// gets the fixed "<>" extension, and ".." gets the parent label.
func (t Translator) Translate(localName string, isDir bool) string {
	p := t.Profile
	il := len(localName)
	ow := p.ClientNameWidth()

	if p.ExtLen == 0 {
		out := fixWidth(localName, ow)
		if t.Tildes && il > ow {
			out[ow-1] = '~'
		}
		return string(out)
	}

	// Position of the last dot; directories never split.
	dp := 0
	if !isDir {
		if i := strings.LastIndexByte(localName, '.'); i > 0 {
			dp = i
		}
	}

	// Base, possibly shorter than the configured length.
	bl := p.BaseLen
	if dp > 0 && dp < bl {
		bl = dp
	}
	bn := []byte(localName)
	if len(bn) > bl {
		bn = bn[:bl]
	}
	bn = append([]byte{}, bn...)
	for i := range bn {
		if bn[i] == '.' {
			bn[i] = '_'
		}
	}
	truncated := false
	if dp > 0 {
		truncated = dp > bl
	} else {
		truncated = il > ow || (isDir && il > ow-p.ExtLen-1)
	}
	if t.Tildes && truncated && len(bn) == bl && bl > 0 {
		bn[bl-1] = '~'
	}

	// Extension.
	var en []byte
	el := 0
	if dp > 0 {
		x := il - dp - 1
		el = x
		if el > p.ExtLen {
			el = p.ExtLen
		}
		en = []byte(localName[dp+1 : dp+1+el])
		if t.Tildes && x > el && el > 0 {
			en[el-1] = '~'
		}
	}

	if p.DME && isDir {
		if localName == ".." {
			bn = []byte(fixWidth(t.ParentLabel, p.BaseLen))
		}
		en = []byte(DirLabel)
		el = len(DirLabel)
	}

	var out []byte
	if p.Pad {
		out = fixWidth(string(bn), p.BaseLen)
	} else {
		out = bn
	}
	if dp > 0 || p.Pad {
		out = append(out, '.')
	}
	out = append(out, en[:el]...)

	if p.Upcase {
		out = upperASCII(out)
	}
	return string(out)
}

// Collapse strips the padding from a client-submitted fixed-width name and
// re-appends its dot-plus-extension suffix, recovering the host filename
// used when creating a brand-new file. A DME directory name collapses to
// its bare base. Unpadded profiles pass the name through.
func (t Translator) Collapse(clientName string) string {
	p := t.Profile
	if !p.Pad || p.BaseLen == 0 {
		return clientName
	}

	base := clientName
	if len(base) > p.BaseLen {
		base = base[:p.BaseLen]
	}
	i := len(base)
	for i > 1 && base[i-1] == ' ' {
		i--
	}
	stem := base[:i]

	if len(clientName) >= p.BaseLen+3 && clientName[p.BaseLen+1:p.BaseLen+3] == DirLabel {
		return stem
	}
	end := p.BaseLen + 3
	if end > len(clientName) {
		end = len(clientName)
	}
	if p.BaseLen >= len(clientName) {
		return stem
	}
	return stem + clientName[p.BaseLen:end]
}

// fixWidth returns s truncated or space-padded to exactly w bytes.
func fixWidth(s string, w int) []byte {
	out := make([]byte, w)
	n := copy(out, s)
	for ; n < w; n++ {
		out[n] = ' '
	}
	return out
}

func upperASCII(b []byte) []byte {
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 32
		}
	}
	return b
}
