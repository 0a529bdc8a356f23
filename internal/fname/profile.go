// Package fname translates host filenames to and from the fixed-width
// TPDD client filename format under a client compatibility profile.
//
// A real drive does not care what is in the filename field; profiles exist
// only so that local files get convenient names. TS-DOS writes "A     .BA"
// to a real drive when it saves "A.BA", and it does not recognize disk
// files that don't conform to that fixed 6.2 space-padded shape, so the
// byte layout produced here has to match it exactly.
package fname

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"tpdd-server/internal/proto"
)

// Attribute byte defaults. TS-DOS and friends write 'F' for every file;
// raw mode passes a plain space through.
const (
	AttrRaw     byte = ' '
	AttrDefault byte = 'F'
)

// Profile is one client compatibility profile: a bundle of filename-length,
// padding, case and feature-flag settings matching a client platform.
type Profile struct {
	ID          string
	BaseLen     int  // basename length; 0 means raw (full fixed width)
	ExtLen      int  // extension length; 0 means no extension handling
	Pad         bool // fixed-length space-padded
	DefaultAttr byte // attribute byte used when the store has none
	DME         bool // TS-DOS directory mode extension
	MagicFiles  bool // loader files (DOS100.CO etc.) resolvable from anywhere
	Upcase      bool // translate filenames to uppercase
}

// Builtin profiles. k85 matches all KC-85-clone platform clients (Floppy,
// TS-DOS, DSKMGR, TEENY on Model 100 / PC-8201a etc.) and is the default.
var builtin = []Profile{
	{ID: "raw", BaseLen: 0, ExtLen: 0, Pad: false, DefaultAttr: AttrRaw},
	{ID: "k85", BaseLen: 6, ExtLen: 2, Pad: true, DefaultAttr: AttrDefault, DME: true, MagicFiles: true, Upcase: true},
	{ID: "wp2", BaseLen: 8, ExtLen: 2, Pad: true, DefaultAttr: AttrDefault},
	{ID: "cpm", BaseLen: 8, ExtLen: 3, Pad: false, DefaultAttr: AttrDefault, Upcase: true},
	{ID: "rexcpm", BaseLen: 6, ExtLen: 2, Pad: true, DefaultAttr: AttrDefault, Upcase: true},
	{ID: "z88", BaseLen: 12, ExtLen: 3, Pad: false, DefaultAttr: AttrDefault},
	{ID: "st", BaseLen: 6, ExtLen: 2, Pad: true, DefaultAttr: AttrDefault, Upcase: true},
}

// DefaultProfile is the profile used when none is configured.
const DefaultProfile = "k85"

// Profiles returns the builtin profile table.
func Profiles() []Profile {
	out := make([]Profile, len(builtin))
	copy(out, builtin)
	return out
}

// Lookup resolves a profile by name (case-insensitive), or by an explicit
// numeric "base.ext" / "base.extp" spec such as "6.2p". A numeric spec
// yields a one-off raw-style profile with the requested lengths, the
// default attribute and all feature flags off. Names are matched before
// numeric specs so a profile name may contain a dot.
func Lookup(spec string) (Profile, error) {
	for _, p := range builtin {
		if strings.EqualFold(spec, p.ID) {
			return p, nil
		}
	}
	if strings.Contains(spec, ".") {
		return parseLengths(spec)
	}
	return Profile{}, errors.Errorf("no profile named %q", spec)
}

// parseLengths parses "#.#" or "#.#p" into an anonymous profile.
func parseLengths(spec string) (Profile, error) {
	p := Profile{ID: spec, DefaultAttr: AttrDefault}

	s := spec
	if n := len(s); n > 0 && (s[n-1] == 'p' || s[n-1] == 'P') {
		p.Pad = true
		s = s[:n-1]
	}
	dot := strings.IndexByte(s, '.')
	if dot < 1 || dot > 2 {
		return Profile{}, errors.Errorf("bad filename-length spec %q", spec)
	}
	base, err := strconv.Atoi(s[:dot])
	if err != nil || base < 1 || base >= proto.FilenameLen {
		return Profile{}, errors.Errorf("bad basename length in %q", spec)
	}
	ext, err := strconv.Atoi(s[dot+1:])
	if err != nil || ext < 0 || ext >= proto.FilenameLen-base {
		return Profile{}, errors.Errorf("bad extension length in %q", spec)
	}
	p.BaseLen, p.ExtLen = base, ext
	return p, nil
}

// ClientNameWidth is the width of the translated name for this profile:
// base + dot + ext when a base length is configured, the full fixed
// filename field otherwise.
func (p Profile) ClientNameWidth() int {
	w := p.BaseLen + 1 + p.ExtLen
	if p.BaseLen < 1 || w > proto.FilenameLen {
		return proto.FilenameLen
	}
	return w
}
