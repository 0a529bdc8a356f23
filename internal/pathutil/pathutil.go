// Package pathutil sanitizes client-supplied filenames before they reach
// the host filesystem. TPDD clients have no notion of paths; a filename
// field carrying directory structure is either line noise or an attempt
// to climb out of the share.
package pathutil

import (
	"path/filepath"
	"strings"
)

// CleanName reduces a filename taken from the wire to a single safe path
// component. Separators and NUL become '_'; a name that cleans down to
// "." or ".." (or nothing) becomes "_". Everything else passes through
// unchanged, including characters that are merely unusual.
func CleanName(name string) string {
	if name == "" {
		return "_"
	}
	b := []byte(name)
	for i, c := range b {
		switch c {
		case 0, '/', '\\':
			b[i] = '_'
		}
	}
	s := string(b)
	if s == "." || s == ".." {
		return "_"
	}
	return s
}

// Within reports whether p, after lexical cleaning, is root or sits under
// root. It is a lexical check only; symlinks are not resolved.
func Within(root, p string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(p))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
