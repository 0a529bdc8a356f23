// Package attrstore persists the one-byte TPDD file attribute on host
// files. Clients treat the attribute as part of the file identity, so it
// has to survive across sessions; it rides along as an extended attribute
// where the filesystem supports them, and falls back to the profile
// default where it doesn't.
package attrstore

// DefaultXattrName is the extended-attribute key holding the attribute
// byte. The "user." namespace keeps it writable without privileges.
const DefaultXattrName = "user.tpdd.attr"

// Store reads and writes the attribute byte of host files.
type Store struct {
	name string
	def  byte
}

// New returns a Store using the given xattr key, or DefaultXattrName when
// empty, with def as the fallback attribute.
func New(name string, def byte) *Store {
	if name == "" {
		name = DefaultXattrName
	}
	return &Store{name: name, def: def}
}

// Default returns the fallback attribute byte.
func (s *Store) Default() byte { return s.def }
