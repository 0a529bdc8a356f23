//go:build linux || darwin

package attrstore

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Get returns the stored attribute of path, or the default when the file
// has none (or the filesystem cannot say).
func (s *Store) Get(path string) byte {
	var buf [1]byte
	n, err := unix.Getxattr(path, s.name, buf[:])
	if err != nil || n < 1 {
		return s.def
	}
	return buf[0]
}

// Set stores the attribute on path. A filesystem without xattr support is
// not an error; the attribute simply reverts to the default on read-back.
func (s *Store) Set(path string, attr byte) error {
	err := unix.Setxattr(path, s.name, []byte{attr}, 0)
	if err == nil || err == unix.ENOTSUP || err == unix.EPERM {
		return nil
	}
	return errors.Wrapf(err, "set attribute on %s", path)
}
