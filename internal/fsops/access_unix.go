//go:build linux || darwin

package fsops

import "golang.org/x/sys/unix"

// Writable reports whether the process can create files in dir.
func Writable(dir string) bool {
	return unix.Access(dir, unix.W_OK|unix.X_OK) == nil
}
