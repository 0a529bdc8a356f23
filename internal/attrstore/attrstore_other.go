//go:build !linux && !darwin

package attrstore

// Without extended attributes every file reports the default.

func (s *Store) Get(path string) byte { return s.def }

func (s *Store) Set(path string, attr byte) error { return nil }
