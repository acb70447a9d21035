//go:build unix

package store

import "golang.org/x/sys/unix"

// mapSlab returns the arena backing: an anonymous private mapping when
// requested, the Go heap otherwise.
func mapSlab(size int, useMmap bool) ([]byte, bool, error) {
	if !useMmap {
		return make([]byte, size), false, nil
	}
	slab, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, false, err
	}
	return slab, true, nil
}

func unmapSlab(slab []byte) error {
	return unix.Munmap(slab)
}
