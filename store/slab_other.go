//go:build !unix

package store

// Platforms without mmap always use the Go heap; UseMmap is ignored.
func mapSlab(size int, _ bool) ([]byte, bool, error) {
	return make([]byte, size), false, nil
}

func unmapSlab(_ []byte) error {
	return nil
}
