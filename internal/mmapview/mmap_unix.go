//go:build unix

package mmapview

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// OpenFile memory-maps path read-only and returns a View over it. On unix
// platforms this is a genuine zero-copy mapping: ArchiveBytes/ArchiveSlice
// return windows directly into the kernel's page cache, never a copy.
// ArchiveRecord returns its record by value, so it copies that one record.
func OpenFile(path string) (_ *View, closeFn func() error, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("mmapview: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("mmapview: stat %s: %w", path, err)
	}
	size := st.Size()
	if size == 0 {
		return nil, nil, fmt.Errorf("mmapview: %s is empty", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, fmt.Errorf("mmapview: mmap %s: %w", path, err)
	}

	v := New(data)
	closed := false
	closeFn = func() error {
		if closed {
			return nil
		}
		closed = true
		return unix.Munmap(data)
	}
	return v, closeFn, nil
}
