package cqf

import (
	"os"

	"github.com/zeebo/errs"
	"golang.org/x/sys/unix"
)

// storage is the single abstraction covering the three memory-ownership
// regimes a Filter can sit on top of (DESIGN NOTES, "Ownership of memory"):
// the filter owns a heap buffer, borrows a caller-provided one, or views a
// file-backed mapping. Every variant guarantees release on Close.
type storage interface {
	// Bytes returns the full backing buffer: header followed by blocks.
	Bytes() []byte
	// Close releases whatever the variant owns. Safe to call multiple times.
	Close() error
}

// ownedStorage is a heap-allocated buffer the Filter allocated itself
// (qf_malloc in the C reference; "owned" in DESIGN NOTES).
type ownedStorage struct {
	buf []byte
}

func newOwnedStorage(size uint64) *ownedStorage {
	return &ownedStorage{buf: make([]byte, size)}
}

func (s *ownedStorage) Bytes() []byte { return s.buf }
func (s *ownedStorage) Close() error  { s.buf = nil; return nil }

// borrowedStorage points at a caller-supplied buffer (qf_init/qf_use) and
// never frees it.
type borrowedStorage struct {
	buf []byte
}

func newBorrowedStorage(buf []byte) *borrowedStorage {
	return &borrowedStorage{buf: buf}
}

func (s *borrowedStorage) Bytes() []byte { return s.buf }
func (s *borrowedStorage) Close() error  { return nil }

// mappedStorage views a file-backed mmap. It owns the mapping's lifetime
// (and, if it opened the file itself, the file handle), not the bytes
// underneath it — the same mmap/munmap pairing cascade.go uses via
// golang.org/x/sys/unix, generalized from "append a level" to "open one
// persisted filter".
type mappedStorage struct {
	buf      []byte
	file     *os.File
	ownsFile bool
}

// mapFile mmaps size bytes of path read-write, growing the file first if
// it is smaller than size. The caller owns the returned storage and must
// Close it to munmap and close the file.
func mapFile(path string, size uint64) (*mappedStorage, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, ErrIOError.Wrap(err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ErrIOError.Wrap(err)
	}
	if uint64(info.Size()) < size {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, ErrIOError.Wrap(err)
		}
	}

	buf, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, ErrIOError.Wrap(err)
	}

	return &mappedStorage{buf: buf, file: f, ownsFile: true}, nil
}

func (s *mappedStorage) Bytes() []byte { return s.buf }

func (s *mappedStorage) Close() error {
	var errList []error
	if s.buf != nil {
		if err := unix.Munmap(s.buf); err != nil {
			errList = append(errList, err)
		}
		s.buf = nil
	}
	if s.ownsFile && s.file != nil {
		if err := s.file.Close(); err != nil {
			errList = append(errList, err)
		}
		s.file = nil
	}
	if len(errList) == 0 {
		return nil
	}
	return ErrIOError.Wrap(errs.Combine(errList...))
}
