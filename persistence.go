package cqf

import (
	"bytes"
	"os"

	natomic "github.com/natefinch/atomic"
)

// Serialize writes f's full backing buffer (header plus every block) to
// path as a single atomic rename-into-place, so a crash mid-write never
// leaves a half-written file behind (spec §4.7 "Persistence"; the same
// write-then-rename discipline calvinalkan-agent-task's slotcache uses for
// its cache files). Returns the number of bytes written.
func Serialize(f *Filter, path string) (uint64, error) {
	buf := f.storage.Bytes()
	if err := natomic.WriteFile(path, bytes.NewReader(buf)); err != nil {
		return 0, ErrIOError.Wrap(err)
	}
	return uint64(len(buf)), nil
}

// UseFile mmaps path and adopts it as a filter's storage, validating the
// header the way Use does for an in-memory buffer (spec §4.7, §6's
// use_file(path, lock_mode)). No lock state is ever persisted or restored;
// observer is left nil, matching Use's contract.
func UseFile(path string, lockMode LockMode) (*Filter, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, ErrIOError.Wrap(err)
	}

	s, err := mapFile(path, uint64(info.Size()))
	if err != nil {
		return nil, err
	}

	hdr, err := unmarshalHeader(s.Bytes())
	if err != nil {
		s.Close()
		return nil, err
	}
	l, err := computeLayout(hdr.NSlots, hdr.KeyBits, hdr.ValueBits)
	if err != nil {
		s.Close()
		return nil, ErrCorruption.Wrap(err)
	}
	if uint64(len(s.Bytes())) < l.totalSizeInBytes {
		s.Close()
		return nil, ErrCorruption.New("file too short: have %d bytes, need %d", len(s.Bytes()), l.totalSizeInBytes)
	}

	return newFilterFromStorage(s, hdr, lockMode, nil), nil
}
