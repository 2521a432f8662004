package cqf

import "github.com/zeebo/errs"

// Error kinds, per spec §7. Each is an errs.Class so callers can test for a
// kind with Class.Has while still getting a wrapped, annotated error string
// out of New/Wrap — the same pattern the teacher uses for the single
// unclassified error path in cascade.go (errs.Wrap(err)).
var (
	// ErrNoSpace: insertion refused because the filter is full and
	// AutoResize is off. Caller's responsibility to resize or drop the key.
	ErrNoSpace = errs.Class("no_space")

	// ErrNotFound: remove/replace targeted an absent (key, value). No state
	// change occurs.
	ErrNotFound = errs.Class("not_found")

	// ErrInvalidParameter: bad nslots/key_bits/value_bits, or a misaligned
	// buffer, at init time.
	ErrInvalidParameter = errs.Class("invalid_parameter")

	// ErrIOError: open/map/read/write failure in persistence.
	ErrIOError = errs.Class("io_error")

	// ErrCorruption: header magic/version/layout mismatch on reopen.
	ErrCorruption = errs.Class("corruption")
)
