package tlv8

import "errors"

var (
	// ErrUnknownTag is returned when a record carries a tag outside the
	// pairing tag set.
	ErrUnknownTag = errors.New("tlv8: unknown tag")

	// ErrTruncated is returned when a declared length runs past the end of
	// the input.
	ErrTruncated = errors.New("tlv8: truncated record")

	// ErrValueTooLong is returned when a value, after re-joining its
	// fragments, exceeds the maximum length allowed for its tag.
	ErrValueTooLong = errors.New("tlv8: value exceeds tag maximum length")
)
