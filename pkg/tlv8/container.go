// Package tlv8 implements the tag-length-value record encoding used by the
// HomeKit pairing protocol.
//
// Each record on the wire is [tag:1][len:1][value:len]. Values longer than
// 255 bytes are split into consecutive records carrying the same tag; the
// decoder re-joins consecutive same-tag fragments. Two logical values of
// the same tag that must stay apart are divided by a Separator record.
//
//	c := tlv8.New()
//	c.SetByte(tlv8.TagState, 2)
//	c.Set(tlv8.TagPublicKey, pub)
//	wire := c.Encode()
//
//	resp, err := tlv8.Decode(wire)
//	state, ok := resp.GetByte(tlv8.TagState)
package tlv8

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Record is one logical TLV8 value.
type Record struct {
	Tag   Tag
	Value []byte
}

// Container is an ordered list of records.
type Container struct {
	records []Record
}

// New returns an empty container.
func New() *Container {
	return &Container{}
}

// Set appends a record with a copy of value.
func (c *Container) Set(tag Tag, value []byte) *Container {
	v := make([]byte, len(value))
	copy(v, value)
	c.records = append(c.records, Record{Tag: tag, Value: v})
	return c
}

// SetByte appends a single-byte record.
func (c *Container) SetByte(tag Tag, v byte) *Container {
	c.records = append(c.records, Record{Tag: tag, Value: []byte{v}})
	return c
}

// AddSeparator appends a zero-length Separator record.
func (c *Container) AddSeparator() *Container {
	c.records = append(c.records, Record{Tag: TagSeparator, Value: []byte{}})
	return c
}

// Get returns the value of the first record with the given tag.
func (c *Container) Get(tag Tag) ([]byte, bool) {
	for _, r := range c.records {
		if r.Tag == tag {
			return r.Value, true
		}
	}
	return nil, false
}

// GetByte returns the first record with the given tag if it holds exactly
// one byte.
func (c *Container) GetByte(tag Tag) (byte, bool) {
	v, ok := c.Get(tag)
	if !ok || len(v) != 1 {
		return 0, false
	}
	return v[0], true
}

// Has reports whether a record with the given tag is present.
func (c *Container) Has(tag Tag) bool {
	_, ok := c.Get(tag)
	return ok
}

// Records returns the records in order. The slice is shared with the
// container.
func (c *Container) Records() []Record {
	return c.records
}

// Len returns the number of records.
func (c *Container) Len() int {
	return len(c.records)
}

// Groups splits the container at Separator records. Separators themselves
// are dropped.
func (c *Container) Groups() []*Container {
	groups := []*Container{New()}
	for _, r := range c.records {
		if r.Tag == TagSeparator {
			groups = append(groups, New())
			continue
		}
		last := groups[len(groups)-1]
		last.records = append(last.records, r)
	}
	return groups
}

// Clear removes every record.
func (c *Container) Clear() {
	c.records = nil
}

// EncodedLen returns the number of bytes Encode will produce.
func (c *Container) EncodedLen() int {
	n := 0
	for _, r := range c.records {
		n += encodedLen(len(r.Value))
	}
	return n
}

func encodedLen(valueLen int) int {
	if valueLen == 0 {
		return 2
	}
	chunks := (valueLen + MaxChunk - 1) / MaxChunk
	return valueLen + 2*chunks
}

// Encode serializes the container.
func (c *Container) Encode() []byte {
	return Encode(c.records)
}

// Encode serializes records, splitting values at 255-byte boundaries.
func Encode(records []Record) []byte {
	size := 0
	for _, r := range records {
		size += encodedLen(len(r.Value))
	}
	out := make([]byte, 0, size)

	for _, r := range records {
		v := r.Value
		if len(v) == 0 {
			out = append(out, byte(r.Tag), 0)
			continue
		}
		for len(v) > 0 {
			n := len(v)
			if n > MaxChunk {
				n = MaxChunk
			}
			out = append(out, byte(r.Tag), byte(n))
			out = append(out, v[:n]...)
			v = v[n:]
		}
	}
	return out
}

// Decode parses buf into a new container.
func Decode(buf []byte) (*Container, error) {
	c := New()
	if err := c.Decode(buf); err != nil {
		return c, err
	}
	return c, nil
}

// Decode replaces the container's records with those parsed from buf.
// On error the container is left empty.
func (c *Container) Decode(buf []byte) error {
	c.records = nil

	var records []Record
	prev := -1 // tag of the previous record, -1 at start

	for pos := 0; pos < len(buf); {
		if len(buf)-pos < 2 {
			return ErrTruncated
		}
		tag := Tag(buf[pos])
		n := int(buf[pos+1])
		pos += 2

		if !tag.Known() {
			return fmt.Errorf("%w: 0x%02X", ErrUnknownTag, byte(tag))
		}
		if n > len(buf)-pos {
			return ErrTruncated
		}
		chunk := buf[pos : pos+n]
		pos += n

		if int(tag) == prev {
			last := &records[len(records)-1]
			if len(last.Value)+n > tag.MaxLen() {
				return fmt.Errorf("%w: %s", ErrValueTooLong, tag)
			}
			last.Value = append(last.Value, chunk...)
			continue
		}

		if n > tag.MaxLen() {
			return fmt.Errorf("%w: %s", ErrValueTooLong, tag)
		}
		v := make([]byte, n)
		copy(v, chunk)
		records = append(records, Record{Tag: tag, Value: v})
		prev = int(tag)
	}

	c.records = records
	return nil
}

// String returns a human-readable dump of the records.
func (c *Container) String() string {
	var b strings.Builder
	for i, r := range c.records {
		if i > 0 {
			b.WriteString(" ")
		}
		switch {
		case r.Tag == TagSeparator:
			b.WriteString("[Separator]")
		case len(r.Value) == 1:
			fmt.Fprintf(&b, "[%s %d]", r.Tag, r.Value[0])
		default:
			fmt.Fprintf(&b, "[%s(%d) %s]", r.Tag, len(r.Value), abbreviate(r.Value))
		}
	}
	return b.String()
}

func abbreviate(v []byte) string {
	if len(v) <= 16 {
		return hex.EncodeToString(v)
	}
	return hex.EncodeToString(v[:8]) + ".." + hex.EncodeToString(v[len(v)-8:])
}
