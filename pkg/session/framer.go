package session

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/backkem/hap/pkg/crypto"
)

const (
	// MaxFrameSize is the largest plaintext carried by one frame.
	MaxFrameSize = 1024

	// LengthSize is the size of the little-endian length prefix, which
	// doubles as the AEAD additional data.
	LengthSize = 2

	// FrameOverhead is the per-frame cost on the wire.
	FrameOverhead = LengthSize + crypto.TagSize
)

// EncryptOutbound frames header and body for the wire. The header goes in
// its own frame(s) first; the body follows in frames of at most
// MaxFrameSize bytes. The write nonce advances once per frame.
func EncryptOutbound(s *Session, header, body []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if !s.verified {
		return nil, ErrNotEstablished
	}

	out := make([]byte, 0, framedLen(len(header))+framedLen(len(body)))
	var err error
	for _, part := range [][]byte{header, body} {
		out, err = s.sealFrames(out, part)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DecryptInbound decrypts a buffer of whole frames. Any authentication
// failure is fatal for the connection.
func DecryptInbound(s *Session, data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if !s.verified {
		return nil, ErrNotEstablished
	}

	var out []byte
	for len(data) > 0 {
		if len(data) < LengthSize {
			return nil, ErrTruncatedFrame
		}
		n := int(binary.LittleEndian.Uint16(data))
		if n > MaxFrameSize {
			return nil, ErrFrameTooLarge
		}
		if len(data) < LengthSize+n+crypto.TagSize {
			return nil, ErrTruncatedFrame
		}
		plain, err := s.openFrame(data[:LengthSize], data[LengthSize:LengthSize+n+crypto.TagSize])
		if err != nil {
			return nil, err
		}
		out = append(out, plain...)
		data = data[LengthSize+n+crypto.TagSize:]
	}
	return out, nil
}

func framedLen(n int) int {
	frames := (n + MaxFrameSize - 1) / MaxFrameSize
	return n + frames*FrameOverhead
}

// sealFrames appends p to out as frames. Caller holds s.mu.
func (s *Session) sealFrames(out, p []byte) ([]byte, error) {
	for len(p) > 0 {
		n := len(p)
		if n > MaxFrameSize {
			n = MaxFrameSize
		}
		aad := binary.LittleEndian.AppendUint16(nil, uint16(n))
		ct, err := crypto.Seal(s.writeKey, s.writeNonce.Bytes(), p[:n], aad)
		if err != nil {
			return nil, err
		}
		s.writeNonce.Increment()
		out = append(out, aad...)
		out = append(out, ct...)
		p = p[n:]
	}
	return out, nil
}

// openFrame authenticates one frame. Caller holds s.mu.
func (s *Session) openFrame(aad, sealed []byte) ([]byte, error) {
	plain, err := crypto.Open(s.readKey, s.readNonce.Bytes(), sealed, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	s.readNonce.Increment()
	return plain, nil
}

// Reader decrypts frames from an underlying stream.
type Reader struct {
	s       *Session
	r       io.Reader
	pending []byte
	hdr     [LengthSize]byte
	buf     [MaxFrameSize + crypto.TagSize]byte
}

// NewReader returns a reader yielding the plaintext of the frames read
// from r. A stream that ends between frames yields io.EOF.
func NewReader(s *Session, r io.Reader) *Reader {
	return &Reader{s: s, r: r}
}

// Read implements io.Reader.
func (fr *Reader) Read(p []byte) (int, error) {
	for len(fr.pending) == 0 {
		if err := fr.next(); err != nil {
			return 0, err
		}
	}
	n := copy(p, fr.pending)
	fr.pending = fr.pending[n:]
	return n, nil
}

func (fr *Reader) next() error {
	if _, err := io.ReadFull(fr.r, fr.hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrTruncatedFrame
		}
		return err
	}
	n := int(binary.LittleEndian.Uint16(fr.hdr[:]))
	if n > MaxFrameSize {
		return ErrFrameTooLarge
	}
	sealed := fr.buf[:n+crypto.TagSize]
	if _, err := io.ReadFull(fr.r, sealed); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrTruncatedFrame
		}
		return err
	}

	fr.s.mu.Lock()
	defer fr.s.mu.Unlock()
	if fr.s.closed {
		return ErrClosed
	}
	if !fr.s.verified {
		return ErrNotEstablished
	}
	plain, err := fr.s.openFrame(fr.hdr[:], sealed)
	if err != nil {
		return err
	}
	fr.pending = plain
	return nil
}

// Writer frames everything written to it.
type Writer struct {
	s *Session
	w io.Writer
}

// NewWriter returns a writer that encrypts each Write into frames on w.
func NewWriter(s *Session, w io.Writer) *Writer {
	return &Writer{s: s, w: w}
}

// Write implements io.Writer.
func (fw *Writer) Write(p []byte) (int, error) {
	wire, err := EncryptOutbound(fw.s, nil, p)
	if err != nil {
		return 0, err
	}
	if _, err := fw.w.Write(wire); err != nil {
		return 0, err
	}
	return len(p), nil
}
