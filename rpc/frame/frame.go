package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/klauspost/compress/gzip"
)

const (
	// HeaderLen is the size of the big endian length header
	HeaderLen = 4
	// CompressionLimit is the body size from which bodies are gzip compressed.
	// Smaller frames fit one ethernet MTU after TCP/IP and TLS overhead.
	CompressionLimit = 1436
	// CompressionBit marks a compressed body in the header
	CompressionBit uint32 = 1 << 31
	// MaxFrameSize is the exclusive upper bound of a body length (31 bits)
	MaxFrameSize = 1<<31 - 1
)

var (
	ErrFrameTooLarge = errors.New("frame: body too large")
	ErrIncomplete    = errors.New("frame: not complete")
)

var gzipWriters = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(nil, gzip.DefaultCompression)
		return w
	},
}

// --------------------------------------------------------------------------
// Body level codec
// --------------------------------------------------------------------------

// putHeader validates n and writes the header for a body of n bytes
func putHeader(h []byte, n int, compressed bool) error {
	if n >= MaxFrameSize {
		return ErrFrameTooLarge
	}
	v := uint32(n)
	if compressed {
		v |= CompressionBit
	}
	binary.BigEndian.PutUint32(h, v)
	return nil
}

// EncodeBody appends one frame holding body to dst.
// Bodies of CompressionLimit bytes or more are gzip compressed and flagged in the header.
func EncodeBody(dst *bytes.Buffer, body []byte) error {
	var h [HeaderLen]byte

	if len(body) < CompressionLimit {
		if err := putHeader(h[:], len(body), false); err != nil {
			return err
		}
		dst.Grow(HeaderLen + len(body))
		dst.Write(h[:])
		dst.Write(body)
		return nil
	}

	if len(body) >= MaxFrameSize {
		return ErrFrameTooLarge
	}

	start := dst.Len()
	dst.Write(h[:]) // placeholder

	gz := gzipWriters.Get().(*gzip.Writer)
	defer gzipWriters.Put(gz)
	gz.Reset(dst)
	if _, err := gz.Write(body); err != nil {
		dst.Truncate(start)
		return err
	}
	if err := gz.Close(); err != nil {
		dst.Truncate(start)
		return err
	}

	if err := putHeader(dst.Bytes()[start:start+HeaderLen], dst.Len()-start-HeaderLen, true); err != nil {
		dst.Truncate(start)
		return err
	}
	return nil
}

// FrameLength returns the total size (header plus body) of the frame at the start of src.
// It returns ErrIncomplete if src does not hold a whole header yet.
func FrameLength(src []byte) (int, error) {
	if len(src) < HeaderLen {
		return 0, ErrIncomplete
	}
	h := binary.BigEndian.Uint32(src)
	return HeaderLen + int(h&^CompressionBit), nil
}

// DecodeBody decodes the frame at the start of src and returns its (decompressed)
// body and the number of bytes the frame occupies in src.
// If src holds less than one frame it returns ErrIncomplete and src must be kept as is.
func DecodeBody(src []byte) (body []byte, n int, err error) {
	n, err = FrameLength(src)
	if err != nil {
		return nil, 0, err
	}
	if len(src) < n {
		return nil, 0, ErrIncomplete
	}

	payload := src[HeaderLen:n]
	if binary.BigEndian.Uint32(src)&CompressionBit == 0 {
		return payload, n, nil
	}

	gz, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, n, store.NewProtocolError("invalid gzip header", err)
	}
	defer gz.Close()

	body, err = io.ReadAll(io.LimitReader(gz, MaxFrameSize))
	if err != nil {
		return nil, n, store.NewProtocolError("gzip decompression failed", err)
	}
	return body, n, nil
}
