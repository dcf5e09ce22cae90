package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/ValentinKolb/sKV/rpc/frame"
)

// ErrClosed is returned by Send after Close
var ErrClosed = errors.New("stream: closed")

type flusher interface {
	Flush() error
}

// Stream exchanges typed messages over a duplex byte stream, one frame per message.
// Recv must not be called concurrently. Send and Close may be called from any goroutine.
type Stream[In, Out any] struct {
	conn   io.ReadWriteCloser
	decode func(*bytes.Buffer) (*In, error)
	encode func(*bytes.Buffer, *Out) error

	rbuf bytes.Buffer

	wmu    sync.Mutex
	wbuf   bytes.Buffer
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// ServerStream receives commands and sends responses
type ServerStream = Stream[common.CommandRequest, common.CommandResponse]

// ClientStream sends commands and receives responses
type ClientStream = Stream[common.CommandResponse, common.CommandRequest]

func NewServerStream(conn io.ReadWriteCloser, codec frame.Codec) *ServerStream {
	return &ServerStream{conn: conn, decode: codec.DecodeRequest, encode: codec.EncodeResponse}
}

func NewClientStream(conn io.ReadWriteCloser, codec frame.Codec) *ClientStream {
	return &ClientStream{conn: conn, decode: codec.DecodeResponse, encode: codec.EncodeRequest}
}

// --------------------------------------------------------------------------
// Read side
// --------------------------------------------------------------------------

// Recv reads exactly one frame and decodes it. It returns io.EOF when the peer
// closed the stream on a frame boundary and io.ErrUnexpectedEOF inside a frame.
// A body that cannot be decoded yields a ProtocolError; the stream stays usable.
func (s *Stream[In, Out]) Recv() (*In, error) {
	if s.rbuf.Len() != 0 {
		panic(fmt.Sprintf("stream: %d bytes left in read buffer between frames", s.rbuf.Len()))
	}
	s.rbuf.Reset()

	if _, err := io.CopyN(&s.rbuf, s.conn, frame.HeaderLen); err != nil {
		if s.rbuf.Len() > 0 && errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		s.rbuf.Reset()
		return nil, err
	}

	total, _ := frame.FrameLength(s.rbuf.Bytes())
	if _, err := io.CopyN(&s.rbuf, s.conn, int64(total-frame.HeaderLen)); err != nil {
		s.rbuf.Reset()
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, store.NewProtocolError("truncated frame", err)
	}

	msg, err := s.decode(&s.rbuf)
	if s.rbuf.Len() != 0 {
		panic(fmt.Sprintf("stream: frame decoder left %d bytes in read buffer", s.rbuf.Len()))
	}
	return msg, err
}

// Messages returns the inbound messages as a sequence. The sequence ends after
// a clean EOF (not yielded) or after yielding the first error other than a
// ProtocolError.
func (s *Stream[In, Out]) Messages() iter.Seq2[*In, error] {
	return func(yield func(*In, error) bool) {
		for {
			msg, err := s.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(msg, err) {
				return
			}
			if err != nil && store.KindOf(err) != store.ErrProtocol {
				return
			}
		}
	}
}

// --------------------------------------------------------------------------
// Write side
// --------------------------------------------------------------------------

// Send encodes msg and writes the whole frame before returning
func (s *Stream[In, Out]) Send(msg *Out) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.wbuf.Reset()
	if err := s.encode(&s.wbuf, msg); err != nil {
		s.wbuf.Reset()
		return err
	}
	return s.flushLocked()
}

// flushLocked writes the write buffer until it is empty, then flushes the connection
func (s *Stream[In, Out]) flushLocked() error {
	for s.wbuf.Len() > 0 {
		n, err := s.conn.Write(s.wbuf.Bytes())
		s.wbuf.Next(n)
		if err != nil {
			s.wbuf.Reset()
			return err
		}
		if n == 0 {
			s.wbuf.Reset()
			return io.ErrShortWrite
		}
	}
	s.wbuf.Reset()

	if f, ok := s.conn.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// Close flushes pending output and closes the underlying stream. Repeated calls return the first result.
func (s *Stream[In, Out]) Close() error {
	s.closeOnce.Do(func() {
		s.wmu.Lock()
		flushErr := s.flushLocked()
		s.closed = true
		s.wmu.Unlock()

		s.closeErr = errors.Join(flushErr, s.conn.Close())
	})
	return s.closeErr
}
