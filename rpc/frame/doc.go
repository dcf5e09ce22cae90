// Package frame implements the wire framing of the protocol.
//
// A frame is a 4 byte big endian header followed by the body. The top bit of
// the header flags a gzip compressed body, the lower 31 bits hold the length of
// the body as sent. Bodies of CompressionLimit (1436) bytes or more are
// compressed.
//
// The package works on in-memory buffers only. The stream package adds the
// socket reads and writes.
package frame
