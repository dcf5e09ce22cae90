// Package stream turns any duplex byte stream (a TCP or TLS connection, a unix
// socket or one logical stream of the multiplexer) into a stream of typed
// messages.
//
// Recv reads exactly one header, then exactly the announced body, and hands the
// frame to the codec. Send encodes into a write buffer and keeps writing until
// the buffer is empty, then flushes the connection if it supports flushing.
// Close is idempotent.
package stream
