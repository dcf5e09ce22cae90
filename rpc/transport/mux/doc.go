// Package mux carries many logical streams over one connection using
// hashicorp/yamux, and exposes every logical stream as a framed stream.
//
// The client role opens streams on demand (OpenStream). The server role runs one
// accept goroutine per connection and one goroutine per accepted stream. When
// the session ends, yamux closes every logical stream on it, and the context
// passed to stream handlers is cancelled. A failing stream never affects its
// siblings.
package mux
