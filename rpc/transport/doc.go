// Package transport selects the socket family the server listens on and the
// client dials. The connectors live in the tcp and unix subpackages, the
// multiplexer in mux and the framed streams in stream.
//
// Layering, bottom up:
//
//	net.Conn (tcp | unix)  ->  tls.Conn (optional)  ->  mux session  ->  stream.Stream per logical stream
//
// The http subpackage is not part of the data path. It serves the admin
// endpoints (metrics and health).
package transport
