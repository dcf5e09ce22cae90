// Package rpc provides the network layer of sKV. A client holds one
// connection to the server; the connection carries many multiplexed logical
// streams and every stream carries length-prefixed frames of commands and
// responses.
//
// The package is organized into several subpackages:
//
//   - common: The command request/response model, configuration structures
//     and logging.
//
//   - serializer: Frame body encodings (protobuf wire format by default, JSON
//     as a readable alternative).
//
//   - frame: The frame format (length header, gzip flag) and the Codec that
//     turns commands into frames.
//
//   - transport: Connectors (TCP, Unix sockets), TLS setup, the stream
//     multiplexer, the typed framed stream and the admin http endpoint.
//
//   - server: The command service (dispatch, hooks, pub/sub) and the
//     connection server driving it.
//
//   - client: Connection, logical streams, the subscription handshake and a
//     typed Store API.
package rpc
