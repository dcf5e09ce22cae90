// Package common provides the data structures shared by the client and the
// server: the command model carried in frames, the configuration structs and
// the logger factory.
//
// Key Components:
//
//   - CommandRequest: a closed set of command variants (Get, Set, GetAll,
//     MultiGet, MultiSet, Delete, MultiDelete, Exists, MultiExists, Subscribe,
//     Unsubscribe, Publish) held in the Data field. Factory functions build each
//     variant.
//
//   - CommandResponse: status, message, values and pairs. Error responses are
//     built from the store error taxonomy with NewErrorResponse.
//
//   - ServerConfig / ClientConfig: settings for the listener, TLS, storage,
//     multiplexer and logging, with a readable String() dump.
//
//   - Logger: an implementation of dragonboat's logger.ILogger producing
//     "LEVEL | name | message" lines. InitLoggers installs it.
package common
