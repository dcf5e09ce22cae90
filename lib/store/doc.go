// Package store defines the table oriented key-value contract the command service
// runs against, together with the data model shared by every layer of the server.
//
// Key Components:
//
//   - IStore: Get, Set, Contains, Delete, GetAll and Iterate over (table, key) pairs.
//     Set and Delete return the value they replaced so callers can report it.
//
//   - Value and Kvpair: a tagged union of string, binary, integer, float and bool,
//     and the (key, value) pair produced by table scans. The zero Value is the
//     absent marker.
//
//   - Error: one error type with a Kind for every failure class (protocol, storage,
//     not found, invalid command, conversion, connection, internal). Status maps
//     the kind to the numeric response status.
//
//   - AppendValue / ConsumeValue: the protobuf wire encoding of a Value, shared by
//     the request serializer and the on-disk backend.
//
// Implementations:
//
//   - memstore: in-memory tables (xsync map of ordered skipmaps)
//   - pebblestore: on-disk tables on top of cockroachdb/pebble
package store
