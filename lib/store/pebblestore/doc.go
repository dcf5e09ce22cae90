// Package pebblestore implements store.IStore on top of cockroachdb/pebble.
//
// Every (table, key) pair maps to one pebble key: the uvarint length of the
// table name, the table name, then the key. Values are stored in their
// protobuf wire encoding (store.AppendValue). Scans use prefix bounded
// iterators. Set and Delete read the previous value and write under a striped
// per-key mutex so the returned previous value is exact.
package pebblestore
