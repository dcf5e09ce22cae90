// Package memstore implements store.IStore in memory.
//
// Tables live in an xsync.MapOf keyed by table name. Each table is a
// skipmap ordered by key, so GetAll and Iterate return keys in ascending
// order without sorting. Set and Delete hold a striped per-key mutex
// (util.KeyLocks) across their load and store so the returned previous
// value is exact under concurrent writers.
package memstore
