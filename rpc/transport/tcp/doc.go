// Package tcp implements the TCP connector. Accepted and dialed connections
// have Nagle's algorithm disabled and optionally TCP keep alive enabled.
package tcp
