// Package unix implements the Unix domain socket connector. Listen removes a
// stale socket file before binding.
package unix
