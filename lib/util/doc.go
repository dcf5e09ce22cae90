// Package util contains small helpers shared by the storage backends:
// a seeded FNV-1a string hash and a striped per-key lock table built on it.
package util
