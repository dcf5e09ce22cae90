// Package tlsutil builds the tls.Config values for the server and the client.
// Both sides advertise the ALPN protocol "kv". Setting a client CA on the
// server enables mutual TLS.
package tlsutil
