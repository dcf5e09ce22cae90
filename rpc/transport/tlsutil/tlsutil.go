package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// ALPN is the application protocol both sides negotiate
const ALPN = "kv"

// ServerOptions configure the listening side
type ServerOptions struct {
	CertFile string
	KeyFile  string
	// ClientCAFile enables mutual TLS; clients must present a certificate signed by it
	ClientCAFile string
}

// ClientOptions configure the dialing side
type ClientOptions struct {
	ServerName string
	// CAFile is trusted in addition to the system pool
	CAFile string
	// CertFile and KeyFile are the client identity for mutual TLS
	CertFile string
	KeyFile  string
	Insecure bool
}

// LoadServerTLSConfig creates the server tls.Config advertising ALPN "kv"
func LoadServerTLSConfig(opts ServerOptions) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{ALPN},
	}

	if opts.ClientCAFile != "" {
		pool, err := loadPool(x509.NewCertPool(), opts.ClientCAFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return tlsConfig, nil
}

// LoadClientTLSConfig creates the client tls.Config. The system CA bundle is
// always trusted, CAFile is added on top.
func LoadClientTLSConfig(opts ClientOptions) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		NextProtos: []string{ALPN},
		ServerName: opts.ServerName,
	}

	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		rootCAs = x509.NewCertPool()
	}
	if opts.CAFile != "" {
		if rootCAs, err = loadPool(rootCAs, opts.CAFile); err != nil {
			return nil, err
		}
	}
	tlsConfig.RootCAs = rootCAs

	if opts.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if opts.Insecure {
		tlsConfig.InsecureSkipVerify = true
	}

	return tlsConfig, nil
}

// VerifyALPN fails when the handshake did not settle on the kv protocol
func VerifyALPN(state tls.ConnectionState) error {
	if state.NegotiatedProtocol != ALPN {
		return fmt.Errorf("unexpected application protocol %q", state.NegotiatedProtocol)
	}
	return nil
}

func loadPool(pool *x509.CertPool, file string) (*x509.CertPool, error) {
	caPEM, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read CA file %s: %w", file, err)
	}
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("parse CA certificate from %s: invalid PEM data", file)
	}
	return pool, nil
}
