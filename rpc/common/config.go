package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

type StorageBackend string

const (
	StorageMem    StorageBackend = "mem"
	StoragePebble StorageBackend = "pebble"
)

// ServerConfig holds all configuration parameters for the server
type ServerConfig struct {
	// Listener settings
	Transport string // tcp or unix
	Endpoint  string

	// TLS; the listener speaks plain text when TLSCert is empty
	TLSCert     string
	TLSKey      string
	TLSClientCA string // enables mutual TLS

	// Storage
	Storage   StorageBackend
	DataDir   string
	SyncWrite bool

	// Wire format of the frame body (proto or json)
	Serializer string

	// Multiplexer settings
	MaxStreams int
	KeepAlive  time.Duration

	// Admin http endpoint (metrics, health); disabled when empty
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// TLSEnabled reports whether the server wraps connections in TLS
func (c *ServerConfig) TLSEnabled() bool {
	return c.TLSCert != ""
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Server")
	addField("Transport", c.Transport)
	addField("Endpoint", c.Endpoint)
	addField("Serializer", c.Serializer)
	addField("Max Streams", strconv.Itoa(c.MaxStreams))
	addField("Keep Alive", c.KeepAlive.String())

	addSection("TLS")
	if c.TLSEnabled() {
		addField("Certificate", c.TLSCert)
		addField("Key", c.TLSKey)
		if c.TLSClientCA != "" {
			addField("Client CA (mTLS)", c.TLSClientCA)
		}
	} else {
		addField("Enabled", "false")
	}

	addSection("Storage")
	addField("Backend", string(c.Storage))
	if c.Storage == StoragePebble {
		addField("Data Directory", c.DataDir)
		addField("Sync Writes", strconv.FormatBool(c.SyncWrite))
	}

	addSection("Observability")
	addField("Log Level", c.LogLevel)
	if c.MetricsEndpoint != "" {
		addField("Metrics Endpoint", c.MetricsEndpoint)
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Transport string
	Endpoint  string

	// TLS; the client dials plain text when TLSEnabled is false
	TLSEnabled    bool
	TLSServerName string
	TLSCA         string
	TLSCert       string // client identity for mutual TLS
	TLSKey        string
	TLSInsecure   bool

	Serializer    string
	TimeoutSecond int
	RetryCount    int
	KeepAlive     time.Duration

	LogLevel string
}

// Timeout returns the per request timeout
func (c *ClientConfig) Timeout() time.Duration {
	if c.TimeoutSecond <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TimeoutSecond) * time.Second
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Transport", c.Transport)
	addField("Endpoint", c.Endpoint)
	addField("Serializer", c.Serializer)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))

	addSection("TLS")
	addField("Enabled", strconv.FormatBool(c.TLSEnabled))
	if c.TLSEnabled {
		addField("Server Name", c.TLSServerName)
		if c.TLSCA != "" {
			addField("CA", c.TLSCA)
		}
		if c.TLSCert != "" {
			addField("Client Certificate", c.TLSCert)
		}
		addField("Skip Verify", strconv.FormatBool(c.TLSInsecure))
	}

	return sb.String()
}
