package util

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/rpc/client"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables read by the cli
	EnvPrefix = "skv"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and makes viper read SKV_* environment variables
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "endpoint"
	cmd.PersistentFlags().String(key, "localhost:8080", WrapString("The address of the sKV server (host:port, or a socket path for the unix transport)"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of a single request"))

	key = "retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to retry connecting to the server"))

	key = "keep-alive"
	cmd.PersistentFlags().Duration(key, 30*time.Second, WrapString("Interval of the keep alive pings on the connection (0 disables them)"))

	key = "tls"
	cmd.PersistentFlags().Bool(key, false, WrapString("Connect using TLS"))

	key = "tls-server-name"
	cmd.PersistentFlags().String(key, "", WrapString("Server name to verify the certificate against (defaults to the endpoint host)"))

	key = "tls-ca"
	cmd.PersistentFlags().String(key, "", WrapString("PEM file with the CA that signed the server certificate (defaults to the system pool)"))

	key = "tls-cert"
	cmd.PersistentFlags().String(key, "", WrapString("PEM client certificate for mutual TLS"))

	key = "tls-key"
	cmd.PersistentFlags().String(key, "", WrapString("PEM key of the client certificate"))

	key = "tls-insecure"
	cmd.PersistentFlags().Bool(key, false, WrapString("Skip verification of the server certificate (testing only)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("Level of the client logs (debug, info, warn, error)"))
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		Transport:     viper.GetString("transport"),
		Endpoint:      viper.GetString("endpoint"),
		TLSEnabled:    viper.GetBool("tls"),
		TLSServerName: viper.GetString("tls-server-name"),
		TLSCA:         viper.GetString("tls-ca"),
		TLSCert:       viper.GetString("tls-cert"),
		TLSKey:        viper.GetString("tls-key"),
		TLSInsecure:   viper.GetBool("tls-insecure"),
		Serializer:    viper.GetString("serializer"),
		TimeoutSecond: viper.GetInt("timeout"),
		RetryCount:    viper.GetInt("retries"),
		KeepAlive:     viper.GetDuration("keep-alive"),
		LogLevel:      viper.GetString("log-level"),
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// ConnectStore binds the flags of cmd, sets up logging and dials the server
func ConnectStore(cmd *cobra.Command) (*client.Store, error) {
	if err := BindCommandFlags(cmd); err != nil {
		return nil, err
	}

	config := GetClientConfig()
	if err := common.InitLoggers(config.LogLevel); err != nil {
		return nil, err
	}

	c, err := client.Dial(cmd.Context(), *config)
	if err != nil {
		return nil, err
	}
	return client.NewStore(c), nil
}

// Context returns the command context bounded by the configured request timeout
func Context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, GetClientConfig().Timeout())
}

// --------------------------------------------------------------------------
// Values
// --------------------------------------------------------------------------

// ValueTypes lists the names accepted by ParseValue
const ValueTypes = "string, int, float, bool, binary (base64)"

// ParseValue converts a command line argument into a value of the given type
func ParseValue(typ, raw string) (store.Value, error) {
	switch strings.ToLower(typ) {
	case "string", "":
		return store.StringValue(raw), nil
	case "int":
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return store.Value{}, fmt.Errorf("invalid int %q: %w", raw, err)
		}
		return store.IntValue(i), nil
	case "float":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return store.Value{}, fmt.Errorf("invalid float %q: %w", raw, err)
		}
		return store.FloatValue(f), nil
	case "bool":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return store.Value{}, fmt.Errorf("invalid bool %q: %w", raw, err)
		}
		return store.BoolValue(b), nil
	case "binary":
		b, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return store.Value{}, fmt.Errorf("invalid base64 %q: %w", raw, err)
		}
		return store.BinaryValue(b), nil
	default:
		return store.Value{}, fmt.Errorf("invalid value type %s (expected one of: %s)", typ, ValueTypes)
	}
}

// FormatValue renders a value for terminal output
func FormatValue(v store.Value, found bool) string {
	if !found {
		return "(not found)"
	}
	return v.String()
}
