package serve

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/ValentinKolb/sKV/rpc/server"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Logger = logger.GetLogger("server")

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the sKV server",
		Long:    `Start the sKV server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is SKV_<flag> (e.g. SKV_DATA_DIR=/var/lib/skv)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)

	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the server will listen (e.g. localhost:8080, /tmp/skv.sock, ...)"))

	key = "tls-cert"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("PEM certificate of the server. The server speaks plain text when no certificate is given"))

	key = "tls-key"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("PEM key of the server certificate"))

	key = "tls-client-ca"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("PEM CA used to verify client certificates. Setting it enables mutual TLS"))

	key = "storage"
	ServeCmd.PersistentFlags().String(key, string(common.StorageMem), cmdUtil.WrapString("Storage backend (mem, pebble)"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("(pebble) Directory of the on-disk database"))

	key = "sync-write"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("(pebble) Sync every write to disk before answering"))

	key = "max-streams"
	ServeCmd.PersistentFlags().Int(key, 256, cmdUtil.WrapString("Maximum number of concurrent logical streams per connection"))

	key = "keep-alive"
	ServeCmd.PersistentFlags().Duration(key, 30*time.Second, cmdUtil.WrapString("Interval of the keep alive pings on each connection (0 disables them)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address of the admin http server exposing /metrics and /healthz (disabled when empty)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.Transport = viper.GetString("transport")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.Serializer = viper.GetString("serializer")
	serveCmdConfig.TLSCert = viper.GetString("tls-cert")
	serveCmdConfig.TLSKey = viper.GetString("tls-key")
	serveCmdConfig.TLSClientCA = viper.GetString("tls-client-ca")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.SyncWrite = viper.GetBool("sync-write")
	serveCmdConfig.MaxStreams = viper.GetInt("max-streams")
	serveCmdConfig.KeepAlive = viper.GetDuration("keep-alive")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	switch storage := common.StorageBackend(viper.GetString("storage")); storage {
	case common.StorageMem, common.StoragePebble:
		serveCmdConfig.Storage = storage
	default:
		return fmt.Errorf("invalid storage backend: %s (expected one of: mem, pebble)", storage)
	}

	if serveCmdConfig.TLSCert != "" && serveCmdConfig.TLSKey == "" {
		return fmt.Errorf("tls-key is required when tls-cert is set")
	}
	if serveCmdConfig.TLSClientCA != "" && !serveCmdConfig.TLSEnabled() {
		return fmt.Errorf("tls-client-ca requires tls-cert and tls-key")
	}

	return common.InitLoggers(serveCmdConfig.LogLevel)
}

// run starts the sKV server and shuts it down on SIGINT or SIGTERM
func run(cmd *cobra.Command, _ []string) error {
	st, err := server.OpenStore(*serveCmdConfig)
	if err != nil {
		return err
	}

	serv, err := server.NewServer(*serveCmdConfig, st)
	if err != nil {
		_ = st.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- serv.Serve() }()

	select {
	case err := <-errCh:
		_ = serv.Shutdown()
		return err
	case <-ctx.Done():
		Logger.Infof("Received signal, shutting down")
	}

	if err := serv.Shutdown(); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, server.ErrServerClosed) {
		return err
	}
	return nil
}
