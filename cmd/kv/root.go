package kv

import (
	"github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rpcStore *client.Store

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform key-value store operations",
		PersistentPreRunE:  setupKVClient,
		PersistentPostRunE: closeKVClient,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	util.SetupRPCClientFlags(KeyValueCommands)

	KeyValueCommands.PersistentFlags().String("table", "default", util.WrapString("Name of the table to operate on"))
	KeyValueCommands.PersistentFlags().String("type", "string", util.WrapString("Type of the values given on the command line: "+util.ValueTypes))

	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(getAllCmd)
	KeyValueCommands.AddCommand(mgetCmd)
	KeyValueCommands.AddCommand(msetCmd)
	KeyValueCommands.AddCommand(mdelCmd)
	KeyValueCommands.AddCommand(mhasCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient connects the RPC store client
func setupKVClient(cmd *cobra.Command, _ []string) error {
	s, err := util.ConnectStore(cmd)
	if err != nil {
		return err
	}
	rpcStore = s
	return nil
}

func closeKVClient(_ *cobra.Command, _ []string) error {
	if rpcStore == nil {
		return nil
	}
	return rpcStore.Client().Close()
}

func table() string {
	return viper.GetString("table")
}
