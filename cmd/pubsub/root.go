package pubsub

import (
	"github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcStore *client.Store

	// PubSubCommands represents the publish/subscribe command group
	PubSubCommands = &cobra.Command{
		Use:                "pubsub",
		Short:              "Publish to and subscribe on topics",
		PersistentPreRunE:  setupPubSubClient,
		PersistentPostRunE: closePubSubClient,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	util.SetupRPCClientFlags(PubSubCommands)

	PubSubCommands.PersistentFlags().String("type", "string", util.WrapString("Type of the values given on the command line: "+util.ValueTypes))

	PubSubCommands.AddCommand(publishCmd)
	PubSubCommands.AddCommand(subscribeCmd)
	PubSubCommands.AddCommand(unsubscribeCmd)
}

func setupPubSubClient(cmd *cobra.Command, _ []string) error {
	s, err := util.ConnectStore(cmd)
	if err != nil {
		return err
	}
	rpcStore = s
	return nil
}

func closePubSubClient(_ *cobra.Command, _ []string) error {
	if rpcStore == nil {
		return nil
	}
	return rpcStore.Client().Close()
}
