package pubsub

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	publishCmd = &cobra.Command{
		Use:   "publish [topic] [value]...",
		Short: "Publishes values to every subscriber of a topic",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Context(cmd)
			defer cancel()

			typ := viper.GetString("type")
			values := make([]store.Value, 0, len(args)-1)
			for _, raw := range args[1:] {
				v, err := util.ParseValue(typ, raw)
				if err != nil {
					return err
				}
				values = append(values, v)
			}

			if err := rpcStore.Publish(ctx, args[0], values...); err != nil {
				return err
			}
			fmt.Println("published successfully")
			return nil
		},
	}
	subscribeCmd = &cobra.Command{
		Use:   "subscribe [topic]",
		Short: "Subscribes to a topic and prints every message until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sub, err := rpcStore.Subscribe(ctx, args[0])
			if err != nil {
				return err
			}
			defer sub.Close()

			fmt.Printf("subscribed to %s, id=%d\n", sub.Topic, sub.ID)
			for {
				values, err := sub.Recv(ctx)
				if errors.Is(err, io.EOF) {
					fmt.Println("subscription ended")
					return nil
				}
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				parts := make([]string, len(values))
				for i, v := range values {
					parts[i] = v.String()
				}
				fmt.Printf("[%s] %s\n", sub.Topic, strings.Join(parts, " "))
			}
		},
	}
	unsubscribeCmd = &cobra.Command{
		Use:   "unsubscribe [topic] [id]",
		Short: "Ends the subscription with the given id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Context(cmd)
			defer cancel()

			id, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("id must be a number: %w", err)
			}
			if err := rpcStore.Unsubscribe(ctx, args[0], uint32(id)); err != nil {
				return err
			}
			fmt.Println("unsubscribed successfully")
			return nil
		},
	}
)
