package kv

import (
	"fmt"

	"github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Context(cmd)
			defer cancel()

			key := args[0]
			if v, ok, err := rpcStore.Get(ctx, table(), key); err != nil {
				return err
			} else {
				fmt.Printf("key=%s, found=%t, value=%s\n", key, ok, util.FormatValue(v, ok))
			}
			return nil
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key and prints the previous one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Context(cmd)
			defer cancel()

			value, err := util.ParseValue(viper.GetString("type"), args[1])
			if err != nil {
				return err
			}
			if prev, ok, err := rpcStore.Set(ctx, table(), args[0], value); err != nil {
				return err
			} else {
				fmt.Printf("set successfully, previous=%s\n", util.FormatValue(prev, ok))
			}
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Context(cmd)
			defer cancel()

			key := args[0]
			if prev, ok, err := rpcStore.Delete(ctx, table(), key); err != nil {
				return err
			} else if !ok {
				fmt.Printf("key=%s not found\n", key)
			} else {
				fmt.Printf("delete successfully, previous=%s\n", prev)
			}
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Context(cmd)
			defer cancel()

			key := args[0]
			if found, err := rpcStore.Has(ctx, table(), key); err != nil {
				return err
			} else {
				fmt.Printf("key=%s, found=%t\n", key, found)
			}
			return nil
		},
	}
	getAllCmd = &cobra.Command{
		Use:   "getall",
		Short: "Lists all pairs of the table in key order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := util.Context(cmd)
			defer cancel()

			pairs, err := rpcStore.GetAll(ctx, table())
			if err != nil {
				return err
			}
			for _, p := range pairs {
				fmt.Printf("%s=%s\n", p.Key, p.Value)
			}
			fmt.Printf("(%d pairs)\n", len(pairs))
			return nil
		},
	}
	mgetCmd = &cobra.Command{
		Use:   "mget [key]...",
		Short: "Reads the values of several keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Context(cmd)
			defer cancel()

			values, err := rpcStore.MultiGet(ctx, table(), args...)
			if err != nil {
				return err
			}
			printKeyValues(args, values)
			return nil
		},
	}
	msetCmd = &cobra.Command{
		Use:   "mset [key] [value] [[key] [value]]...",
		Short: "Sets several key value pairs and prints the previous values",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || len(args)%2 != 0 {
				return fmt.Errorf("expected key value pairs, got %d arguments", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Context(cmd)
			defer cancel()

			typ := viper.GetString("type")
			pairs := make([]store.Kvpair, 0, len(args)/2)
			keys := make([]string, 0, len(args)/2)
			for i := 0; i < len(args); i += 2 {
				value, err := util.ParseValue(typ, args[i+1])
				if err != nil {
					return err
				}
				pairs = append(pairs, store.NewKvpair(args[i], value))
				keys = append(keys, args[i])
			}

			prev, err := rpcStore.MultiSet(ctx, table(), pairs...)
			if err != nil {
				return err
			}
			fmt.Println("mset successfully, previous values:")
			printKeyValues(keys, prev)
			return nil
		},
	}
	mdelCmd = &cobra.Command{
		Use:   "mdel [key]...",
		Short: "Deletes several keys and prints the removed values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Context(cmd)
			defer cancel()

			removed, err := rpcStore.MultiDelete(ctx, table(), args...)
			if err != nil {
				return err
			}
			printKeyValues(args, removed)
			return nil
		},
	}
	mhasCmd = &cobra.Command{
		Use:   "mhas [key]...",
		Short: "Checks which of several keys exist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.Context(cmd)
			defer cancel()

			found, err := rpcStore.MultiHas(ctx, table(), args...)
			if err != nil {
				return err
			}
			for i, key := range args {
				fmt.Printf("key=%s, found=%t\n", key, found[i])
			}
			return nil
		},
	}
)

// printKeyValues prints keys next to their values, none values as not found
func printKeyValues(keys []string, values []store.Value) {
	for i, key := range keys {
		var v store.Value
		if i < len(values) {
			v = values[i]
		}
		fmt.Printf("key=%s, value=%s\n", key, util.FormatValue(v, !v.IsNone()))
	}
}
