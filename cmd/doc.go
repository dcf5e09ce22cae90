// Package cmd implements the command-line interface of sKV. It provides a
// hierarchical command structure with operations for running the server and
// interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts and configures the sKV server
//   - kv: Table operations (get, set, del, has, getall, mget, mset, mdel, mhas) and a perf tool
//   - pubsub: Topic operations (publish, subscribe, unsubscribe)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set through an environment variable SKV_<FLAG> or a
// .env file. See skv -help for a list of all commands.
package cmd
