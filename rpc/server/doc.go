// Package server implements the sKV server: the command service and the
// network server that feeds it.
//
// The Service executes one CommandRequest at a time and returns a
// ResponseStream. Table commands run synchronously against the store.IStore
// and yield exactly one response. Subscribe yields the subscription id as its
// first response and then every response published on the topic. Publish
// returns immediately while delivery continues in the background.
//
// Four hook points surround dispatch, each running its hooks in registration
// order:
//
//   - on-received: before dispatch, the request must not be modified
//   - on-executed: for every response, which must not be modified
//   - on-before-send: for every response, which may be rewritten
//   - on-after-send: after the transport wrote a response
//
// A failing or panicking hook is logged and never aborts dispatch.
//
// The Server listens through a tcp or unix connector, optionally wraps each
// connection in TLS (ALPN "kv"), runs a multiplexing session per connection
// and serves every logical stream in its own goroutine. Requests on one logical
// stream are answered in order. A subscription occupies its logical stream
// until it ends.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Transport: "tcp",
//	  Endpoint:  ":7070",
//	  Storage:   common.StorageMem,
//	}
//
//	st, err := server.OpenStore(config)
//	if err != nil {
//	  panic(err)
//	}
//	s, err := server.NewServer(config, st,
//	  server.WithOnReceived(func(ctx context.Context, req *common.CommandRequest) error {
//	    log.Println("received", req.Kind())
//	    return nil
//	  }),
//	)
//	if err != nil {
//	  panic(err)
//	}
//	if err := s.Serve(); !errors.Is(err, server.ErrServerClosed) {
//	  panic(err)
//	}
package server
