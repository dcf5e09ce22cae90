// Package client implements the sKV client.
//
// Dial opens one connection (tcp or unix, optionally TLS with ALPN "kv") and
// runs the client side of the multiplexer on it. Every logical stream opened
// with OpenStream is independent: a slow or failed stream does not affect
// the others.
//
// Stream.Execute sends one request and waits for its response.
// Stream.ExecuteStreaming sends a streaming request, reads the subscription id
// handshake and hands out the remaining responses through StreamResult.
//
// Store is a typed API on top of the client. Each call opens its own logical
// stream, so a Store can be shared by many goroutines.
//
// Usage Example:
//
//	c, err := client.Dial(ctx, common.ClientConfig{Transport: "tcp", Endpoint: "localhost:7070"})
//	if err != nil {
//	  panic(err)
//	}
//	defer c.Close()
//
//	kv := client.NewStore(c)
//	prev, existed, err := kv.Set(ctx, "users", "u1", store.StringValue("alice"))
package client
