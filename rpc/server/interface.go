package server

import (
	"context"

	"github.com/ValentinKolb/sKV/rpc/common"
)

// ResponseStream yields the responses produced by one executed command.
// Single-shot commands yield exactly one response, a subscription yields
// responses until it is closed.
type ResponseStream interface {
	// Recv returns the next response, io.EOF once the stream is exhausted
	Recv(ctx context.Context) (*common.CommandResponse, error)
	// Close releases the stream. For a subscription it marks the receiver as gone.
	Close()
}

// --------------------------------------------------------------------------
// Hooks
// --------------------------------------------------------------------------

// ReceivedHook runs before dispatch. The request must not be modified.
type ReceivedHook func(ctx context.Context, req *common.CommandRequest) error

// ExecutedHook runs for every response a command yields. The response must not be modified.
type ExecutedHook func(ctx context.Context, req *common.CommandRequest, resp *common.CommandResponse) error

// BeforeSendHook runs right before a response is handed to the transport and may rewrite it.
type BeforeSendHook func(ctx context.Context, req *common.CommandRequest, resp *common.CommandResponse) error

// AfterSendHook runs after the transport wrote a response.
type AfterSendHook func(ctx context.Context) error
