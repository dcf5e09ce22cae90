package server

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/sKV/rpc/common"
)

type hooks struct {
	received   []ReceivedHook
	executed   []ExecutedHook
	beforeSend []BeforeSendHook
	afterSend  []AfterSendHook
}

// Option configures a Service
type Option func(*Service)

// WithOnReceived registers a hook that runs before a request is dispatched
func WithOnReceived(fn ReceivedHook) Option {
	return func(s *Service) { s.hooks.received = append(s.hooks.received, fn) }
}

// WithOnExecuted registers a hook that observes every response
func WithOnExecuted(fn ExecutedHook) Option {
	return func(s *Service) { s.hooks.executed = append(s.hooks.executed, fn) }
}

// WithOnBeforeSend registers a hook that may rewrite every response before it is sent
func WithOnBeforeSend(fn BeforeSendHook) Option {
	return func(s *Service) { s.hooks.beforeSend = append(s.hooks.beforeSend, fn) }
}

// WithOnAfterSend registers a hook that runs after every written response
func WithOnAfterSend(fn AfterSendHook) Option {
	return func(s *Service) { s.hooks.afterSend = append(s.hooks.afterSend, fn) }
}

// runHook calls fn and turns a panic into an error. Hook failures never abort dispatch.
func runHook(point string, index int, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}()
	if err != nil {
		serviceLogger.Errorf("%s hook %d failed: %v", point, index, err)
	}
}

func (h *hooks) onReceived(ctx context.Context, req *common.CommandRequest) {
	for i, fn := range h.received {
		runHook("on-received", i, func() error { return fn(ctx, req) })
	}
}

func (h *hooks) onExecuted(ctx context.Context, req *common.CommandRequest, resp *common.CommandResponse) {
	for i, fn := range h.executed {
		runHook("on-executed", i, func() error { return fn(ctx, req, resp) })
	}
}

func (h *hooks) onBeforeSend(ctx context.Context, req *common.CommandRequest, resp *common.CommandResponse) {
	for i, fn := range h.beforeSend {
		runHook("on-before-send", i, func() error { return fn(ctx, req, resp) })
	}
}

func (h *hooks) onAfterSend(ctx context.Context) {
	for i, fn := range h.afterSend {
		runHook("on-after-send", i, func() error { return fn(ctx) })
	}
}
