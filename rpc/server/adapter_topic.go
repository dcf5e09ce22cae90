package server

import (
	"context"

	"github.com/ValentinKolb/sKV/lib/pubsub"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/rpc/common"
)

// subscribe registers a subscription and streams the id handshake followed by every published response
func (s *Service) subscribe(r *common.Subscribe) ResponseStream {
	sub := s.broker.Subscribe(r.Topic)
	return &subscriptionStream{
		sub:   sub,
		hello: common.NewValuesResponse(store.IntValue(int64(sub.ID))),
	}
}

func (s *Service) unsubscribe(r *common.Unsubscribe) *common.CommandResponse {
	id, err := s.broker.Unsubscribe(r.Topic, r.ID)
	if err != nil {
		return common.NewErrorResponse(err)
	}
	return common.NewValuesResponse(store.IntValue(int64(id)))
}

// publish hands the values to the broadcaster and returns without waiting for delivery
func (s *Service) publish(r *common.Publish) *common.CommandResponse {
	s.broker.Publish(r.Topic, common.NewValuesResponse(r.Values...))
	return common.NewOKResponse()
}

// subscriptionStream yields the handshake first, then the deliveries of the subscription
type subscriptionStream struct {
	sub   *pubsub.Subscription[*common.CommandResponse]
	hello *common.CommandResponse
}

func (s *subscriptionStream) Recv(ctx context.Context) (*common.CommandResponse, error) {
	if hello := s.hello; hello != nil {
		s.hello = nil
		return hello, nil
	}
	msg, err := s.sub.Recv(ctx)
	if err != nil {
		return nil, err
	}
	// copy per subscriber, before-send hooks may rewrite it
	cp := *msg
	return &cp, nil
}

func (s *subscriptionStream) Close() { s.sub.Close() }
