package client

import (
	"context"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/rpc/common"
)

// Store is the typed API on top of a Client. Every call runs on its own
// logical stream, so calls from many goroutines proceed concurrently over the
// one connection.
type Store struct {
	c *Client
}

// NewStore wraps c. The store does not own the client.
func NewStore(c *Client) *Store {
	return &Store{c: c}
}

// Client returns the underlying connection
func (s *Store) Client() *Client { return s.c }

// call runs req and turns an unexpected status into an error
func (s *Store) call(ctx context.Context, req *common.CommandRequest, accept ...uint32) (*common.CommandResponse, error) {
	resp, err := s.c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Status == common.StatusOK {
		return resp, nil
	}
	for _, status := range accept {
		if resp.Status == status {
			return resp, nil
		}
	}
	return nil, resp.Err()
}

// prevValue returns the value of a response that holds an optional previous
// value. An empty value list means there was none; a stored none value is
// still reported as present.
func prevValue(resp *common.CommandResponse) (store.Value, bool) {
	if len(resp.Values) == 0 {
		return store.Value{}, false
	}
	return resp.Values[0], true
}

// padValues returns exactly n values, none where the server sent fewer
func padValues(values []store.Value, n int) []store.Value {
	if len(values) == n {
		return values
	}
	out := make([]store.Value, n)
	copy(out, values)
	return out
}

// Get returns the value of key. A missing key is reported through the boolean.
func (s *Store) Get(ctx context.Context, table, key string) (store.Value, bool, error) {
	resp, err := s.call(ctx, common.NewGetRequest(table, key), common.StatusNotFound)
	if err != nil {
		return store.Value{}, false, err
	}
	if resp.Status == common.StatusNotFound {
		return store.Value{}, false, nil
	}
	v, _ := prevValue(resp)
	return v, true, nil
}

// Set stores value and returns the value it replaced, if any
func (s *Store) Set(ctx context.Context, table, key string, value store.Value) (store.Value, bool, error) {
	resp, err := s.call(ctx, common.NewSetRequest(table, key, value))
	if err != nil {
		return store.Value{}, false, err
	}
	prev, ok := prevValue(resp)
	return prev, ok, nil
}

// Delete removes key and returns the removed value, if any
func (s *Store) Delete(ctx context.Context, table, key string) (store.Value, bool, error) {
	resp, err := s.call(ctx, common.NewDeleteRequest(table, key), common.StatusNotFound)
	if err != nil {
		return store.Value{}, false, err
	}
	if resp.Status == common.StatusNotFound {
		return store.Value{}, false, nil
	}
	prev, _ := prevValue(resp)
	return prev, true, nil
}

func (s *Store) Has(ctx context.Context, table, key string) (bool, error) {
	resp, err := s.call(ctx, common.NewExistsRequest(table, key))
	if err != nil {
		return false, err
	}
	if len(resp.Values) == 0 {
		return false, store.NewInternalError("exists: empty response")
	}
	return resp.Values[0].AsBool()
}

// GetAll returns every pair of table in ascending key order
func (s *Store) GetAll(ctx context.Context, table string) ([]store.Kvpair, error) {
	resp, err := s.call(ctx, common.NewGetAllRequest(table))
	if err != nil {
		return nil, err
	}
	return resp.Pairs, nil
}

// MultiGet returns one value per key, none for keys that do not exist
func (s *Store) MultiGet(ctx context.Context, table string, keys ...string) ([]store.Value, error) {
	resp, err := s.call(ctx, common.NewMultiGetRequest(table, keys...), common.StatusNoContent)
	if err != nil {
		return nil, err
	}
	return padValues(resp.Values, len(keys)), nil
}

// MultiSet stores every pair and returns the previous value per pair, none for new keys
func (s *Store) MultiSet(ctx context.Context, table string, pairs ...store.Kvpair) ([]store.Value, error) {
	resp, err := s.call(ctx, common.NewMultiSetRequest(table, pairs...))
	if err != nil {
		return nil, err
	}
	return padValues(resp.Values, len(pairs)), nil
}

// MultiDelete removes every key and returns the removed value per key, none for absent keys
func (s *Store) MultiDelete(ctx context.Context, table string, keys ...string) ([]store.Value, error) {
	resp, err := s.call(ctx, common.NewMultiDeleteRequest(table, keys...), common.StatusNoContent)
	if err != nil {
		return nil, err
	}
	return padValues(resp.Values, len(keys)), nil
}

func (s *Store) MultiHas(ctx context.Context, table string, keys ...string) ([]bool, error) {
	resp, err := s.call(ctx, common.NewMultiExistsRequest(table, keys...))
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(keys))
	for i, v := range padValues(resp.Values, len(keys)) {
		if v.IsNone() {
			continue
		}
		if out[i], err = v.AsBool(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Pub/sub
// --------------------------------------------------------------------------

// Publish sends values to every subscriber of topic. It returns once the
// server accepted the message, not when it was delivered.
func (s *Store) Publish(ctx context.Context, topic string, values ...store.Value) error {
	_, err := s.call(ctx, common.NewPublishRequest(topic, values...))
	return err
}

// Unsubscribe ends the subscription id on topic
func (s *Store) Unsubscribe(ctx context.Context, topic string, id uint32) error {
	_, err := s.call(ctx, common.NewUnsubscribeRequest(topic, id))
	return err
}

// Subscription receives the values published on one topic
type Subscription struct {
	ID     uint32
	Topic  string
	result *StreamResult
}

// Subscribe opens a subscription on its own logical stream
func (s *Store) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	hctx, cancel := s.c.withTimeout(ctx)
	defer cancel()

	st, err := s.c.OpenStream(hctx)
	if err != nil {
		return nil, err
	}

	result, err := st.ExecuteStreaming(hctx, common.NewSubscribeRequest(topic))
	if err != nil {
		st.Close()
		return nil, err
	}
	return &Subscription{ID: result.ID, Topic: topic, result: result}, nil
}

// Recv blocks until the next published values arrive. io.EOF means the
// subscription has ended.
func (sub *Subscription) Recv(ctx context.Context) ([]store.Value, error) {
	resp, err := sub.result.Recv(ctx)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// Close drops the subscription stream. The server forgets the subscription
// once it notices the stream is gone.
func (sub *Subscription) Close() error {
	return sub.result.Close()
}
