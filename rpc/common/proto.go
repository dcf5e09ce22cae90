package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ValentinKolb/sKV/lib/store"
)

// --------------------------------------------------------------------------
// Request Structure
// --------------------------------------------------------------------------

// CommandRequest carries exactly one command in Data.
// A request with a nil Data is invalid and answered with status 400.
type CommandRequest struct {
	Data RequestData
}

// RequestData is implemented by every command variant
type RequestData interface {
	Kind() RequestKind
}

type Get struct {
	Table string `json:"table"`
	Key   string `json:"key"`
}

type Set struct {
	Table string       `json:"table"`
	Pair  store.Kvpair `json:"pair"`
}

type GetAll struct {
	Table string `json:"table"`
}

type MultiGet struct {
	Table string   `json:"table"`
	Keys  []string `json:"keys,omitempty"`
}

type MultiSet struct {
	Table string         `json:"table"`
	Pairs []store.Kvpair `json:"pairs,omitempty"`
}

type Delete struct {
	Table string `json:"table"`
	Key   string `json:"key"`
}

type MultiDelete struct {
	Table string   `json:"table"`
	Keys  []string `json:"keys,omitempty"`
}

type Exists struct {
	Table string `json:"table"`
	Key   string `json:"key"`
}

type MultiExists struct {
	Table string   `json:"table"`
	Keys  []string `json:"keys,omitempty"`
}

type Subscribe struct {
	Topic string `json:"topic"`
}

type Unsubscribe struct {
	Topic string `json:"topic"`
	ID    uint32 `json:"id"`
}

type Publish struct {
	Topic  string        `json:"topic"`
	Values []store.Value `json:"values,omitempty"`
}

func (*Get) Kind() RequestKind         { return ReqKGet }
func (*Set) Kind() RequestKind         { return ReqKSet }
func (*GetAll) Kind() RequestKind      { return ReqKGetAll }
func (*MultiGet) Kind() RequestKind    { return ReqKMultiGet }
func (*MultiSet) Kind() RequestKind    { return ReqKMultiSet }
func (*Delete) Kind() RequestKind      { return ReqKDelete }
func (*MultiDelete) Kind() RequestKind { return ReqKMultiDelete }
func (*Exists) Kind() RequestKind      { return ReqKExists }
func (*MultiExists) Kind() RequestKind { return ReqKMultiExists }
func (*Subscribe) Kind() RequestKind   { return ReqKSubscribe }
func (*Unsubscribe) Kind() RequestKind { return ReqKUnsubscribe }
func (*Publish) Kind() RequestKind     { return ReqKPublish }

// Kind returns the kind of the carried command, ReqKNone if there is none
func (r *CommandRequest) Kind() RequestKind {
	if r == nil || r.Data == nil {
		return ReqKNone
	}
	return r.Data.Kind()
}

// --------------------------------------------------------------------------
// Request Factory Functions
// --------------------------------------------------------------------------

func NewGetRequest(table, key string) *CommandRequest {
	return &CommandRequest{Data: &Get{Table: table, Key: key}}
}

func NewSetRequest(table, key string, value store.Value) *CommandRequest {
	return &CommandRequest{Data: &Set{Table: table, Pair: store.NewKvpair(key, value)}}
}

func NewGetAllRequest(table string) *CommandRequest {
	return &CommandRequest{Data: &GetAll{Table: table}}
}

func NewMultiGetRequest(table string, keys ...string) *CommandRequest {
	return &CommandRequest{Data: &MultiGet{Table: table, Keys: keys}}
}

func NewMultiSetRequest(table string, pairs ...store.Kvpair) *CommandRequest {
	return &CommandRequest{Data: &MultiSet{Table: table, Pairs: pairs}}
}

func NewDeleteRequest(table, key string) *CommandRequest {
	return &CommandRequest{Data: &Delete{Table: table, Key: key}}
}

func NewMultiDeleteRequest(table string, keys ...string) *CommandRequest {
	return &CommandRequest{Data: &MultiDelete{Table: table, Keys: keys}}
}

func NewExistsRequest(table, key string) *CommandRequest {
	return &CommandRequest{Data: &Exists{Table: table, Key: key}}
}

func NewMultiExistsRequest(table string, keys ...string) *CommandRequest {
	return &CommandRequest{Data: &MultiExists{Table: table, Keys: keys}}
}

func NewSubscribeRequest(topic string) *CommandRequest {
	return &CommandRequest{Data: &Subscribe{Topic: topic}}
}

func NewUnsubscribeRequest(topic string, id uint32) *CommandRequest {
	return &CommandRequest{Data: &Unsubscribe{Topic: topic, ID: id}}
}

func NewPublishRequest(topic string, values ...store.Value) *CommandRequest {
	return &CommandRequest{Data: &Publish{Topic: topic, Values: values}}
}

// --------------------------------------------------------------------------
// Response Structure
// --------------------------------------------------------------------------

const (
	StatusOK         uint32 = 200
	StatusNoContent  uint32 = 204
	StatusBadRequest uint32 = 400
	StatusNotFound   uint32 = 404
	StatusInternal   uint32 = 500
)

// CommandResponse is the answer to a command, or one element of a subscription stream.
// Status 200 with empty Values and Pairs means "no previous value".
type CommandResponse struct {
	Status  uint32         `json:"status"`
	Message string         `json:"message,omitempty"`
	Values  []store.Value  `json:"values,omitempty"`
	Pairs   []store.Kvpair `json:"pairs,omitempty"`
}

// IsOK reports whether the status is in the 2xx range
func (r *CommandResponse) IsOK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Err returns nil for a successful response and a *ResponseError otherwise
func (r *CommandResponse) Err() error {
	if r.IsOK() {
		return nil
	}
	return &ResponseError{Status: r.Status, Message: r.Message}
}

func (r *CommandResponse) String() string {
	return fmt.Sprintf("{status=%d message=%q values=%v pairs=%v}", r.Status, r.Message, r.Values, r.Pairs)
}

// ResponseError is a failed response as seen by a client
type ResponseError struct {
	Status  uint32
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a not found error, either local or from a response
func IsNotFound(err error) bool {
	var re *ResponseError
	if errors.As(err, &re) {
		return re.Status == StatusNotFound
	}
	return store.IsNotFound(err)
}

// --------------------------------------------------------------------------
// Response Factory Functions
// --------------------------------------------------------------------------

// NewOKResponse creates an empty success response
func NewOKResponse() *CommandResponse {
	return &CommandResponse{Status: StatusOK}
}

func NewValuesResponse(values ...store.Value) *CommandResponse {
	return &CommandResponse{Status: StatusOK, Values: values}
}

func NewPairsResponse(pairs []store.Kvpair) *CommandResponse {
	return &CommandResponse{Status: StatusOK, Pairs: pairs}
}

// NewErrorResponse maps err to a status code using the store error taxonomy
func NewErrorResponse(err error) *CommandResponse {
	status := StatusInternal
	if e, ok := err.(interface{ Status() uint32 }); ok {
		status = e.Status()
	} else if kind := store.KindOf(err); kind != store.ErrInternal {
		status = (&store.Error{Kind: kind}).Status()
	}
	return &CommandResponse{Status: status, Message: err.Error()}
}

// --------------------------------------------------------------------------
// Request Kinds
// --------------------------------------------------------------------------

type RequestKind uint8

const (
	ReqKNone RequestKind = iota
	ReqKGet
	ReqKSet
	ReqKGetAll
	ReqKMultiGet
	ReqKMultiSet
	ReqKDelete
	ReqKMultiDelete
	ReqKExists
	ReqKMultiExists
	ReqKSubscribe
	ReqKUnsubscribe
	ReqKPublish
)

var requestKindNames = map[RequestKind]string{
	ReqKNone:        "none",
	ReqKGet:         "get",
	ReqKSet:         "set",
	ReqKGetAll:      "getall",
	ReqKMultiGet:    "mget",
	ReqKMultiSet:    "mset",
	ReqKDelete:      "del",
	ReqKMultiDelete: "mdel",
	ReqKExists:      "exists",
	ReqKMultiExists: "mexists",
	ReqKSubscribe:   "subscribe",
	ReqKUnsubscribe: "unsubscribe",
	ReqKPublish:     "publish",
}

func (k RequestKind) String() string {
	if name, ok := requestKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", k)
}

// MarshalJSON renders the kind as its name
func (k RequestKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// newRequestData returns an empty variant for kind
func newRequestData(kind RequestKind) RequestData {
	switch kind {
	case ReqKGet:
		return &Get{}
	case ReqKSet:
		return &Set{}
	case ReqKGetAll:
		return &GetAll{}
	case ReqKMultiGet:
		return &MultiGet{}
	case ReqKMultiSet:
		return &MultiSet{}
	case ReqKDelete:
		return &Delete{}
	case ReqKMultiDelete:
		return &MultiDelete{}
	case ReqKExists:
		return &Exists{}
	case ReqKMultiExists:
		return &MultiExists{}
	case ReqKSubscribe:
		return &Subscribe{}
	case ReqKUnsubscribe:
		return &Unsubscribe{}
	case ReqKPublish:
		return &Publish{}
	default:
		return nil
	}
}

// --------------------------------------------------------------------------
// JSON (oneof style: {"get": {"table": "t", "key": "k"}})
// --------------------------------------------------------------------------

func (r *CommandRequest) MarshalJSON() ([]byte, error) {
	if r.Data == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]RequestData{r.Data.Kind().String(): r.Data})
}

func (r *CommandRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Data = nil
	if len(raw) == 0 {
		return nil
	}
	if len(raw) > 1 {
		return fmt.Errorf("request carries %d commands, expected one", len(raw))
	}
	for name, body := range raw {
		for kind, kindName := range requestKindNames {
			if kindName != name || kind == ReqKNone {
				continue
			}
			d := newRequestData(kind)
			if err := json.Unmarshal(body, d); err != nil {
				return fmt.Errorf("invalid %s command: %w", name, err)
			}
			r.Data = d
			return nil
		}
		return fmt.Errorf("unknown command %q", name)
	}
	return nil
}
