package store

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error Kinds
// --------------------------------------------------------------------------

// ErrKind classifies an Error
type ErrKind uint8

const (
	ErrInternal       ErrKind = iota // catch-all
	ErrProtocol                      // malformed or oversized frame, decode failure, truncated read
	ErrStorage                       // backend read/write failure
	ErrNotFound                      // missing key or missing subscription
	ErrInvalidCommand                // request carries no recognized command
	ErrConversion                    // value has a different type than requested
	ErrConnection                    // tls, handshake or socket failure
)

func (k ErrKind) String() string {
	switch k {
	case ErrProtocol:
		return "ProtocolError"
	case ErrStorage:
		return "StorageError"
	case ErrNotFound:
		return "NotFoundError"
	case ErrInvalidCommand:
		return "InvalidCommandError"
	case ErrConversion:
		return "ConversionError"
	case ErrConnection:
		return "ConnectionError"
	default:
		return "InternalError"
	}
}

// --------------------------------------------------------------------------
// Error
// --------------------------------------------------------------------------

// Error is the error type shared by the store, the command service and the transport.
// Op, Table and Key are only set where they apply (storage and not found errors).
type Error struct {
	Kind  ErrKind
	Op    string
	Table string
	Key   string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrNotFound:
		if e.Table == "" {
			return fmt.Sprintf("Not found for key: %s", e.Key)
		}
		return fmt.Sprintf("Not found for table: %s, key: %s", e.Table, e.Key)
	case ErrStorage:
		return fmt.Sprintf("Cannot process command %s with table: %s, key: %s. Error: %s", e.Op, e.Table, e.Key, e.detail())
	case ErrInvalidCommand:
		return fmt.Sprintf("Cannot parse command: `%s`", e.detail())
	case ErrConversion:
		return fmt.Sprintf("Cannot convert value %s", e.detail())
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.detail())
	}
}

func (e *Error) detail() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the error to the response status code
func (e *Error) Status() uint32 {
	switch e.Kind {
	case ErrNotFound:
		return 404
	case ErrInvalidCommand, ErrProtocol:
		return 400
	default:
		return 500
	}
}

// --------------------------------------------------------------------------
// Constructors
// --------------------------------------------------------------------------

func NewNotFoundError(table, key string) *Error {
	return &Error{Kind: ErrNotFound, Table: table, Key: key}
}

func NewStorageError(op, table, key string, err error) *Error {
	return &Error{Kind: ErrStorage, Op: op, Table: table, Key: key, Err: err}
}

func NewInvalidCommandError(msg string) *Error {
	return &Error{Kind: ErrInvalidCommand, Msg: msg}
}

func NewConversionError(v Value, to ValueKind) *Error {
	return &Error{Kind: ErrConversion, Msg: fmt.Sprintf("%s to %s", v, to)}
}

func NewProtocolError(msg string, err error) *Error {
	return &Error{Kind: ErrProtocol, Msg: msg, Err: err}
}

func NewConnectionError(msg string, err error) *Error {
	return &Error{Kind: ErrConnection, Msg: msg, Err: err}
}

func NewInternalError(msg string) *Error {
	return &Error{Kind: ErrInternal, Msg: msg}
}

// KindOf returns the kind of the first *Error in err's chain, ErrInternal otherwise
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrInternal
}

// IsNotFound reports whether err is a not found error
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == ErrNotFound
}
