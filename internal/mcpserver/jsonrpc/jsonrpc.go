// Package jsonrpc defines the JSON-RPC 2.0 envelope exchanged with MCP clients.
package jsonrpc

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Version is the only protocol version accepted in the jsonrpc field
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Request is an incoming JSON-RPC request or notification.
// ID is kept raw so it can be echoed back byte-for-byte.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// IsNotification reports whether the request carries no id.
// An explicit null id is still an id.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response is a JSON-RPC response. Exactly one of Result or Error is set.
// A nil ID is serialized as null.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the error member of a failed response
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// NewResult builds a success response for id with v marshaled as the result
func NewResult(id json.RawMessage, v any) (*Response, error) {
	result, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal result")
	}
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Result:  result,
	}, nil
}

// NewError builds an error response for id. Optional data is attached when non-nil.
func NewError(id json.RawMessage, code int, message string, data ...json.RawMessage) *Response {
	errObj := &Error{
		Code:    code,
		Message: message,
	}
	if len(data) > 0 && data[0] != nil {
		errObj.Data = data[0]
	}

	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error:   errObj,
	}
}
