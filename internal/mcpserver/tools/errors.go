package tools

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/erauner12/mcptools/internal/mcpserver/jsonrpc"
)

// ErrProviderContract indicates a provider declared a tool it cannot serve
var ErrProviderContract = errors.New("tool provider does not satisfy its contract")

// ToolError represents a structured error from tool lookup or execution
type ToolError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorCode categorizes tool errors for JSON-RPC translation
type ErrorCode string

const (
	ErrCodeInvalidParams  ErrorCode = "INVALID_PARAMS"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeMethodNotFound ErrorCode = "METHOD_NOT_FOUND"
	ErrCodeHandlerFailure ErrorCode = "HANDLER_FAILURE"
	ErrCodeShapeMismatch  ErrorCode = "SHAPE_MISMATCH"
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
)

// NewToolError creates a tool error with optional data
func NewToolError(code ErrorCode, message string, data map[string]any) *ToolError {
	return &ToolError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// AsToolError finds a ToolError anywhere in err's chain
func AsToolError(err error) (*ToolError, bool) {
	var te *ToolError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// ToJSONRPCError converts ToolError to JSON-RPC error code
func (e *ToolError) ToJSONRPCError() (int, string, json.RawMessage) {
	var code int
	switch e.Code {
	case ErrCodeInvalidParams, ErrCodeNotFound:
		code = jsonrpc.InvalidParams
	case ErrCodeMethodNotFound:
		code = jsonrpc.MethodNotFound
	default:
		code = jsonrpc.InternalError
	}

	var data json.RawMessage
	if e.Data != nil {
		dataBytes, _ := json.Marshal(e.Data)
		data = dataBytes
	}

	return code, e.Message, data
}
