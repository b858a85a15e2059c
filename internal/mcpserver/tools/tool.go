package tools

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/erauner12/mcptools/internal/mcpserver/schema"
	"github.com/erauner12/mcptools/internal/mcpserver/value"
)

// Definition describes an MCP tool with its name, description, and input schema
type Definition struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	InputSchema *schema.Node `json:"inputSchema"`
}

// Handler processes a tool invocation with the bound arguments.
// The returned value must be a Result or *Result.
type Handler interface {
	Call(ctx context.Context, args value.Value) (any, error)
}

// HandlerFunc adapts a synchronous function to Handler
type HandlerFunc func(ctx context.Context, args value.Value) (any, error)

// Call invokes f
func (f HandlerFunc) Call(ctx context.Context, args value.Value) (any, error) {
	return f(ctx, args)
}

// Outcome is the single message delivered by an AsyncHandlerFunc
type Outcome struct {
	Result any
	Err    error
}

// ErrNoOutcome is returned when an async handler closes its channel without a value
var ErrNoOutcome = errors.New("tool finished without a result")

// AsyncHandlerFunc starts a computation and returns a channel that yields
// exactly one Outcome. Call waits for it or for ctx to end.
type AsyncHandlerFunc func(ctx context.Context, args value.Value) <-chan Outcome

// Call starts f and awaits its outcome
func (f AsyncHandlerFunc) Call(ctx context.Context, args value.Value) (any, error) {
	select {
	case out, ok := <-f(ctx, args):
		if !ok {
			return nil, ErrNoOutcome
		}
		return out.Result, out.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result is the MCP tools/call result payload
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// MarshalJSON always emits content as an array
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	if r.Content == nil {
		r.Content = []Content{}
	}
	return json.Marshal(plain(r))
}

// Content represents a piece of tool output
type Content struct {
	Type string `json:"type"` // only "text" is produced today
	Text string `json:"text"`
}

// TextResult wraps text in a single text content block
func TextResult(text string) *Result {
	return &Result{
		Content: []Content{
			{Type: "text", Text: text},
		},
	}
}

// Provider declares a set of tools. Providers are folded into a Registry by Init.
type Provider interface {
	Name() string
	Tools() []Tool
}

// Tool is a provider-declared tool. Schema takes precedence over Input;
// Input is a value of the argument struct type whose schema is inferred.
// With neither, the tool takes an empty object.
type Tool struct {
	Name        string
	Description string
	Input       any
	Schema      *schema.Node
	Handler     Handler
}
