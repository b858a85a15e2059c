// Package dispatch routes MCP JSON-RPC methods to the tool registry.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/erauner12/mcptools/internal/mcpserver/jsonrpc"
	"github.com/erauner12/mcptools/internal/mcpserver/tools"
	"github.com/erauner12/mcptools/internal/mcpserver/value"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// Protocol methods served by the Dispatcher
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
)

const (
	DefaultProtocolVersion = "2024-11-05"
	DefaultServerName      = "mcptools"
	DefaultServerVersion   = "0.1.0"
)

// ErrResultShape is returned when a handler produces something other than a tool result
var ErrResultShape = errors.New("tool returned a value that is not a tool result")

// ServerInfo identifies the server in the initialize result
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the result of the initialize method
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}

// ListResult is the result of the tools/list method
type ListResult struct {
	Tools []tools.Definition `json:"tools"`
}

// Dispatcher turns requests into responses. It holds no per-call state and is
// safe for concurrent use.
type Dispatcher struct {
	registry        *tools.Registry
	protocolVersion string
	info            ServerInfo
	logger          *zerolog.Logger
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithServerInfo sets the name and version reported by initialize
func WithServerInfo(name, version string) Option {
	return func(d *Dispatcher) {
		d.info = ServerInfo{Name: name, Version: version}
	}
}

// WithProtocolVersion sets the protocol version reported by initialize
func WithProtocolVersion(v string) Option {
	return func(d *Dispatcher) {
		d.protocolVersion = v
	}
}

// WithLogger sets the fallback logger used when the request context carries none
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = &l
	}
}

// New creates a Dispatcher over registry
func New(registry *tools.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:        registry,
		protocolVersion: DefaultProtocolVersion,
		info: ServerInfo{
			Name:    DefaultServerName,
			Version: DefaultServerVersion,
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle serves a single request. It always returns a response carrying the
// request id; callers decide whether to write it (notifications are dropped
// by the transports).
func (d *Dispatcher) Handle(ctx context.Context, req *jsonrpc.Request) (resp *jsonrpc.Response) {
	logger := d.loggerFor(ctx).With().Str("method", req.Method).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Recovered from panic while dispatching")
			resp = jsonrpc.NewError(req.ID, jsonrpc.InternalError, fmt.Sprintf("internal error: %v", r))
		}
	}()

	logger.Debug().RawJSON("id", idOrNull(req.ID)).Msg("Dispatching request")

	switch req.Method {
	case MethodInitialized:
		return d.result(req.ID, struct{}{})

	case MethodInitialize:
		return d.result(req.ID, InitializeResult{
			ProtocolVersion: d.protocolVersion,
			Capabilities: map[string]any{
				"tools": map[string]any{},
			},
			ServerInfo: d.info,
		})

	case MethodToolsList:
		if err := d.registry.Init(); err != nil {
			logger.Error().Err(err).Msg("Tool registry failed to initialize")
			return jsonrpc.NewError(req.ID, jsonrpc.InternalError, "tool registry unavailable: "+err.Error())
		}
		return d.result(req.ID, ListResult{Tools: d.registry.List()})

	case MethodToolsCall:
		if err := d.registry.Init(); err != nil {
			logger.Error().Err(err).Msg("Tool registry failed to initialize")
			return jsonrpc.NewError(req.ID, jsonrpc.InternalError, "tool registry unavailable: "+err.Error())
		}
		return d.callTool(ctx, logger, req)

	default:
		return jsonrpc.NewError(req.ID, jsonrpc.MethodNotFound, "Method not found: "+req.Method)
	}
}

func (d *Dispatcher) callTool(ctx context.Context, logger zerolog.Logger, req *jsonrpc.Request) *jsonrpc.Response {
	if len(req.Params) == 0 {
		return jsonrpc.NewError(req.ID, jsonrpc.InvalidParams, "Missing params")
	}

	params := gjson.ParseBytes(req.Params)
	if !params.IsObject() {
		return jsonrpc.NewError(req.ID, jsonrpc.InvalidParams, "params must be an object")
	}

	nameField := params.Get("name")
	if nameField.Type != gjson.String || nameField.Str == "" {
		return jsonrpc.NewError(req.ID, jsonrpc.InvalidParams, "Missing tool name")
	}
	name := nameField.Str

	handler, ok := d.registry.Resolve(name)
	if !ok {
		toolErr := tools.NewToolError(tools.ErrCodeNotFound, "Unknown tool: "+name, map[string]any{"tool": name})
		return d.toolError(req.ID, toolErr)
	}

	args := value.EmptyObject()
	if argsField := params.Get("arguments"); argsField.Exists() && argsField.Type != gjson.Null {
		args = value.FromResult(argsField)
	}

	logger = logger.With().Str("tool", name).Logger()

	result, err := invoke(logger.WithContext(ctx), handler, args)
	if err != nil {
		if toolErr, ok := tools.AsToolError(err); ok {
			logger.Debug().Str("code", string(toolErr.Code)).Msg("Tool returned an error")
			return d.toolError(req.ID, toolErr)
		}
		logger.Error().Err(err).Msg("Error executing tool")
		return jsonrpc.NewError(req.ID, jsonrpc.InternalError, fmt.Sprintf("Error executing tool %s: %v", name, err))
	}

	toolResult, err := asResult(result)
	if err != nil {
		logger.Error().Err(err).Msg("Tool result has the wrong shape")
		return d.toolError(req.ID, tools.NewToolError(tools.ErrCodeShapeMismatch, err.Error(), map[string]any{"tool": name}))
	}

	return d.result(req.ID, toolResult)
}

// invoke runs the handler, converting a panic into an error
func invoke(ctx context.Context, h tools.Handler, args value.Value) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v", r)
		}
	}()
	return h.Call(ctx, args)
}

func asResult(v any) (*tools.Result, error) {
	switch r := v.(type) {
	case *tools.Result:
		if r == nil {
			return nil, errors.Wrap(ErrResultShape, "nil result")
		}
		return r, nil
	case tools.Result:
		return &r, nil
	default:
		return nil, errors.Wrapf(ErrResultShape, "got %T", v)
	}
}

func (d *Dispatcher) toolError(id json.RawMessage, toolErr *tools.ToolError) *jsonrpc.Response {
	code, message, data := toolErr.ToJSONRPCError()
	return jsonrpc.NewError(id, code, message, data)
}

func (d *Dispatcher) result(id json.RawMessage, v any) *jsonrpc.Response {
	resp, err := jsonrpc.NewResult(id, v)
	if err != nil {
		return jsonrpc.NewError(id, jsonrpc.InternalError, err.Error())
	}
	return resp
}

func (d *Dispatcher) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	if d.logger != nil {
		return d.logger
	}
	return &log.Logger
}

func idOrNull(id json.RawMessage) []byte {
	if len(id) == 0 {
		return []byte("null")
	}
	return id
}
